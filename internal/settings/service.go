package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/cosense-ai/cosense-gateway/internal/errs"
)

// Change is published to subscribers after every successful write.
type Change struct {
	Settings *Settings
}

// Service is the settings API used by the router and the CLI.
// Reads always go to the repository; writes are serialized inside this process.
type Service struct {
	repo Repository

	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// NewService creates a settings service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, subs: make(map[int]chan Change)}
}

// Init makes sure a valid record exists, writing Defaults() when the stored
// record is absent or invalid.
func (s *Service) Init(ctx context.Context) (*Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		current.Normalize()
		verr := current.Validate()
		if verr == nil {
			return current, nil
		}
		log.Warn().Err(verr).Msg("stored settings invalid, resetting to defaults")
	case errors.Is(err, ErrNotFound):
		log.Info().Msg("no stored settings, writing defaults")
	case errors.Is(err, ErrCorrupt):
		log.Warn().Err(err).Msg("stored settings corrupt, resetting to defaults")
	default:
		return nil, err
	}

	defaults := Defaults()
	if err := s.repo.Save(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

// Get returns a fresh copy of the current record.
// An absent record reads as Defaults() without being persisted.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	current, err := s.repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	current.Normalize()
	return current, nil
}

// Update merges a partial JSON record into the stored one. Fields present
// in patch replace stored values, including explicit empty strings; absent
// fields are kept. A present "prompts" array replaces the whole collection.
func (s *Service) Update(ctx context.Context, patch []byte) (*Settings, error) {
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		return nil, errs.Invalid("settings must be a JSON object")
	}
	return s.mutate(ctx, func(cur *Settings) (*Settings, error) {
		// Decoding into a reused slice would keep stale prompt fields.
		if gjson.GetBytes(patch, "prompts").Exists() {
			cur.Prompts = nil
		}
		if err := json.Unmarshal(patch, cur); err != nil {
			return nil, errs.Invalid("invalid settings: %v", err)
		}
		return cur, nil
	})
}

// ListPrompts returns the prompt collection.
func (s *Service) ListPrompts(ctx context.Context) ([]Prompt, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return current.Prompts, nil
}

// SavePrompt inserts or replaces a prompt by id. A missing id is generated.
func (s *Service) SavePrompt(ctx context.Context, p Prompt) (Prompt, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Model = strings.TrimSpace(p.Model)
	if err := p.Validate(); err != nil {
		return Prompt{}, errs.Invalid("%v", err)
	}

	_, err := s.mutate(ctx, func(cur *Settings) (*Settings, error) {
		_, idx, found := lo.FindIndexOf(cur.Prompts, func(existing Prompt) bool { return existing.ID == p.ID })
		if found {
			cur.Prompts[idx] = p
		} else {
			cur.Prompts = append(cur.Prompts, p)
		}
		return cur, nil
	})
	if err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// DeletePrompt removes a prompt by id.
func (s *Service) DeletePrompt(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, func(cur *Settings) (*Settings, error) {
		if _, ok := cur.FindPrompt(id); !ok {
			return nil, errs.Lookup("prompt not found: %s", id)
		}
		cur.Prompts = lo.Reject(cur.Prompts, func(p Prompt, _ int) bool { return p.ID == id })
		return cur, nil
	})
	return err
}

// SetAPIKey stores the API key for a provider.
func (s *Service) SetAPIKey(ctx context.Context, provider Provider, key string) error {
	if !provider.Valid() {
		return errs.Invalid("unknown provider: %q", provider)
	}
	_, err := s.mutate(ctx, func(cur *Settings) (*Settings, error) {
		switch provider {
		case ProviderOpenAI:
			cur.OpenAIKey = key
		case ProviderOpenRouter:
			cur.OpenRouterKey = key
		case ProviderLocal:
			cur.LocalKey = key
		}
		return cur, nil
	})
	return err
}

// mutate runs a read-modify-write cycle and notifies subscribers.
func (s *Service) mutate(ctx context.Context, fn func(cur *Settings) (*Settings, error)) (*Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}

	next.Normalize()
	if err := next.Validate(); err != nil {
		return nil, errs.Invalid("%v", err)
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.publish(next)
	return next, nil
}

// Subscribe registers for change notifications. The returned cancel func
// must be called to release the subscription.
func (s *Service) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Change, 4)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// publish fans a change out without blocking on slow subscribers.
func (s *Service) publish(next *Settings) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- Change{Settings: next.Clone()}:
		default:
			log.Warn().Int("subscriber", id).Msg("settings change dropped for slow subscriber")
		}
	}
}
