package settings

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Normalize trims credentials and fills empty global fields with defaults.
// Prompt-level overrides are left as-is so they keep falling back at
// resolution time.
func (s *Settings) Normalize() {
	s.OpenAIKey = strings.TrimSpace(s.OpenAIKey)
	s.OpenAIModel = strings.TrimSpace(s.OpenAIModel)
	s.OpenRouterKey = strings.TrimSpace(s.OpenRouterKey)
	s.OpenRouterModel = strings.TrimSpace(s.OpenRouterModel)
	s.LocalEndpoint = strings.TrimSpace(s.LocalEndpoint)
	s.LocalKey = strings.TrimSpace(s.LocalKey)
	s.LocalModel = strings.TrimSpace(s.LocalModel)

	if s.InsertPosition == "" {
		s.InsertPosition = InsertBelow
	}
	if s.APIProvider == "" {
		s.APIProvider = ProviderOpenAI
	}
	if s.SpeechLang == "" {
		s.SpeechLang = DefaultSpeechLang
	}
	if s.Prompts == nil {
		s.Prompts = []Prompt{}
	}
	for i := range s.Prompts {
		s.Prompts[i].Name = strings.TrimSpace(s.Prompts[i].Name)
		s.Prompts[i].Model = strings.TrimSpace(s.Prompts[i].Model)
	}
}

// Validate checks structural invariants of the record.
func (s *Settings) Validate() error {
	if !s.InsertPosition.Valid() {
		return fmt.Errorf("invalid insertPosition: %q (must be below or bottom)", s.InsertPosition)
	}
	if !s.APIProvider.Valid() {
		return fmt.Errorf("invalid apiProvider: %q", s.APIProvider)
	}

	for i, p := range s.Prompts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("prompts[%d]: %w", i, err)
		}
	}

	dups := lo.FindDuplicatesBy(s.Prompts, func(p Prompt) string { return p.ID })
	if len(dups) > 0 {
		return fmt.Errorf("duplicate prompt id: %q", dups[0].ID)
	}
	return nil
}

// Validate checks a single prompt.
func (p Prompt) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("prompt id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("prompt %q: name is required", p.ID)
	}
	// Only hosted providers may be chosen per prompt.
	if p.Provider != "" && p.Provider != ProviderOpenAI && p.Provider != ProviderOpenRouter {
		return fmt.Errorf("prompt %q: invalid provider %q", p.ID, p.Provider)
	}
	if p.InsertPosition != "" && !p.InsertPosition.Valid() {
		return fmt.Errorf("prompt %q: invalid insertPosition %q", p.ID, p.InsertPosition)
	}
	return nil
}

// Frontend returns the redacted snapshot safe to hand to content scripts.
func (s *Settings) Frontend() FrontendSettings {
	return FrontendSettings{
		Prompts:         append([]Prompt{}, s.Prompts...),
		InsertPosition:  s.InsertPosition,
		SpeechLang:      s.SpeechLang,
		APIProvider:     s.APIProvider,
		OpenAIModel:     s.OpenAIModel,
		OpenRouterModel: s.OpenRouterModel,
		LocalModel:      s.LocalModel,
		LocalEndpoint:   s.LocalEndpoint,
	}
}
