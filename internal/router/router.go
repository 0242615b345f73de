// Package router is the single dispatcher for extension messages.
//
// DESIGN: Handle receives one Message and always returns an Envelope.
// Nothing is thrown across the boundary: errors and recovered panics are
// converted to {success:false, error}. Messages are handled independently
// and concurrently; settings are re-read on every request.
//
// FLOW (PROCESS_PROMPT):
//  1. Load settings, look up the prompt by id
//  2. prompts.Resolve merges prompt overrides with global settings
//  3. prompts.BuildMessages builds [system, user]
//  4. Completer performs the single provider call
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/completion"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/prompts"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// Completer performs one completion call.
type Completer interface {
	Complete(ctx context.Context, p completion.Params) (*completion.Result, error)
}

// Defaults are applied to PROCESS_PROMPT calls.
type Defaults struct {
	Temperature *float64
	MaxTokens   *int
}

// Deps are the router's collaborators. Monitoring fields are optional.
type Deps struct {
	Settings  *settings.Service
	Completer Completer
	Defaults  Defaults

	Metrics *monitoring.MetricsCollector
	Alerts  *monitoring.AlertManager
	Tracker *monitoring.Tracker
}

// Router dispatches messages.
type Router struct {
	settings  *settings.Service
	completer Completer
	defaults  Defaults

	metrics *monitoring.MetricsCollector
	alerts  *monitoring.AlertManager
	tracker *monitoring.Tracker
}

// New creates a router.
func New(deps Deps) *Router {
	r := &Router{
		settings:  deps.Settings,
		completer: deps.Completer,
		defaults:  deps.Defaults,
		metrics:   deps.Metrics,
		alerts:    deps.Alerts,
		tracker:   deps.Tracker,
	}
	if r.metrics == nil {
		r.metrics = monitoring.NewMetricsCollector()
	}
	if r.alerts == nil {
		r.alerts = monitoring.NewAlertManager(monitoring.FromGlobal(), monitoring.AlertConfig{})
	}
	return r
}

// Metrics returns the collector used by the router.
func (r *Router) Metrics() *monitoring.MetricsCollector {
	return r.metrics
}

// Decode parses one raw message.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errs.Invalid("invalid message: %v", err)
	}
	return &msg, nil
}

// HandleJSON decodes a raw message and handles it.
func (r *Router) HandleJSON(ctx context.Context, raw []byte) Envelope {
	msg, err := Decode(raw)
	if err != nil {
		return Failure(err)
	}
	return r.Handle(ctx, msg)
}

// Handle dispatches one message. It never panics.
func (r *Router) Handle(ctx context.Context, msg *Message) (env Envelope) {
	start := time.Now()
	requestID := monitoring.RequestIDFromContext(ctx)

	defer func() {
		if p := recover(); p != nil {
			r.alerts.FlagPanic(requestID, p, string(debug.Stack()))
			env = Failure(errs.New(errs.KindInternal, fmt.Sprintf("internal error: %v", p), nil))
		}
		if msg != nil {
			env.ID = msg.ID
		}
		r.metrics.RecordRequest(env.Success, time.Since(start))
	}()

	if msg == nil {
		return Failure(errs.Invalid("message is required"))
	}
	if err := msg.validate(); err != nil {
		return Failure(err)
	}

	log.Debug().
		Str("request_id", requestID).
		Str("type", string(msg.Type)).
		Msg("dispatch")

	switch msg.Type {
	case TypeCreateChatCompletion:
		return r.createChatCompletion(ctx, msg)
	case TypeProcessPrompt:
		return r.processPrompt(ctx, msg)
	case TypeGetFrontendSettings:
		return r.getFrontendSettings(ctx)
	case TypeGetSettings:
		return r.getSettings(ctx)
	case TypeUpdateSettings:
		return r.updateSettings(ctx, msg)
	case TypeGetPrompts:
		return r.getPrompts(ctx)
	case TypeSavePrompt:
		return r.savePrompt(ctx, msg)
	case TypeDeletePrompt:
		return r.deletePrompt(ctx, msg)
	case TypeTestProvider:
		return r.testProvider(ctx, msg)
	}
	return Failure(errs.Invalid("unknown message type: %s", msg.Type))
}

// =============================================================================
// COMPLETION
// =============================================================================

func (r *Router) createChatCompletion(ctx context.Context, msg *Message) Envelope {
	current, err := r.settings.Get(ctx)
	if err != nil {
		return Failure(err)
	}

	provider := msg.Provider
	if provider == "" {
		provider = current.APIProvider
	}
	if !provider.Valid() {
		return Failure(errs.Invalid("unknown provider: %q", provider))
	}

	creds := current.CredentialsFor(provider)
	params := completion.Params{
		Provider:    provider,
		APIKey:      firstNonEmpty(msg.APIKey, creds.APIKey),
		Model:       firstNonEmpty(msg.Model, creds.Model),
		Endpoint:    creds.Endpoint,
		Messages:    msg.Messages,
		Temperature: msg.Temperature,
		MaxTokens:   msg.MaxTokens,
	}

	res, err := r.complete(ctx, msg, params)
	if err != nil {
		return Failure(err)
	}
	return Envelope{Success: true, Result: res.Text}
}

func (r *Router) processPrompt(ctx context.Context, msg *Message) Envelope {
	current, err := r.settings.Get(ctx)
	if err != nil {
		return Failure(err)
	}

	prompt, ok := current.FindPrompt(msg.PromptID)
	if !ok {
		return Failure(errs.Lookup("prompt not found: %s", msg.PromptID))
	}

	resolved, err := prompts.Resolve(prompt, current)
	if err != nil {
		r.alerts.FlagConfigError(monitoring.RequestIDFromContext(ctx), string(resolvedProvider(prompt, current)), err)
		return Failure(err)
	}

	params := completion.Params{
		Provider:    resolved.Provider,
		APIKey:      resolved.APIKey,
		Model:       resolved.Model,
		Endpoint:    resolved.Endpoint,
		Messages:    prompts.BuildMessages(prompt, current.FormatPrompt, msg.SelectedText),
		Temperature: r.defaults.Temperature,
		MaxTokens:   r.defaults.MaxTokens,
	}

	res, err := r.complete(ctx, msg, params)
	if err != nil {
		return Failure(err)
	}
	return Envelope{
		Success:        true,
		Result:         res.Text,
		PromptName:     prompt.Name,
		InsertPosition: resolved.InsertPosition,
	}
}

// testProvider runs a minimal completion to verify credentials from the options UI.
// Fields absent from the message fall back to stored settings.
func (r *Router) testProvider(ctx context.Context, msg *Message) Envelope {
	current, err := r.settings.Get(ctx)
	if err != nil {
		return Failure(err)
	}

	provider := msg.Provider
	if provider == "" {
		provider = current.APIProvider
	}
	creds := current.CredentialsFor(provider)
	maxTokens := 5

	res, err := r.complete(ctx, msg, completion.Params{
		Provider:  provider,
		APIKey:    firstNonEmpty(msg.APIKey, creds.APIKey),
		Model:     firstNonEmpty(msg.Model, creds.Model),
		Endpoint:  creds.Endpoint,
		Messages:  []adapters.Message{{Role: adapters.RoleUser, Content: "ping"}},
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return Failure(err)
	}
	return Envelope{Success: true, Result: res.Text}
}

// complete calls the completer and records metrics, alerts and telemetry.
func (r *Router) complete(ctx context.Context, msg *Message, p completion.Params) (*completion.Result, error) {
	requestID := monitoring.RequestIDFromContext(ctx)
	start := time.Now()

	res, err := r.completer.Complete(ctx, p)
	latency := time.Since(start)
	provider := string(p.Provider)

	event := &monitoring.CompletionEvent{
		RequestID:   requestID,
		Timestamp:   start,
		MessageType: string(msg.Type),
		PromptID:    msg.PromptID,
		Provider:    provider,
		Model:       p.Model,
		InputChars:  inputChars(p),
		Success:     err == nil,
		LatencyMs:   latency.Milliseconds(),
	}

	if err != nil {
		kind := errs.KindOf(err)
		event.ErrorKind = string(kind)
		event.Error = err.Error()
		switch kind {
		case errs.KindConfig, errs.KindInvalid:
			r.alerts.FlagConfigError(requestID, provider, err)
		default:
			r.metrics.RecordCompletion(provider, false, latency)
			r.alerts.FlagProviderError(requestID, provider, string(kind), err)
		}
		r.recordTelemetry(event, p)
		return nil, err
	}

	r.metrics.RecordCompletion(provider, true, latency)
	r.alerts.FlagHighLatency(requestID, latency, provider, p.Model)

	event.ResponseShape = res.Variant
	event.OutputChars = len(res.Text)
	event.InputTokens = res.Usage.InputTokens
	event.OutputTokens = res.Usage.OutputTokens
	event.TotalTokens = res.Usage.TotalTokens
	r.recordTelemetry(event, p)

	log.Info().
		Str("request_id", requestID).
		Str("type", string(msg.Type)).
		Str("provider", provider).
		Str("model", p.Model).
		Str("shape", res.Variant).
		Dur("latency", latency).
		Msg("completion")

	return res, nil
}

func (r *Router) recordTelemetry(event *monitoring.CompletionEvent, p completion.Params) {
	if !r.tracker.Enabled() {
		return
	}
	if event.InputTokens == 0 {
		var b strings.Builder
		for _, m := range p.Messages {
			b.WriteString(m.Content)
		}
		event.InputTokens = monitoring.EstimateTokens(b.String())
		event.TokensEstimate = true
	}
	r.tracker.RecordCompletion(event)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (r *Router) getFrontendSettings(ctx context.Context) Envelope {
	current, err := r.settings.Get(ctx)
	if err != nil {
		return Failure(err)
	}
	fs := current.Frontend()
	return Envelope{Success: true, Settings: &fs}
}

func (r *Router) getSettings(ctx context.Context) Envelope {
	current, err := r.settings.Get(ctx)
	if err != nil {
		return Failure(err)
	}
	return Envelope{Success: true, Settings: current}
}

func (r *Router) updateSettings(ctx context.Context, msg *Message) Envelope {
	updated, err := r.settings.Update(ctx, msg.Settings)
	if err != nil {
		return Failure(err)
	}
	return Envelope{Success: true, Settings: updated}
}

func (r *Router) getPrompts(ctx context.Context) Envelope {
	list, err := r.settings.ListPrompts(ctx)
	if err != nil {
		return Failure(err)
	}
	if list == nil {
		list = []settings.Prompt{}
	}
	return Envelope{Success: true, Prompts: &list}
}

func (r *Router) savePrompt(ctx context.Context, msg *Message) Envelope {
	saved, err := r.settings.SavePrompt(ctx, *msg.Prompt)
	if err != nil {
		return Failure(err)
	}
	return Envelope{Success: true, Prompt: &saved}
}

func (r *Router) deletePrompt(ctx context.Context, msg *Message) Envelope {
	if err := r.settings.DeletePrompt(ctx, msg.PromptID); err != nil {
		return Failure(err)
	}
	return Envelope{Success: true}
}

// =============================================================================
// HELPERS
// =============================================================================

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func resolvedProvider(p settings.Prompt, s *settings.Settings) settings.Provider {
	if p.Provider != "" {
		return p.Provider
	}
	return s.APIProvider
}

func inputChars(p completion.Params) int {
	n := 0
	for _, m := range p.Messages {
		n += len(m.Content)
	}
	return n
}
