// Package prompts merges a prompt's overrides with global settings and
// builds the conversation sent to the provider.
package prompts

import (
	"strings"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// TextPlaceholder marks where selected text would go in a system prompt.
// The selected text is always sent as the user message, so it is stripped.
const TextPlaceholder = "{{text}}"

// Resolved is a prompt with every field filled in.
type Resolved struct {
	Provider       settings.Provider
	APIKey         string
	Model          string
	Endpoint       string
	InsertPosition settings.InsertPosition
}

// Resolve applies prompt-level overrides over global settings.
// A prompt field wins when present and non-empty. Fails when the resolved
// provider has no usable credential, naming the provider.
func Resolve(p settings.Prompt, s *settings.Settings) (Resolved, error) {
	provider := s.APIProvider
	if p.Provider != "" {
		provider = p.Provider
	}
	if provider == "" {
		provider = settings.ProviderOpenAI
	}

	creds := s.CredentialsFor(provider)
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = strings.TrimSpace(creds.Model)
	}

	insert := s.InsertPosition
	if p.InsertPosition != "" {
		insert = p.InsertPosition
	}
	if insert == "" {
		insert = settings.InsertBelow
	}

	r := Resolved{
		Provider:       provider,
		APIKey:         strings.TrimSpace(creds.APIKey),
		Model:          model,
		Endpoint:       strings.TrimSpace(creds.Endpoint),
		InsertPosition: insert,
	}

	if provider == settings.ProviderLocal {
		if r.Endpoint == "" {
			return Resolved{}, errs.Config(string(provider), "endpoint for %s is not configured", provider)
		}
	} else if r.APIKey == "" {
		return Resolved{}, errs.Config(string(provider), "API key for %s is not configured", provider)
	}
	return r, nil
}

// SystemText renders the system message: placeholder stripped, format
// instructions appended.
func SystemText(systemPrompt, formatPrompt string) string {
	text := strings.TrimSpace(strings.ReplaceAll(systemPrompt, TextPlaceholder, ""))
	format := strings.TrimSpace(formatPrompt)
	switch {
	case format == "":
		return text
	case text == "":
		return format
	default:
		return text + "\n\n" + format
	}
}

// BuildMessages builds the two-message conversation for a prompt.
func BuildMessages(p settings.Prompt, formatPrompt, selectedText string) []adapters.Message {
	return []adapters.Message{
		{Role: adapters.RoleSystem, Content: SystemText(p.SystemPrompt, formatPrompt)},
		{Role: adapters.RoleUser, Content: selectedText},
	}
}
