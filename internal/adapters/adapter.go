// Package adapters provides provider-specific request/response handling.
//
// DESIGN: The gateway talks to three kinds of chat-completion services.
// Each has a slightly different wire format, so an Adapter owns the
// provider-specific parts of a single completion call:
//
//   - BuildRequest:  unified Request → provider JSON body
//   - SetHeaders:    auth + provider-specific headers
//   - ParseResponse: provider JSON body → unified Result
//
// FLOW:
//  1. completion.Client picks the adapter from the Registry by provider
//  2. Adapter builds the body, client performs exactly one POST
//  3. Adapter extracts text + usage from the response body
//
// Adapters perform no I/O and hold no mutable state; they are safe for
// concurrent use. To add a provider: implement Adapter and register it.
package adapters

import (
	"net/http"

	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an ordered conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-agnostic completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// UsageInfo is token usage reported by the provider (zero when absent).
type UsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the unified completion result.
type Result struct {
	Text    string
	Variant string // response shape the text was extracted from
	Usage   UsageInfo
}

// Adapter defines provider-specific request handling.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "openai", "openrouter")
	Name() string

	// Provider returns the provider this adapter serves
	Provider() settings.Provider

	// BuildRequest serializes req for the given endpoint.
	BuildRequest(endpoint string, req *Request) ([]byte, error)

	// SetHeaders adds auth and provider-specific headers.
	SetHeaders(h http.Header, apiKey string)

	// ParseResponse extracts the generated text from a 2xx response body.
	ParseResponse(body []byte) (*Result, error)
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name     string
	provider settings.Provider
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Provider returns the provider type.
func (a *BaseAdapter) Provider() settings.Provider {
	return a.provider
}
