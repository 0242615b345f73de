package adapters

import (
	"net/http"

	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// OpenRouterEndpoint is the fixed OpenRouter chat completions URL.
const OpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterAdapter handles OpenRouter requests.
// OpenRouter speaks the OpenAI Chat Completions format, so this adapter
// embeds OpenAIAdapter and only adds attribution headers and its own
// zero-choices error.
type OpenRouterAdapter struct {
	BaseAdapter
	*OpenAIAdapter

	referer string
	title   string
}

// NewOpenRouterAdapter creates a new OpenRouter adapter.
// referer and title are sent as HTTP-Referer / X-Title for app attribution.
func NewOpenRouterAdapter(referer, title string) *OpenRouterAdapter {
	return &OpenRouterAdapter{
		BaseAdapter: BaseAdapter{
			name:     "openrouter",
			provider: settings.ProviderOpenRouter,
		},
		OpenAIAdapter: NewOpenAIAdapter(),
		referer:       referer,
		title:         title,
	}
}

// Name returns the adapter name (overrides embedded OpenAIAdapter.Name).
func (a *OpenRouterAdapter) Name() string {
	return a.BaseAdapter.Name()
}

// Provider returns the provider type (overrides embedded OpenAIAdapter.Provider).
func (a *OpenRouterAdapter) Provider() settings.Provider {
	return a.BaseAdapter.Provider()
}

// SetHeaders sets bearer auth plus attribution headers.
func (a *OpenRouterAdapter) SetHeaders(h http.Header, apiKey string) {
	a.OpenAIAdapter.SetHeaders(h, apiKey)
	if a.referer != "" {
		h.Set("HTTP-Referer", a.referer)
	}
	if a.title != "" {
		h.Set("X-Title", a.title)
	}
}

// ParseResponse extracts choices[0].message.content, failing with an
// OpenRouter-specific error when no choices come back.
func (a *OpenRouterAdapter) ParseResponse(body []byte) (*Result, error) {
	resp, err := decodeChatResponse(a.Name(), body)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errs.Response(a.Name(), "openrouter returned no choices")
	}
	return chatResult(resp, body), nil
}

// Ensure OpenRouterAdapter implements Adapter
var _ Adapter = (*OpenRouterAdapter)(nil)
