package adapters_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// =============================================================================
// OPENAI
// =============================================================================

func TestOpenAI_ParseResponse(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-1",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "short summary"}}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
	}`)

	res, err := adapters.NewOpenAIAdapter().ParseResponse(body)

	require.NoError(t, err)
	assert.Equal(t, "short summary", res.Text)
	assert.Equal(t, 20, res.Usage.InputTokens)
	assert.Equal(t, 5, res.Usage.OutputTokens)
	assert.Equal(t, 25, res.Usage.TotalTokens)
}

func TestOpenAI_ParseResponse_MissingContent(t *testing.T) {
	res, err := adapters.NewOpenAIAdapter().ParseResponse([]byte(`{"choices":[{"message":{}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
}

func TestOpenAI_ParseResponse_NoChoices(t *testing.T) {
	_, err := adapters.NewOpenAIAdapter().ParseResponse([]byte(`{"choices":[]}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindResponse))
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAI_BuildRequest(t *testing.T) {
	body, err := adapters.NewOpenAIAdapter().BuildRequest("", &adapters.Request{
		Model:    "gpt-4o-mini",
		Messages: []adapters.Message{{Role: adapters.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.NotContains(t, got, "temperature")
	assert.NotContains(t, got, "max_tokens")
}

func TestOpenAI_SetHeaders(t *testing.T) {
	h := http.Header{}
	adapters.NewOpenAIAdapter().SetHeaders(h, "sk-test")
	assert.Equal(t, "Bearer sk-test", h.Get("Authorization"))
}

// =============================================================================
// OPENROUTER
// =============================================================================

func TestOpenRouter_ParseResponse(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"content":"routed"}}]}`)
	res, err := adapters.NewOpenRouterAdapter("", "").ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "routed", res.Text)
}

func TestOpenRouter_ParseResponse_NoChoices(t *testing.T) {
	_, err := adapters.NewOpenRouterAdapter("", "").ParseResponse([]byte(`{"choices":[]}`))
	require.Error(t, err)
	assert.Equal(t, "openrouter returned no choices", err.Error())
}

func TestOpenRouter_SetHeaders(t *testing.T) {
	h := http.Header{}
	adapters.NewOpenRouterAdapter("https://scrapbox.io", "Cosense AI").SetHeaders(h, "or-key")
	assert.Equal(t, "Bearer or-key", h.Get("Authorization"))
	assert.Equal(t, "https://scrapbox.io", h.Get("HTTP-Referer"))
	assert.Equal(t, "Cosense AI", h.Get("X-Title"))
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_Providers(t *testing.T) {
	r := adapters.NewRegistry("", "")
	for _, p := range []settings.Provider{settings.ProviderOpenAI, settings.ProviderOpenRouter, settings.ProviderLocal} {
		a := r.Get(p)
		require.NotNil(t, a, p)
		assert.Equal(t, p, a.Provider())
		assert.Equal(t, string(p), a.Name())
	}
	assert.Nil(t, r.Get("anthropic"))
}
