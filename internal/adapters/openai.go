package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// OpenAIChatRequest is the Chat Completions request body.
type OpenAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// OpenAIChatResponse is the subset of the Chat Completions response we read.
type OpenAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIAdapter handles OpenAI Chat Completions format.
type OpenAIAdapter struct {
	BaseAdapter
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{
		BaseAdapter: BaseAdapter{
			name:     "openai",
			provider: settings.ProviderOpenAI,
		},
	}
}

// BuildRequest builds a Chat Completions body.
func (a *OpenAIAdapter) BuildRequest(_ string, req *Request) ([]byte, error) {
	return buildChatBody(req)
}

// SetHeaders sets bearer auth.
func (a *OpenAIAdapter) SetHeaders(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

// ParseResponse extracts choices[0].message.content.
// At least one choice is required; a missing content reads as "".
func (a *OpenAIAdapter) ParseResponse(body []byte) (*Result, error) {
	resp, err := decodeChatResponse(a.name, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errs.Response(a.name, "%s response contained no choices", a.name)
	}
	return chatResult(resp, body), nil
}

func decodeChatResponse(name string, body []byte) (*OpenAIChatResponse, error) {
	var resp OpenAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.Response(name, "failed to parse %s response: %v", name, err)
	}
	return &resp, nil
}

func chatResult(resp *OpenAIChatResponse, body []byte) *Result {
	return &Result{
		Text:    resp.Choices[0].Message.Content,
		Variant: "choices.message.content",
		Usage:   extractUsage(body),
	}
}

// buildChatBody marshals the OpenAI-compatible body shared by OpenAI and OpenRouter.
func buildChatBody(req *Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	return json.Marshal(&OpenAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// extractUsage reads token usage from either the OpenAI usage block or
// Ollama's eval counters.
func extractUsage(body []byte) UsageInfo {
	if u := gjson.GetBytes(body, "usage"); u.Exists() {
		info := UsageInfo{
			InputTokens:  int(u.Get("prompt_tokens").Int()),
			OutputTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:  int(u.Get("total_tokens").Int()),
		}
		if info.TotalTokens == 0 {
			info.TotalTokens = info.InputTokens + info.OutputTokens
		}
		return info
	}

	in := int(gjson.GetBytes(body, "prompt_eval_count").Int())
	out := int(gjson.GetBytes(body, "eval_count").Int())
	return UsageInfo{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

var _ Adapter = (*OpenAIAdapter)(nil)
