package adapters

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// PayloadShape is the request body layout sent to a self-hosted server.
type PayloadShape string

const (
	ShapeOpenAIChat       PayloadShape = "openai_chat"       // {model, messages, temperature, max_tokens}
	ShapeOllamaChat       PayloadShape = "ollama_chat"       // {model, messages, stream:false, options}
	ShapeOllamaGenerate   PayloadShape = "ollama_generate"   // {model, system, prompt, stream:false, options}
	ShapePromptCompletion PayloadShape = "prompt_completion" // {model, prompt, max_tokens, n_predict}
)

// DetectPayloadShape picks the body layout from the configured endpoint.
// Self-hosted servers are not format-standardized; the path is the only hint.
func DetectPayloadShape(endpoint string) PayloadShape {
	e := strings.ToLower(endpoint)
	switch {
	case strings.Contains(e, "/api/generate"):
		return ShapeOllamaGenerate
	case strings.Contains(e, "/api/chat"):
		return ShapeOllamaChat
	case strings.Contains(e, "/completion") && !strings.Contains(e, "chat"):
		return ShapePromptCompletion
	default:
		return ShapeOpenAIChat
	}
}

// responseVariant is one recognized response shape: if path holds a
// non-empty value, its string form is the generated text.
type responseVariant struct {
	name string
	path string
}

// VariantStringified is the terminal variant: the whole payload as compact JSON.
const VariantStringified = "stringified"

// localResponseVariants are evaluated in order; first match wins.
var localResponseVariants = []responseVariant{
	{name: "choices.message.content", path: "choices.0.message.content"},
	{name: "choices.text", path: "choices.0.text"},
	{name: "message.content", path: "message.content"},
	{name: "response", path: "response"},
	{name: "output", path: "output"},
	{name: "text", path: "text"},
}

// LocalAdapter handles self-hosted servers (Ollama, llama.cpp, LM Studio, vLLM...).
type LocalAdapter struct {
	BaseAdapter
}

// NewLocalAdapter creates a new local adapter.
func NewLocalAdapter() *LocalAdapter {
	return &LocalAdapter{
		BaseAdapter: BaseAdapter{
			name:     "local",
			provider: settings.ProviderLocal,
		},
	}
}

// BuildRequest builds the body in the shape the endpoint expects.
func (a *LocalAdapter) BuildRequest(endpoint string, req *Request) ([]byte, error) {
	shape := DetectPayloadShape(endpoint)
	if shape == ShapeOpenAIChat {
		return buildChatBody(req)
	}

	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}

	set("model", req.Model)
	switch shape {
	case ShapeOllamaChat:
		set("messages", req.Messages)
		set("stream", false)
		setOllamaOptions(set, req)
	case ShapeOllamaGenerate:
		system, prompt := splitConversation(req.Messages)
		if system != "" {
			set("system", system)
		}
		set("prompt", prompt)
		set("stream", false)
		setOllamaOptions(set, req)
	case ShapePromptCompletion:
		set("prompt", renderConversation(req.Messages))
		set("stream", false)
		if req.Temperature != nil {
			set("temperature", *req.Temperature)
		}
		if req.MaxTokens != nil {
			set("max_tokens", *req.MaxTokens)
			set("n_predict", *req.MaxTokens)
		}
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func setOllamaOptions(set func(string, any), req *Request) {
	if req.Temperature != nil {
		set("options.temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		set("options.num_predict", *req.MaxTokens)
	}
}

// splitConversation separates system text from the rest of the conversation.
func splitConversation(msgs []Message) (system, prompt string) {
	var sys, rest []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
		} else {
			rest = append(rest, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(rest, "\n\n")
}

// renderConversation flattens every message into one prompt string.
func renderConversation(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// SetHeaders sets bearer auth when a key is configured.
func (a *LocalAdapter) SetHeaders(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

// ParseResponse walks the ordered variant list and falls back to the
// stringified payload when no known field is present.
func (a *LocalAdapter) ParseResponse(body []byte) (*Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.Response(a.name, "local server returned invalid JSON")
	}

	text, variant := ExtractLocalText(body)
	log.Debug().Str("provider", a.name).Str("variant", variant).Msg("local response shape")

	return &Result{
		Text:    text,
		Variant: variant,
		Usage:   extractUsage(body),
	}, nil
}

// ExtractLocalText returns the generated text and the name of the variant it came from.
// body must be valid JSON.
func ExtractLocalText(body []byte) (string, string) {
	for _, v := range localResponseVariants {
		r := gjson.GetBytes(body, v.path)
		if r.Exists() && r.Type != gjson.Null && r.String() != "" {
			return r.String(), v.name
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return string(body), VariantStringified
	}
	return compact.String(), VariantStringified
}

var _ Adapter = (*LocalAdapter)(nil)
