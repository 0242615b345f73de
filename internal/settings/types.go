// Package settings owns the persisted extension settings record.
//
// DESIGN: Settings is a single JSON record stored under StorageKey. It is the
// only source of truth for credentials, prompt definitions and display
// preferences. Callers never cache it: every completion request re-reads it
// through Service.Get so edits from the options UI take effect immediately.
//
// FILES:
//   - types.go:      Settings, Prompt, enums, defaults
//   - validate.go:   Normalize(), Validate(), Frontend() redaction
//   - repository.go: Repository interface, MemoryRepository
//   - sqlite.go:     SQLiteRepository (modernc.org/sqlite key/value table)
//   - service.go:    Service (init, prompt CRUD, change notifications)
package settings

// StorageKey is the fixed key the settings record is stored under.
const StorageKey = "cosense-ai-settings"

// Provider identifies an LLM completion service.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderLocal      Provider = "local"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderOpenRouter, ProviderLocal:
		return true
	}
	return false
}

// InsertPosition is where generated text lands in the page.
type InsertPosition string

const (
	InsertBelow  InsertPosition = "below"  // directly below the selection
	InsertBottom InsertPosition = "bottom" // appended at the end of the page
)

// Valid reports whether ip is a known insert position.
func (ip InsertPosition) Valid() bool {
	return ip == InsertBelow || ip == InsertBottom
}

// Prompt is a user-authored template applied to selected text.
// Provider and InsertPosition are overrides; empty means "use the global setting".
type Prompt struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SystemPrompt   string         `json:"systemPrompt"`
	Model          string         `json:"model"`
	Provider       Provider       `json:"provider,omitempty"`
	InsertPosition InsertPosition `json:"insertPosition,omitempty"`
}

// Settings is the persisted settings record.
type Settings struct {
	Prompts        []Prompt       `json:"prompts"`
	InsertPosition InsertPosition `json:"insertPosition"`
	SpeechLang     string         `json:"speechLang"`
	FormatPrompt   string         `json:"formatPrompt"` // appended to every system prompt
	APIProvider    Provider       `json:"apiProvider"`

	OpenAIKey   string `json:"openaiKey"`
	OpenAIModel string `json:"openaiModel"`

	OpenRouterKey   string `json:"openrouterKey"`
	OpenRouterModel string `json:"openrouterModel"`

	LocalEndpoint string `json:"localEndpoint"`
	LocalKey      string `json:"localKey"`
	LocalModel    string `json:"localModel"`
}

// Credentials is the per-provider {apiKey, model} pair.
type Credentials struct {
	APIKey   string
	Model    string
	Endpoint string // local only
}

// CredentialsFor returns the configured credentials for a provider.
func (s *Settings) CredentialsFor(p Provider) Credentials {
	switch p {
	case ProviderOpenRouter:
		return Credentials{APIKey: s.OpenRouterKey, Model: s.OpenRouterModel}
	case ProviderLocal:
		return Credentials{APIKey: s.LocalKey, Model: s.LocalModel, Endpoint: s.LocalEndpoint}
	default:
		return Credentials{APIKey: s.OpenAIKey, Model: s.OpenAIModel}
	}
}

// FindPrompt returns the prompt with the given id.
func (s *Settings) FindPrompt(id string) (Prompt, bool) {
	for _, p := range s.Prompts {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	c.Prompts = append([]Prompt(nil), s.Prompts...)
	return &c
}

// Default model names.
const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
	DefaultLocalModel      = "llama3"
	DefaultLocalEndpoint   = "http://localhost:11434/v1/chat/completions"
	DefaultSpeechLang      = "ja-JP"
)

// Defaults returns the settings a fresh install starts with.
func Defaults() *Settings {
	return &Settings{
		Prompts: []Prompt{
			{
				ID:           "summarize",
				Name:         "要約",
				SystemPrompt: "以下のテキストを簡潔に要約してください。\n\n{{text}}",
			},
			{
				ID:           "translate-en",
				Name:         "英訳",
				SystemPrompt: "Translate the following text into natural English.\n\n{{text}}",
			},
			{
				ID:           "proofread",
				Name:         "校正",
				SystemPrompt: "以下の文章の誤字脱字や不自然な表現を校正し、修正後の文章のみを出力してください。\n\n{{text}}",
			},
		},
		InsertPosition:  InsertBelow,
		SpeechLang:      DefaultSpeechLang,
		FormatPrompt:    "出力はCosense(Scrapbox)記法で、前置きや説明なしに本文のみを返してください。",
		APIProvider:     ProviderOpenAI,
		OpenAIModel:     DefaultOpenAIModel,
		OpenRouterModel: DefaultOpenRouterModel,
		LocalEndpoint:   DefaultLocalEndpoint,
		LocalModel:      DefaultLocalModel,
	}
}

// FrontendSettings is the redacted snapshot handed to content scripts.
// It never carries API keys.
type FrontendSettings struct {
	Prompts         []Prompt       `json:"prompts"`
	InsertPosition  InsertPosition `json:"insertPosition"`
	SpeechLang      string         `json:"speechLang"`
	APIProvider     Provider       `json:"apiProvider"`
	OpenAIModel     string         `json:"openaiModel"`
	OpenRouterModel string         `json:"openrouterModel"`
	LocalModel      string         `json:"localModel"`
	LocalEndpoint   string         `json:"localEndpoint"`
}
