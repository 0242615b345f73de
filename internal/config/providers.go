// Provider configuration - upstream endpoints and request defaults.
//
// Keys and models are NOT configured here; they are per-user settings.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// ProvidersConfig holds the upstream endpoints for hosted providers.
// The local endpoint is a user setting, not configuration.
type ProvidersConfig struct {
	OpenAIEndpoint     string        `yaml:"openai_endpoint"`
	OpenRouterEndpoint string        `yaml:"openrouter_endpoint"`
	Referer            string        `yaml:"referer"` // OpenRouter HTTP-Referer
	Title              string        `yaml:"title"`   // OpenRouter X-Title
	Timeout            time.Duration `yaml:"timeout"` // 0 = no explicit timeout
}

// Validate checks endpoint URLs.
func (p ProvidersConfig) Validate() error {
	for name, raw := range map[string]string{
		"providers.openai_endpoint":     p.OpenAIEndpoint,
		"providers.openrouter_endpoint": p.OpenRouterEndpoint,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if p.Timeout < 0 {
		return fmt.Errorf("providers.timeout must not be negative")
	}
	return nil
}

// CompletionConfig holds defaults applied to prompt-driven completions.
// An absent temperature and a zero max_tokens are omitted from the provider
// request; an explicit default_temperature: 0 is sent.
type CompletionConfig struct {
	DefaultTemperature *float64 `yaml:"default_temperature"`
	DefaultMaxTokens   int      `yaml:"default_max_tokens"`
}

// Validate checks ranges.
func (c CompletionConfig) Validate() error {
	if t := c.DefaultTemperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("invalid completion.default_temperature: %v (must be 0-2)", *t)
	}
	if c.DefaultMaxTokens < 0 {
		return fmt.Errorf("completion.default_max_tokens must not be negative")
	}
	return nil
}

// Temperature returns a copy of the default temperature, or nil when unset.
func (c CompletionConfig) Temperature() *float64 {
	if c.DefaultTemperature == nil {
		return nil
	}
	t := *c.DefaultTemperature
	return &t
}

// MaxTokens returns the default max tokens, or nil when unset.
func (c CompletionConfig) MaxTokens() *int {
	if c.DefaultMaxTokens == 0 {
		return nil
	}
	n := c.DefaultMaxTokens
	return &n
}
