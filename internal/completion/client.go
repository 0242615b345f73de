// Package completion performs a single chat-completion call.
//
// Client.Complete is the one place that talks to a provider over HTTP.
// It validates input, asks the adapter for a body, performs exactly one
// POST and hands the 2xx body back to the adapter. There are no retries:
// a failed call surfaces to the caller as a classified errs.Error.
package completion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

const (
	// DefaultOpenAIEndpoint is the OpenAI Chat Completions URL.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// Params is one completion call.
type Params struct {
	Provider settings.Provider
	APIKey   string
	Model    string
	// Endpoint is required for the local provider and overrides the
	// configured endpoint for the others.
	Endpoint    string
	Messages    []adapters.Message
	Temperature *float64
	MaxTokens   *int
}

// Result is a successful completion.
type Result struct {
	Text     string
	Provider settings.Provider
	Model    string
	Variant  string
	Usage    adapters.UsageInfo
	Latency  time.Duration
}

// Options configures a Client.
type Options struct {
	OpenAIEndpoint     string
	OpenRouterEndpoint string
	OpenRouterReferer  string
	OpenRouterTitle    string

	// Timeout bounds a single call. Zero leaves it to the network stack.
	Timeout time.Duration

	// HTTPClient overrides the default client (tests, connection pooling).
	HTTPClient *http.Client
}

// Client performs completion calls.
type Client struct {
	registry  *adapters.Registry
	endpoints map[settings.Provider]string
	http      *http.Client
	timeout   time.Duration
}

// NewClient creates a client with the built-in adapters.
func NewClient(opts Options) *Client {
	openaiEndpoint := opts.OpenAIEndpoint
	if openaiEndpoint == "" {
		openaiEndpoint = DefaultOpenAIEndpoint
	}
	openrouterEndpoint := opts.OpenRouterEndpoint
	if openrouterEndpoint == "" {
		openrouterEndpoint = adapters.OpenRouterEndpoint
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{} // timeout via context, not client
	}

	return &Client{
		registry: adapters.NewRegistry(opts.OpenRouterReferer, opts.OpenRouterTitle),
		endpoints: map[settings.Provider]string{
			settings.ProviderOpenAI:     openaiEndpoint,
			settings.ProviderOpenRouter: openrouterEndpoint,
		},
		http:    httpClient,
		timeout: opts.Timeout,
	}
}

// Validate checks the input constraints of a call without any I/O.
func (p *Params) Validate() error {
	if !p.Provider.Valid() {
		return errs.Invalid("unknown provider: %q", p.Provider)
	}
	if p.Provider == settings.ProviderLocal {
		if strings.TrimSpace(p.Endpoint) == "" {
			return errs.Config(string(p.Provider), "endpoint for local is not configured")
		}
	} else if strings.TrimSpace(p.APIKey) == "" {
		return errs.Config(string(p.Provider), "API key for %s is not configured", p.Provider)
	}
	if strings.TrimSpace(p.Model) == "" {
		return errs.Config(string(p.Provider), "model for %s is not configured", p.Provider)
	}
	if len(p.Messages) == 0 {
		return errs.Invalid("messages are required")
	}
	return nil
}

// Complete performs exactly one completion call.
func (c *Client) Complete(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	adapter := c.registry.Get(p.Provider)
	if adapter == nil {
		return nil, errs.Invalid("no adapter for provider %q", p.Provider)
	}
	name := adapter.Name()

	endpoint := strings.TrimSpace(p.Endpoint)
	if endpoint == "" {
		endpoint = c.endpoints[p.Provider]
	}

	body, err := adapter.BuildRequest(endpoint, &adapters.Request{
		Model:       strings.TrimSpace(p.Model),
		Messages:    p.Messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return nil, errs.New(errs.KindInternal, fmt.Sprintf("failed to marshal %s request", name), err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Config(name, "invalid %s endpoint %q: %v", name, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	adapter.SetHeaders(req.Header, strings.TrimSpace(p.APIKey))

	log.Debug().
		Str("provider", name).
		Str("model", p.Model).
		Int("messages", len(p.Messages)).
		Int("body_size", len(body)).
		Msg("completion request")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Transport(name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errs.Transport(name, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := strings.TrimSpace(string(respBody))
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "... (truncated)"
		}
		return nil, errs.Provider(name, resp.StatusCode, errBody)
	}

	parsed, err := adapter.ParseResponse(respBody)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:     parsed.Text,
		Provider: p.Provider,
		Model:    p.Model,
		Variant:  parsed.Variant,
		Usage:    parsed.Usage,
		Latency:  time.Since(start),
	}, nil
}
