// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the router, gateway and monitoring packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - CompletionEvent: Telemetry data for each completion call
//   - Config types:    TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// CompletionEvent captures one completion attempt routed through the gateway.
type CompletionEvent struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	MessageType    string    `json:"message_type"`
	PromptID       string    `json:"prompt_id,omitempty"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model,omitempty"`
	ResponseShape  string    `json:"response_shape,omitempty"`
	InputChars     int       `json:"input_chars"`
	OutputChars    int       `json:"output_chars"`
	Success        bool      `json:"success"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	InputTokens    int       `json:"input_tokens,omitempty"`
	OutputTokens   int       `json:"output_tokens,omitempty"`
	TotalTokens    int       `json:"total_tokens,omitempty"`
	TokensEstimate bool      `json:"tokens_estimated,omitempty"` // input tokens counted locally
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
