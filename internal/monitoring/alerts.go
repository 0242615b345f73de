// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:   Warn when a completion exceeds threshold
//   - FlagProviderError: Warn on provider 4xx/5xx or malformed responses
//   - FlagConfigError:   Info when a request fails on missing credentials
//   - FlagPanic:         Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 30 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, provider, model string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("provider", provider).
		Str("model", model).
		Msg("high_latency")
}

// FlagProviderError logs an upstream provider failure.
func (am *AlertManager) FlagProviderError(requestID, provider string, kind string, err error) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("provider", provider).
		Str("kind", kind).
		Err(err).
		Msg("provider_error")
}

// FlagConfigError logs a request rejected for missing configuration.
func (am *AlertManager) FlagConfigError(requestID, provider string, err error) {
	am.logger.Info().
		Str("request_id", requestID).
		Str("provider", provider).
		Err(err).
		Msg("config_error")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
