// Package monitoring - request_logger.go logs request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  Request received from the extension (HTTP or port)
//   - LogMessage:   Message decoded and dispatched
//   - LogResponse:  Response sent back
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	Origin     string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Origin:     r.Header.Get("Origin"),
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("origin", info.Origin).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// MessageInfo describes a dispatched protocol message.
type MessageInfo struct {
	RequestID   string
	MessageType string
	Transport   string // http, port, cli
}

// LogMessage logs a dispatched message.
func (rl *RequestLogger) LogMessage(info *MessageInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("type", info.MessageType).
		Str("transport", info.Transport).
		Msg("message")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}
