// Package gateway exposes the message router to the browser extension.
//
// DESIGN: The gateway is a loopback-only HTTP server. It adds no semantics of
// its own: every request body is a router.Message and every response is a
// router.Envelope. Two transports carry the same protocol:
//   - POST /v1/message: one-shot request/response (popup, content script)
//   - GET  /v1/port:    long-lived websocket (options UI), with id echo and
//     SETTINGS_CHANGED pushes
//
// FILES:
//   - gateway.go:    Gateway struct, lifecycle, JSON helpers
//   - handlers.go:   HTTP handlers
//   - port.go:       Websocket port
//   - middleware.go: Recovery, rate limiting, logging, CORS
//   - origin.go:     Origin trust levels and privileged message gating
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cosense-ai/cosense-gateway/internal/config"
	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	// MaxRequestBodySize bounds a single message (1 MiB).
	MaxRequestBodySize = 1 << 20

	// MaxRateLimitBuckets bounds the per-IP limiter map.
	MaxRateLimitBuckets = 1024

	// DefaultRateLimit is requests per second per client address.
	DefaultRateLimit = 50

	// maxPortInflight bounds concurrent messages on one port.
	maxPortInflight = 16
)

// Deps are the collaborators shared with the rest of the process.
type Deps struct {
	Router        *router.Router
	Settings      *settings.Service
	Metrics       *monitoring.MetricsCollector
	Alerts        *monitoring.AlertManager
	RequestLogger *monitoring.RequestLogger
	Tracker       *monitoring.Tracker
}

// Gateway is the HTTP front of the router.
type Gateway struct {
	config        *config.Config
	router        *router.Router
	settings      *settings.Service
	metrics       *monitoring.MetricsCollector
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	tracker       *monitoring.Tracker
	rateLimiter   *rateLimiter

	server    *http.Server
	startedAt time.Time

	ports     sync.WaitGroup
	openPorts atomic.Int64
	shutdown  chan struct{}
	closeOnce sync.Once
}

// New creates a gateway.
func New(cfg *config.Config, deps Deps) *Gateway {
	logger := monitoring.FromGlobal()
	shutdown := make(chan struct{})
	g := &Gateway{
		config:        cfg,
		router:        deps.Router,
		settings:      deps.Settings,
		metrics:       deps.Metrics,
		alerts:        deps.Alerts,
		requestLogger: deps.RequestLogger,
		tracker:       deps.Tracker,
		rateLimiter:   newRateLimiter(DefaultRateLimit, shutdown),
		startedAt:     time.Now(),
		shutdown:      shutdown,
	}
	if g.metrics == nil {
		g.metrics = deps.Router.Metrics()
	}
	if g.alerts == nil {
		g.alerts = monitoring.NewAlertManager(logger, cfg.Monitoring.Alerts())
	}
	if g.requestLogger == nil {
		g.requestLogger = monitoring.NewRequestLogger(logger)
	}

	g.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      g.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

// Handler returns the full middleware-wrapped handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/message", g.handleMessage)
	mux.HandleFunc("GET /v1/port", g.handlePort)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	return h
}

// Start listens until Shutdown is called.
func (g *Gateway) Start() error {
	if len(g.config.Server.ExtensionIDs) == 0 {
		log.Warn().Msg("server.extension_ids is empty: extension origins will be rejected")
	}
	log.Info().Str("addr", g.server.Addr).Strs("extensions", g.config.Server.ExtensionIDs).Msg("gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes open ports, stops the rate
// limiter sweeper and waits for in-flight messages.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.closeOnce.Do(func() { close(g.shutdown) })
	err := g.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		g.ports.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Int64("ports", g.openPorts.Load()).Msg("shutdown: ports still open")
	}

	if g.tracker != nil {
		_ = g.tracker.Close()
	}
	return err
}

// writeJSON writes v with status.
func (g *Gateway) writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError writes a failed envelope with an HTTP status.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	g.writeJSON(w, router.Envelope{Success: false, Error: msg}, status)
}
