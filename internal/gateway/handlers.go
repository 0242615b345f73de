package gateway

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/router"
)

// handleMessage handles one message over plain HTTP.
// Protocol failures are reported in the envelope with status 200. HTTP
// errors are reserved for the request itself: wrong content type, an
// oversized or unreadable body, or a privileged type from a page origin.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	// application/json forces a CORS preflight on cross-site callers.
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		g.writeError(w, "content type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	g.requestLogger.LogMessage(&monitoring.MessageInfo{
		RequestID:   monitoring.RequestIDFromContext(ctx),
		MessageType: string(peekType(body)),
		Transport:   "http",
	})

	msg, err := router.Decode(body)
	if err != nil {
		g.writeJSON(w, router.Failure(err), http.StatusOK)
		return
	}
	if err := permit(trustFromContext(ctx), msg.Type); err != nil {
		g.writeJSON(w, router.Failure(err), http.StatusForbidden)
		return
	}
	g.writeJSON(w, g.router.Handle(ctx, msg), http.StatusOK)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(g.startedAt).Round(time.Second).String(),
	}, http.StatusOK)
}

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := g.metrics.Stats()
	stats["open_ports"] = g.openPorts.Load()
	if g.tracker.Enabled() {
		stats["telemetry_events"] = int64(g.tracker.Count())
	}
	g.writeJSON(w, stats, http.StatusOK)
}
