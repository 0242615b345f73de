// HTTP middleware for the loopback server.
//
// DESIGN: Middleware chain (outermost first):
//  1. panicRecovery:     Catch panics, return 500, alert with stack
//  2. rateLimit:         Token bucket per remote address
//  3. loggingMiddleware: Request id, lifecycle logs
//  4. security:          Origin trust (origin.go), CORS, static headers
package gateway

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitIdle          = 10 * time.Minute
)

// =============================================================================
// RESPONSE WRITER
// =============================================================================

// statusRecorder remembers the status code for the response log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket port take over the connection.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// rateLimiter is a token bucket per client key. Buckets refill continuously
// at rate tokens per second, up to burst.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	max     int

	// done is closed when the sweeper exits.
	done chan struct{}
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// newRateLimiter starts a sweeper that drops idle buckets until stop closes.
func newRateLimiter(rate int, stop <-chan struct{}) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rate),
		burst:   float64(rate),
		max:     MaxRateLimitBuckets,
		done:    make(chan struct{}),
	}
	go rl.sweep(stop, rateLimitSweepInterval)
	return rl
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.max {
			rl.evictIdlest()
		}
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictIdlest drops the bucket seen longest ago. Caller holds mu.
func (rl *rateLimiter) evictIdlest() {
	var key string
	var oldest time.Time
	for k, b := range rl.buckets {
		if key == "" || b.seen.Before(oldest) {
			key, oldest = k, b.seen
		}
	}
	delete(rl.buckets, key)
}

func (rl *rateLimiter) sweep(stop <-chan struct{}, every time.Duration) {
	defer close(rl.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			rl.forget(now.Add(-rateLimitIdle))
		}
	}
}

// forget drops buckets not seen since cutoff.
func (rl *rateLimiter) forget(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// clientKey is the remote address host. Forwarding headers are ignored:
// the server binds loopback and sits behind no proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)
		r = r.WithContext(monitoring.WithRequestIDContext(r.Context(), requestID))

		g.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID, max(int(r.ContentLength), 0)))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		g.requestLogger.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: rec.status,
			Latency:    time.Since(start),
		})
	})
}

func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				g.alerts.FlagPanic(monitoring.RequestIDFromContext(r.Context()), p, string(debug.Stack()))
				g.writeError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !g.rateLimiter.allow(key, time.Now()) {
			log.Warn().Str("client", key).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// security classifies the caller's origin, answers preflights and rejects
// untrusted origins on every other method.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Add("Vary", "Origin")

		origin := r.Header.Get("Origin")
		level := g.originTrust(origin)
		if origin != "" && level > trustNone {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if level == trustNone {
			log.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("origin rejected")
			g.writeError(w, "origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(withTrust(r.Context(), level)))
	})
}
