// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:    Total and successful message count
//   - completions/failures:  Provider calls and their failures
//   - per-provider counts:   Completions per provider name
//
// Exposed as JSON at GET /stats.
package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests           atomic.Int64
	successes          atomic.Int64
	completions        atomic.Int64
	completionFailures atomic.Int64
	totalLatencyMs     atomic.Int64

	mu         sync.Mutex
	byProvider map[string]int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{byProvider: make(map[string]int64)}
}

// RecordRequest records a handled message.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordCompletion records a provider call.
func (mc *MetricsCollector) RecordCompletion(provider string, success bool, latency time.Duration) {
	mc.completions.Add(1)
	if !success {
		mc.completionFailures.Add(1)
	}
	mc.totalLatencyMs.Add(latency.Milliseconds())

	mc.mu.Lock()
	mc.byProvider[provider]++
	mc.mu.Unlock()
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	stats := map[string]int64{
		"requests":            mc.requests.Load(),
		"successes":           mc.successes.Load(),
		"completions":         mc.completions.Load(),
		"completion_failures": mc.completionFailures.Load(),
		"completion_ms_total": mc.totalLatencyMs.Load(),
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for p, n := range mc.byProvider {
		stats["provider_"+p] = n
	}
	return stats
}
