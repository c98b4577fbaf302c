package connector

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter *rate.Limiter
	rpm     int
}

// LimiterRegistry owns one token bucket per connector. Buckets refill at
// requestsPerMinute/60 tokens per second and hold at most requestsPerMinute.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*limiterEntry
}

// NewLimiterRegistry creates an empty registry
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[uuid.UUID]*limiterEntry)}
}

// Get returns the connector's limiter, replacing it when the configured
// rate changed since it was created.
func (r *LimiterRegistry) Get(connectorID uuid.UUID, requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.limiters[connectorID]; ok && e.rpm == requestsPerMinute {
		return e.limiter
	}
	l := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), requestsPerMinute)
	r.limiters[connectorID] = &limiterEntry{limiter: l, rpm: requestsPerMinute}
	return l
}

// Remove forgets a connector's limiter
func (r *LimiterRegistry) Remove(connectorID uuid.UUID) {
	r.mu.Lock()
	delete(r.limiters, connectorID)
	r.mu.Unlock()
}

// Len returns the number of tracked connectors
func (r *LimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Close drops every limiter
func (r *LimiterRegistry) Close() {
	r.mu.Lock()
	r.limiters = make(map[uuid.UUID]*limiterEntry)
	r.mu.Unlock()
}
