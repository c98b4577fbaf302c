package cache

import (
	"context"
	"sync"
	"time"

	"github.com/synchub/backend/internal/domain/shared"
)

// InMemoryDeliveryGuard keeps claimed delivery keys in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryDeliveryGuard struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDeliveryGuard creates the guard and starts its cleanup loop
func NewInMemoryDeliveryGuard() *InMemoryDeliveryGuard {
	g := &InMemoryDeliveryGuard{
		entries:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
	g.wg.Add(1)
	go g.cleanupLoop(5 * time.Minute)
	return g
}

// MarkProcessed claims key for ttl. It reports false while an unexpired
// claim exists.
func (g *InMemoryDeliveryGuard) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if expiresAt, ok := g.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.entries[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether key is currently claimed
func (g *InMemoryDeliveryGuard) IsProcessed(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiresAt, ok := g.entries[key]
	return ok && time.Now().Before(expiresAt), nil
}

// Close stops the cleanup loop. Safe to call more than once.
func (g *InMemoryDeliveryGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

func (g *InMemoryDeliveryGuard) cleanupLoop(every time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *InMemoryDeliveryGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, expiresAt := range g.entries {
		if now.After(expiresAt) {
			delete(g.entries, key)
		}
	}
}

// Size returns the number of tracked keys
func (g *InMemoryDeliveryGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

var _ shared.IdempotencyStore = (*InMemoryDeliveryGuard)(nil)
