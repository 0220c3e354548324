// Package store is a thin façade over the shared in-memory key-value store.
//
// Every operation either succeeds or reports ErrUnavailable. The first
// infrastructure failure flips the shared Health to unavailable and all later
// calls short-circuit until a reconnect attempt succeeds, so dependents never
// pay a network timeout per request while the store is down.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnavailable means the store is down; callers choose their degraded mode.
	ErrUnavailable = errors.New("shared store unavailable")
	// ErrMiss means the key does not exist.
	ErrMiss = errors.New("key not found")
)

// Message is one payload received on a subscribed channel.
type Message struct {
	Channel string
	Pattern string
	Payload []byte
}

// Subscription streams messages until Close is called or the store goes away,
// at which point the channel is closed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Store is the capability set the rate limiter, cache and event fan-out rely on.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe listens on glob patterns (e.g. "order_updates:*").
	Subscribe(ctx context.Context, patterns ...string) (Subscription, error)
	Health() *Health
}

// Health is the single availability flag shared by every store dependent.
// Only the adapter changes it.
type Health struct {
	available atomic.Bool

	mu   sync.Mutex
	down chan struct{}
}

func NewHealth(available bool) *Health {
	h := &Health{down: make(chan struct{})}
	h.available.Store(available)
	if !available {
		close(h.down)
	}
	return h
}

func (h *Health) Available() bool {
	return h.available.Load()
}

// Down returns a channel closed when the store is (or becomes) unavailable.
func (h *Health) Down() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.down
}

// MarkDown flips to unavailable. It reports whether this call changed the state.
func (h *Health) MarkDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.available.Load() {
		return false
	}
	h.available.Store(false)
	close(h.down)
	return true
}

// MarkUp flips to available. It reports whether this call changed the state.
func (h *Health) MarkUp() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.available.Load() {
		return false
	}
	h.down = make(chan struct{})
	h.available.Store(true)
	return true
}
