// Package cache provides cache-aside reads over the shared store and a
// process-local short-TTL layer for the hottest read.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"campus-eats-api/store"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Shared cache keys.
const (
	KeyMenu       = "cache:menu"
	KeySettings   = "cache:settings"
	KeyAdminStats = "cache:admin:stats"
)

// Cache is a cache-aside helper. Values are JSON in the shared store and are
// never treated as the source of truth.
type Cache struct {
	store  store.Store
	logger *zap.SugaredLogger
	keys   sync.Map // key -> *keyState
}

// keyState orders write-backs against invalidations of one key.
type keyState struct {
	mu  sync.Mutex
	gen uint64
}

func New(s store.Store, logger *zap.SugaredLogger) *Cache {
	return &Cache{store: s, logger: logger}
}

func (c *Cache) state(key string) *keyState {
	ks, _ := c.keys.LoadOrStore(key, &keyState{})
	return ks.(*keyState)
}

func (ks *keyState) current() uint64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.gen
}

// Invalidate drops keys from the shared store. Loads that started before the
// call will not write their result back.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		ks := c.state(key)
		ks.mu.Lock()
		ks.gen++
		err := c.store.Delete(ctx, key)
		ks.mu.Unlock()
		if err != nil && !errors.Is(err, store.ErrUnavailable) {
			c.logger.Warnw("cache invalidation failed", "key", key, "error", err)
		}
	}
}

// GetOrLoad returns the cached value for key, or calls load and caches its result for ttl.
// A store outage degrades to calling load every time.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if raw, err := c.store.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warnw("invalid JSON in cache key", "key", key)
	}

	ks := c.state(key)
	before := ks.current()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warnw("cannot encode cache value", "key", key, "error", err)
		return v, nil
	}
	// check and write under the key lock so an invalidation lands wholly before or after
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.gen != before {
		return v, nil
	}
	_ = c.store.SetWithTTL(ctx, key, raw, ttl)
	return v, nil
}

// Local is an in-process single-value cache with a TTL.
type Local[T any] struct {
	mu       sync.RWMutex
	val      T
	ok       bool
	cachedAt time.Time
	gen      uint64
	ttl      time.Duration
	now      func() time.Time
}

func NewLocal[T any](ttl time.Duration) *Local[T] {
	return &Local[T]{ttl: ttl, now: time.Now}
}

// Get returns the value while it is fresh.
func (l *Local[T]) Get() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ok || l.now().Sub(l.cachedAt) >= l.ttl {
		var zero T
		return zero, false
	}
	return l.val, true
}

// Generation identifies the current invalidation epoch; pass it back to Set.
func (l *Local[T]) Generation() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gen
}

// Set stores v unless Invalidate ran after gen was read.
func (l *Local[T]) Set(gen uint64, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return false
	}
	l.val, l.ok, l.cachedAt = v, true, l.now()
	return true
}

func (l *Local[T]) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.val, l.ok = zero, false
	l.gen++
}
