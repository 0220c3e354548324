package events

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campus-eats-api/store"

	"go.uber.org/zap"
)

var errSubscriptionLost = errors.New("upstream subscription lost")

// upstream is what one process subscribes to on the shared store.
var upstream = []string{"order_updates:*", ChannelMenu, ChannelShop}

// Hub holds one shared-store subscription per process and fans each message
// out to the local connections registered for its channel. Every connection
// drains its own buffer on its own goroutine, so one slow or dead client never
// delays the others: it is dropped once its buffer is full.
type Hub struct {
	store  store.Store
	logger *zap.SugaredLogger
	buffer int
	retry  time.Duration

	ready atomic.Bool

	mu       sync.RWMutex
	exact    map[string]map[*Subscriber]struct{}
	patterns map[*Subscriber][]string
}

func NewHub(s store.Store, logger *zap.SugaredLogger, buffer int, retry time.Duration) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &Hub{
		store:    s,
		logger:   logger,
		buffer:   buffer,
		retry:    retry,
		exact:    make(map[string]map[*Subscriber]struct{}),
		patterns: make(map[*Subscriber][]string),
	}
}

// Ready reports whether the hub is relaying from the shared store.
func (h *Hub) Ready() bool { return h.ready.Load() }

// Run keeps the upstream subscription alive until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for {
		err := h.relay(ctx)
		h.ready.Store(false)
		h.dropAll()
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			h.logger.Warnw("event relay stopped, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.retry):
		}
	}
}

func (h *Hub) relay(ctx context.Context) error {
	sub, err := h.store.Subscribe(ctx, upstream...)
	if err != nil {
		return err
	}
	defer sub.Close()

	h.ready.Store(true)
	h.logger.Infow("event relay subscribed", "patterns", upstream)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return errSubscriptionLost
			}
			h.dispatch(msg.Channel, msg.Payload)
		}
	}
}

// Subscribe registers a connection for channels, which may be glob patterns.
// It fails with store.ErrUnavailable while the hub has no upstream.
func (h *Hub) Subscribe(channels ...string) (*Subscriber, error) {
	s := &Subscriber{
		hub:      h,
		ch:       make(chan []byte, h.buffer),
		channels: channels,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready.Load() {
		return nil, store.ErrUnavailable
	}
	var globs []string
	for _, c := range channels {
		if isPattern(c) {
			globs = append(globs, c)
			continue
		}
		if h.exact[c] == nil {
			h.exact[c] = make(map[*Subscriber]struct{})
		}
		h.exact[c][s] = struct{}{}
	}
	if len(globs) > 0 {
		h.patterns[s] = globs
	}
	return s, nil
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscriber]struct{})
	for _, set := range h.exact {
		for s := range set {
			seen[s] = struct{}{}
		}
	}
	for s := range h.patterns {
		seen[s] = struct{}{}
	}
	return len(seen)
}

func (h *Hub) dispatch(channel string, payload []byte) {
	var slow []*Subscriber

	h.mu.RLock()
	deliver := func(s *Subscriber) {
		select {
		case s.ch <- payload:
		default:
			slow = append(slow, s)
		}
	}
	for s := range h.exact[channel] {
		deliver(s)
	}
	for s, globs := range h.patterns {
		for _, g := range globs {
			if ok, _ := path.Match(g, channel); ok {
				deliver(s)
				break
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warnw("dropping slow subscriber", "channels", s.channels)
		h.remove(s)
	}
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(s)
}

func (h *Hub) unregisterLocked(s *Subscriber) {
	for _, c := range s.channels {
		if set, ok := h.exact[c]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.exact, c)
			}
		}
	}
	delete(h.patterns, s)
	s.once.Do(func() { close(s.ch) })
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.exact {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
	}
	for s := range h.patterns {
		s.once.Do(func() { close(s.ch) })
	}
	h.exact = make(map[string]map[*Subscriber]struct{})
	h.patterns = make(map[*Subscriber][]string)
}

func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Subscriber is one live connection's view of the hub.
type Subscriber struct {
	hub      *Hub
	ch       chan []byte
	channels []string
	once     sync.Once
}

// Messages yields payloads until the subscriber is closed or dropped.
func (s *Subscriber) Messages() <-chan []byte { return s.ch }

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.remove(s)
}
