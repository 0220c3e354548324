package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds dialing and every single operation.
	Timeout time.Duration
}

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client  *redis.Client
	health  *Health
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewRedisStore connects to Redis. A failed initial ping leaves the store
// unavailable rather than returning an error; KeepAlive retries later.
func NewRedisStore(ctx context.Context, opts Options, logger *zap.SugaredLogger) *RedisStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		MaxRetries:   -1,
	})
	s := &RedisStore{
		client:  client,
		health:  NewHealth(false),
		timeout: opts.Timeout,
		logger:  logger,
	}
	if err := s.Reconnect(ctx); err != nil {
		logger.Warnw("shared store unavailable at startup, running degraded", "addr", opts.Addr, "error", err)
	}
	return s
}

func (s *RedisStore) Health() *Health { return s.health }

// Reconnect pings the server and marks the store available on success.
func (s *RedisStore) Reconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if s.health.MarkUp() {
		s.logger.Infow("shared store connected", "addr", s.client.Options().Addr)
	}
	return nil
}

// KeepAlive pings every interval until ctx ends: a failed ping marks the store
// unavailable and a successful one brings it back.
func (s *RedisStore) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconnect(ctx); err != nil && ctx.Err() == nil {
				s.fail("ping", err)
			}
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) fail(op string, err error) {
	if s.health.MarkDown() {
		s.logger.Warnw("shared store unavailable, degrading", "op", op, "error", err)
	}
}

// do runs fn under the operation timeout and converts infrastructure failures
// into ErrUnavailable.
func (s *RedisStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !s.health.Available() {
		return ErrUnavailable
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := fn(opCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrMiss
	case ctx.Err() != nil:
		// the caller went away; that says nothing about the store
		return ctx.Err()
	}
	s.fail(op, err)
	return ErrUnavailable
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do(ctx, "incr", func(ctx context.Context) error {
		var err error
		n, err = s.client.Incr(ctx, key).Result()
		return err
	})
	return n, err
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.do(ctx, "expire", func(ctx context.Context) error {
		return s.client.Expire(ctx, key, ttl).Err()
	})
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var err error
		val, err = s.client.Get(ctx, key).Bytes()
		return err
	})
	return val, err
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.do(ctx, "set", func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.do(ctx, "del", func(ctx context.Context) error {
		return s.client.Del(ctx, keys...).Err()
	})
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.do(ctx, "publish", func(ctx context.Context) error {
		return s.client.Publish(ctx, channel, payload).Err()
	})
}

func (s *RedisStore) Subscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	if !s.health.Available() {
		return nil, ErrUnavailable
	}
	ps := s.client.PSubscribe(ctx, patterns...)
	err := s.do(ctx, "psubscribe", func(ctx context.Context) error {
		// wait for the server to confirm every pattern
		for range patterns {
			if _, err := ps.Receive(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", patterns, err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan Message, 64), done: make(chan struct{})}
	go sub.pump(s.health.Down())
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (r *redisSubscription) pump(down <-chan struct{}) {
	defer close(r.out)
	defer r.ps.Close()
	in := r.ps.Channel()
	for {
		select {
		case <-r.done:
			return
		case <-down:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case r.out <- Message{Channel: msg.Channel, Pattern: msg.Pattern, Payload: []byte(msg.Payload)}:
			case <-r.done:
				return
			}
		}
	}
}

func (r *redisSubscription) Messages() <-chan Message { return r.out }

func (r *redisSubscription) Close() error {
	r.once.Do(func() { close(r.done) })
	return nil
}
