// Package ratelimit implements fixed-window request throttling on the shared store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"campus-eats-api/store"

	"go.uber.org/zap"
)

// Endpoint groups.
const (
	GroupOrderCreate   = "order_create"
	GroupOrderRead     = "order_read"
	GroupOrderStatus   = "order_status"
	GroupMenuRead      = "menu_read"
	GroupMenuWrite     = "menu_write"
	GroupPaymentSubmit = "payment_submit"
	GroupAdminRead     = "admin_read"
	GroupAdminWrite    = "admin_write"
	GroupAuth          = "auth"
)

// skewBuffer keeps a bucket alive a little past its window end.
const skewBuffer = 10 * time.Second

// globalWindow is the window of the system-wide safety valve.
const globalWindow = time.Minute

type Rule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRules are tuned for a lunch rush of a few hundred students.
// Payment submission and auth gate fraud-sensitive paths and are the tightest.
var DefaultRules = map[string]Rule{
	GroupOrderCreate:   {Limit: 20, Window: time.Minute},
	GroupOrderRead:     {Limit: 100, Window: time.Minute},
	GroupOrderStatus:   {Limit: 150, Window: time.Minute},
	GroupMenuRead:      {Limit: 200, Window: time.Minute},
	GroupMenuWrite:     {Limit: 10, Window: time.Minute},
	GroupPaymentSubmit: {Limit: 3, Window: time.Minute},
	GroupAdminRead:     {Limit: 100, Window: time.Minute},
	GroupAdminWrite:    {Limit: 20, Window: time.Minute},
	GroupAuth:          {Limit: 10, Window: 5 * time.Minute},
}

var fallbackRule = Rule{Limit: 100, Window: time.Minute}

// Identity is who a request is counted against: the user when authenticated,
// the client address otherwise.
type Identity struct {
	UserID uint
	IP     string
}

func (id Identity) key() string {
	if id.UserID != 0 {
		return fmt.Sprintf("user:%d", id.UserID)
	}
	return "ip:" + id.IP
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	// Degraded is set when the store was unavailable and the request was let through.
	Degraded bool
}

type Limiter struct {
	store       store.Store
	rules       map[string]Rule
	globalLimit int64
	now         func() time.Time
	logger      *zap.SugaredLogger
}

func NewLimiter(s store.Store, rules map[string]Rule, globalLimit int64, logger *zap.SugaredLogger) *Limiter {
	if rules == nil {
		rules = DefaultRules
	}
	return &Limiter{
		store:       s,
		rules:       rules,
		globalLimit: globalLimit,
		now:         time.Now,
		logger:      logger,
	}
}

// Rule returns the rule applied to group.
func (l *Limiter) Rule(group string) Rule {
	if r, ok := l.rules[group]; ok {
		return r
	}
	return fallbackRule
}

// AllowGlobal checks the system-wide ceiling. It fails open.
func (l *Limiter) AllowGlobal(ctx context.Context) Decision {
	bucket := l.now().Unix() / int64(globalWindow/time.Second)
	key := fmt.Sprintf("allrequests:%d", bucket)
	d := l.hit(ctx, key, Rule{Limit: l.globalLimit, Window: globalWindow}, bucket)
	if !d.Allowed {
		l.logger.Errorw("global rate limit exceeded", "limit", l.globalLimit)
	}
	return d
}

// Allow counts one request of id against group. It fails open.
func (l *Limiter) Allow(ctx context.Context, id Identity, group string) Decision {
	rule := l.Rule(group)
	bucket := l.now().Unix() / int64(rule.Window/time.Second)
	key := fmt.Sprintf("rate_limit:%s:%s:%d", id.key(), group, bucket)
	d := l.hit(ctx, key, rule, bucket)
	if !d.Allowed {
		l.logger.Warnw("rate limit exceeded", "key", key, "limit", rule.Limit)
	}
	return d
}

func (l *Limiter) hit(ctx context.Context, key string, rule Rule, bucket int64) Decision {
	windowSecs := int64(rule.Window / time.Second)
	d := Decision{
		Allowed: true,
		Limit:   rule.Limit,
		ResetAt: time.Unix((bucket+1)*windowSecs, 0),
	}

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		d.Degraded = true
		d.Remaining = rule.Limit
		return d
	}
	if count == 1 {
		// a lost expire only leaves a stale counter behind; the bucket in the key already moved on
		_ = l.store.Expire(ctx, key, rule.Window+skewBuffer)
	}

	d.Remaining = rule.Limit - count
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = count <= rule.Limit
	return d
}
