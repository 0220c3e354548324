package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"campus-eats-api/auth"
	"campus-eats-api/cache"
	"campus-eats-api/config"
	"campus-eats-api/events"
	"campus-eats-api/logging"
	"campus-eats-api/models"
	"campus-eats-api/repository"
	"campus-eats-api/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to, subject, body})
	return true
}

type fakeProofs struct {
	uploads int
	err     error
}

func (f *fakeProofs) Upload(_ context.Context, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	io.Copy(io.Discard, r)
	f.uploads++
	return "11111111-2222-4333-8444-555555555555.png", nil
}

func (f *fakeProofs) SignedURL(handle string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Unix(1_700_000_000, 0).Add(ttl)
	return "http://api.test/proofs/" + handle + "?sig=x", exp, nil
}

type harness struct {
	repo     *repository.GormRepository
	store    *store.RedisStore
	mr       *miniredis.Miniredis
	cache    *cache.Cache
	orders   *OrderService
	payments *PaymentService
	menu     *MenuService
	settings *SettingsService
	users    *UserService
	mailer   *fakeMailer
	proofs   *fakeProofs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := config.InitDB("file::memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	s := store.NewRedisStore(context.Background(), store.Options{Addr: mr.Addr(), Timeout: time.Second}, logging.Nop())
	t.Cleanup(func() { s.Close() })

	log := logging.Nop()
	repo := repository.NewGormRepository(db)
	c := cache.New(s, log)
	pub := events.NewPublisher(s, log)
	mailer := &fakeMailer{}
	proofs := &fakeProofs{}

	orders := NewOrderService(repo, c, pub, mailer, log, OrderServiceConfig{MaxOrderTotal: 10000, StatsCacheTTL: 2 * time.Minute})
	return &harness{
		repo:     repo,
		store:    s,
		mr:       mr,
		cache:    c,
		orders:   orders,
		payments: NewPaymentService(orders, proofs, 5*time.Minute, log),
		menu:     NewMenuService(repo, c, pub, log, time.Minute, time.Minute),
		settings: NewSettingsService(repo, c, pub, log, time.Minute),
		users:    NewUserService(repo, auth.NewTokenIssuer("test-secret", time.Hour), log),
		mailer:   mailer,
		proofs:   proofs,
	}
}

func (h *harness) student(t *testing.T, name string) Actor {
	t.Helper()
	u, err := h.users.Create(context.Background(), name, "password1", models.RoleStudent, name+"@campus.test", "")
	require.NoError(t, err)
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (h *harness) staff(t *testing.T, name string) Actor {
	t.Helper()
	u, err := h.users.Create(context.Background(), name, "password1", models.RoleAdmin, "", "")
	require.NoError(t, err)
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (h *harness) item(t *testing.T, name string, price int) *models.MenuItem {
	t.Helper()
	it, err := h.menu.Create(context.Background(), MenuInput{Name: name, Price: price, Category: "meals", IsAvailable: true})
	require.NoError(t, err)
	return it
}

func (h *harness) order(t *testing.T, actor Actor, item *models.MenuItem, qty int) *models.Order {
	t.Helper()
	o, err := h.orders.Create(context.Background(), actor, []CartLine{{MenuItemID: item.ID, Quantity: qty}})
	require.NoError(t, err)
	return o
}

// subscribe listens on the shared store directly so tests can assert broadcasts.
func (h *harness) subscribe(t *testing.T, patterns ...string) store.Subscription {
	t.Helper()
	sub, err := h.store.Subscribe(context.Background(), patterns...)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

func expectMessage(t *testing.T, sub store.Subscription) store.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
	return store.Message{}
}

func expectSilence(t *testing.T, sub store.Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message on %s", msg.Channel)
	case <-time.After(150 * time.Millisecond):
	}
}

func statusFields(id uint, from, to models.OrderStatus, otp string) repository.StatusChange {
	return repository.StatusChange{
		OrderID: id,
		From:    from,
		To:      to,
		Fields:  map[string]interface{}{"otp": otp},
	}
}
