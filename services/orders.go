package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-eats-api/cache"
	"campus-eats-api/events"
	"campus-eats-api/models"
	"campus-eats-api/notify"
	"campus-eats-api/repository"
	"campus-eats-api/statemachine"

	"go.uber.org/zap"
)

// Cart limits.
const (
	MaxCartLines     = 30
	MaxLineQuantity  = 50
	MaxCartQuantity  = 100
	MaxRejectReason  = 255
	DefaultListLimit = 200
)

// KitchenStatuses are the orders the kitchen works on, oldest first.
var KitchenStatuses = []models.OrderStatus{models.StatusPaid, models.StatusPreparing, models.StatusReady}

// CartLine is one requested menu item. Any price the client sends is ignored.
type CartLine struct {
	MenuItemID uint
	Quantity   int
}

type OrderService struct {
	repo     repository.Repository
	cache    *cache.Cache
	events   *events.Publisher
	mailer   notify.Mailer
	logger   *zap.SugaredLogger
	maxTotal int
	statsTTL time.Duration
	now      func() time.Time
}

type OrderServiceConfig struct {
	MaxOrderTotal int
	StatsCacheTTL time.Duration
}

func NewOrderService(
	repo repository.Repository,
	c *cache.Cache,
	pub *events.Publisher,
	mailer notify.Mailer,
	logger *zap.SugaredLogger,
	cfg OrderServiceConfig,
) *OrderService {
	return &OrderService{
		repo:     repo,
		cache:    c,
		events:   pub,
		mailer:   mailer,
		logger:   logger,
		maxTotal: cfg.MaxOrderTotal,
		statsTTL: cfg.StatsCacheTTL,
		now:      time.Now,
	}
}

// Create places an order for the actor. The total is computed here from
// current menu prices, and lines snapshot those prices.
func (s *OrderService) Create(ctx context.Context, actor Actor, lines []CartLine) (*models.Order, error) {
	open, err := shopOpen(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, ErrShopClosed
	}

	if err := validateCart(lines); err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.MenuItemID)
	}
	found, err := s.repo.GetMenuItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}
	menu := make(map[uint]models.MenuItem, len(found))
	for _, m := range found {
		menu[m.ID] = m
	}

	total := 0
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		m, ok := menu[l.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("menu item %d: %w", l.MenuItemID, ErrNotFound)
		}
		if !m.IsAvailable {
			return nil, invalid("items", "item '%s' is currently unavailable, remove it from the cart", m.Name)
		}
		total += m.Price * l.Quantity
		items = append(items, models.OrderItem{
			MenuItemID: m.ID,
			Quantity:   l.Quantity,
			Price:      m.Price,
			Name:       m.Name,
		})
	}
	if total > s.maxTotal {
		return nil, invalid("items", "order total (%d) exceeds the maximum allowed amount (%d)", total, s.maxTotal)
	}

	uid := actor.UserID
	order := &models.Order{
		UserID:      &uid,
		Status:      models.StatusPending,
		TotalAmount: total,
		Items:       items,
		StatusHistory: []models.OrderStatusHistory{{
			ToStatus:  models.StatusPending,
			ChangedBy: actor.label(),
			Note:      "order placed",
		}},
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.cache.Invalidate(ctx, cache.KeyAdminStats)
	s.logger.Infow("order placed", "order_id", order.ID, "user_id", uid, "total", total, "lines", len(items))
	return order, nil
}

func validateCart(lines []CartLine) error {
	if len(lines) == 0 {
		return invalid("items", "cart is empty")
	}
	if len(lines) > MaxCartLines {
		return invalid("items", "at most %d lines per order", MaxCartLines)
	}
	qty := 0
	for _, l := range lines {
		if l.Quantity < 1 || l.Quantity > MaxLineQuantity {
			return invalid("quantity", "quantity must be between 1 and %d", MaxLineQuantity)
		}
		qty += l.Quantity
	}
	if qty > MaxCartQuantity {
		return invalid("items", "at most %d items per order", MaxCartQuantity)
	}
	return nil
}

// Get returns an order visible to actor.
func (s *OrderService) Get(ctx context.Context, actor Actor, id uint) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, translate(err, "order")
	}
	if !actor.canView(order) {
		return nil, fmt.Errorf("order %d does not belong to you: %w", id, ErrForbidden)
	}
	return order, nil
}

// Mine lists the actor's own orders, newest first.
func (s *OrderService) Mine(ctx context.Context, actor Actor) ([]models.Order, error) {
	return s.repo.ListOrders(ctx, repository.OrderFilter{UserID: actor.UserID, Limit: DefaultListLimit})
}

// List is the staff view over all orders, optionally narrowed to one status.
func (s *OrderService) List(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	f := repository.OrderFilter{Limit: DefaultListLimit}
	if status != "" {
		if !status.Valid() {
			return nil, invalid("status", "unknown status %q", status)
		}
		f.Statuses = []models.OrderStatus{status}
	}
	return s.repo.ListOrders(ctx, f)
}

// KitchenQueue lists paid work in arrival order.
func (s *OrderService) KitchenQueue(ctx context.Context) ([]models.Order, error) {
	return s.repo.ListOrders(ctx, repository.OrderFilter{Statuses: KitchenStatuses, Oldest: true})
}

// UpdateStatus is the staff transition entry point. Requesting the current
// status is a no-op. Moving to Paid mints a collection OTP; moving to
// Payment_Rejected records note as the reason.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, id uint, to models.OrderStatus, note string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if !to.Valid() {
		return nil, invalid("status", "unknown status %q", to)
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, translate(err, "order")
	}
	if order.Status == to {
		return order, nil
	}
	if err := statemachine.CanTransition(order.Status, to); err != nil {
		return nil, err
	}

	switch to {
	case models.StatusPendingVerification:
		return nil, fmt.Errorf("payment proof is submitted by the order owner: %w", ErrForbidden)
	case models.StatusPaid:
		return s.markPaid(ctx, actor, order, note)
	case models.StatusPaymentRejected:
		return s.markRejected(ctx, actor, order, note)
	}
	return s.apply(ctx, repository.StatusChange{
		OrderID:   order.ID,
		From:      order.Status,
		To:        to,
		ChangedBy: actor.label(),
		Note:      note,
	})
}

func (s *OrderService) markPaid(ctx context.Context, actor Actor, order *models.Order, note string) (*models.Order, error) {
	otp, err := NewOTP()
	if err != nil {
		return nil, err
	}
	updated, err := s.apply(ctx, repository.StatusChange{
		OrderID: order.ID,
		From:    order.Status,
		To:      models.StatusPaid,
		Fields: map[string]interface{}{
			"otp":              otp,
			"verified_by":      actor.label(),
			"rejection_reason": "",
		},
		ChangedBy: actor.label(),
		Note:      note,
	})
	if err != nil {
		return nil, err
	}
	s.sendOTP(ctx, updated)
	return updated, nil
}

func (s *OrderService) markRejected(ctx context.Context, actor Actor, order *models.Order, reason string) (*models.Order, error) {
	if reason == "" {
		return nil, invalid("reason", "a rejection reason is required")
	}
	if len(reason) > MaxRejectReason {
		return nil, invalid("reason", "at most %d characters", MaxRejectReason)
	}
	return s.apply(ctx, repository.StatusChange{
		OrderID: order.ID,
		From:    order.Status,
		To:      models.StatusPaymentRejected,
		Fields: map[string]interface{}{
			"rejection_reason":  reason,
			"verified_by":       actor.label(),
			"payment_submitted": false,
		},
		ChangedBy: actor.label(),
		Note:      reason,
	})
}

// apply writes one conditional transition and runs its side effects.
func (s *OrderService) apply(ctx context.Context, ch repository.StatusChange) (*models.Order, error) {
	if err := s.repo.ApplyStatusChange(ctx, ch); err != nil {
		return nil, translate(err, "order")
	}
	return s.committed(ctx, ch.OrderID, ch.From)
}

// committed reloads a changed order, drops derived caches and broadcasts it.
func (s *OrderService) committed(ctx context.Context, id uint, from models.OrderStatus) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, translate(err, "order")
	}
	s.cache.Invalidate(ctx, cache.KeyAdminStats)
	res := s.events.OrderUpdated(ctx, order)
	s.logger.Infow("order status changed",
		"order_id", order.ID,
		"from", from,
		"to", order.Status,
		"event", res.String(),
	)
	return order, nil
}

func (s *OrderService) sendOTP(ctx context.Context, order *models.Order) {
	if order.UserID == nil {
		return
	}
	user, err := s.repo.GetUser(ctx, *order.UserID)
	if err != nil {
		s.logger.Warnw("cannot load order owner for otp email", "order_id", order.ID, "error", err)
		return
	}
	body := fmt.Sprintf("Your payment for order #%d is verified. Show this code at the counter to collect it: %s", order.ID, order.OTP)
	if !s.mailer.Send(context.WithoutCancel(ctx), user.Email, "Your collection code", body) {
		s.logger.Warnw("otp email not delivered", "order_id", order.ID, "user_id", user.ID)
	}
}

// VerifyOTP finds the single uncollected order holding code. It confirms the
// handover only; completing the order is a separate transition.
func (s *OrderService) VerifyOTP(ctx context.Context, actor Actor, code string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if !validOTP(code) {
		return nil, invalid("otp", "must be %d digits", OTPLength)
	}
	matches, err := s.repo.FindUncollectedByOTP(ctx, code, 2)
	if err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		if len(matches) > 1 {
			s.logger.Warnw("ambiguous collection otp", "matches", len(matches))
		}
		return nil, fmt.Errorf("invalid otp or order already collected: %w", ErrNotFound)
	}
	return &matches[0], nil
}

// Stats returns dashboard aggregates through the shared cache.
func (s *OrderService) Stats(ctx context.Context) (*repository.OrderStats, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.KeyAdminStats, s.statsTTL, func(ctx context.Context) (*repository.OrderStats, error) {
		now := s.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return s.repo.OrderStats(ctx, midnight)
	})
}

// shopOpen reads the shop flag from the database at decision time. A
// missing setting means open.
func shopOpen(ctx context.Context, repo repository.Repository) (bool, error) {
	setting, err := repo.GetSetting(ctx, models.SettingShopStatus)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read shop status: %w", err)
	}
	return setting.Value != models.ShopClosed, nil
}
