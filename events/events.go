// Package events publishes state changes on the shared store and relays them
// to live subscriber connections. Delivery is best-effort: the database is the
// source of truth and clients reconcile by polling.
package events

import (
	"context"
	"fmt"
	"time"

	"campus-eats-api/models"
	"campus-eats-api/store"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Channel names on the shared store.
const (
	ChannelMenu = "menu_updates"
	ChannelShop = "shop_status"
	// PatternAllOrders matches every order-scoped channel but not user channels.
	PatternAllOrders = "order_updates:[0-9]*"
)

func OrderChannel(orderID uint) string { return fmt.Sprintf("order_updates:%d", orderID) }

func UserChannel(userID uint) string { return fmt.Sprintf("order_updates:user:%d", userID) }

// Event types.
const (
	TypeOrderUpdate = "order_update"
	TypeMenuUpdate  = "menu_update"
	TypeShopStatus  = "shop_status"
)

// Event is the payload written to every channel.
type Event struct {
	Type      string    `json:"type"`
	OrderID   uint      `json:"order_id,omitempty"`
	UserID    uint      `json:"user_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Action    string    `json:"action,omitempty"`
	ItemID    uint      `json:"item_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result of a publish. A failed publish never fails the write that caused it.
type Result int

const (
	Published Result = iota
	Unavailable
)

func (r Result) String() string {
	if r == Published {
		return "published"
	}
	return "unavailable"
}

type Publisher struct {
	store  store.Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewPublisher(s store.Store, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{store: s, logger: logger, now: time.Now}
}

// OrderUpdated publishes the order's new status on its order and user channels.
func (p *Publisher) OrderUpdated(ctx context.Context, order *models.Order) Result {
	ev := Event{
		Type:      TypeOrderUpdate,
		OrderID:   order.ID,
		Status:    string(order.Status),
		Timestamp: p.now().UTC(),
	}
	channels := []string{OrderChannel(order.ID)}
	if order.UserID != nil {
		ev.UserID = *order.UserID
		channels = append(channels, UserChannel(*order.UserID))
	}
	return p.publish(ctx, ev, channels...)
}

// MenuChanged publishes action ("created", "updated", "deleted") for a menu item.
func (p *Publisher) MenuChanged(ctx context.Context, action string, itemID uint) Result {
	return p.publish(ctx, Event{
		Type:      TypeMenuUpdate,
		Action:    action,
		ItemID:    itemID,
		Timestamp: p.now().UTC(),
	}, ChannelMenu)
}

// ShopStatusChanged publishes the shop open/closed flag.
func (p *Publisher) ShopStatusChanged(ctx context.Context, open bool) Result {
	status := models.ShopClosed
	if open {
		status = models.ShopOpen
	}
	return p.publish(ctx, Event{
		Type:      TypeShopStatus,
		Status:    status,
		Timestamp: p.now().UTC(),
	}, ChannelShop)
}

func (p *Publisher) publish(ctx context.Context, ev Event, channels ...string) Result {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Errorw("cannot encode event", "type", ev.Type, "error", err)
		return Unavailable
	}
	// the write already committed; a client hanging up must not cancel the notification
	ctx = context.WithoutCancel(ctx)

	result := Published
	for _, ch := range channels {
		if err := p.store.Publish(ctx, ch, payload); err != nil {
			result = Unavailable
			break
		}
	}
	p.logger.Debugw("event published", "type", ev.Type, "channels", channels, "result", result.String())
	return result
}
