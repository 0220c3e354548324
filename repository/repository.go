// Package repository is the persistence capability the order core depends on.
// The services only see the Repository interface; GormRepository is the
// relational implementation used for both SQLite and Postgres.
package repository

import (
	"context"
	"errors"
	"time"

	"campus-eats-api/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus means a conditional status update found the order in another state.
	ErrStaleStatus = errors.New("order status changed concurrently")
	// ErrInUse means a menu item is still referenced by order lines.
	ErrInUse = errors.New("record is still referenced")
	// ErrDuplicate means a unique field is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// OrderFilter narrows ListOrders. Zero fields are ignored.
type OrderFilter struct {
	UserID   uint
	Statuses []models.OrderStatus
	Limit    int
	// Oldest lists first-in first-out, as the kitchen queue wants.
	Oldest bool
}

// StatusChange is one conditional transition: it applies only while the
// order is still in From, and writes a history row with it.
type StatusChange struct {
	OrderID   uint
	From      models.OrderStatus
	To        models.OrderStatus
	Fields    map[string]interface{}
	ChangedBy string
	Note      string
}

// OrderStats aggregates orders for the admin dashboard.
type OrderStats struct {
	Counts       map[models.OrderStatus]int64 `json:"counts"`
	TotalOrders  int64                        `json:"total_orders"`
	Revenue      int64                        `json:"revenue"`
	RevenueToday int64                        `json:"revenue_today"`
	GeneratedAt  time.Time                    `json:"generated_at"`
}

// RevenueStatuses are the states in which an order's money is considered received.
var RevenueStatuses = []models.OrderStatus{
	models.StatusPaid,
	models.StatusPreparing,
	models.StatusReady,
	models.StatusCompleted,
}

type Repository interface {
	ListMenu(ctx context.Context) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error)
	GetMenuItems(ctx context.Context, ids []uint) ([]models.MenuItem, error)
	CreateMenuItem(ctx context.Context, item *models.MenuItem) error
	SaveMenuItem(ctx context.Context, item *models.MenuItem) error
	DeleteMenuItem(ctx context.Context, id uint) error

	// CreateOrder inserts the order, its lines and its history rows together.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	ApplyStatusChange(ctx context.Context, ch StatusChange) error
	// ClaimReference binds ref to orderID for good. Claiming a reference the
	// order already holds is a no-op; one held by another order is ErrDuplicate.
	ClaimReference(ctx context.Context, ref string, orderID uint) error
	FindUncollectedByOTP(ctx context.Context, otp string, limit int) ([]models.Order, error)
	OrderStats(ctx context.Context, since time.Time) (*OrderStats, error)

	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
	// UpsertSetting updates the key in place or creates it, bumping Version.
	UpsertSetting(ctx context.Context, s *models.Setting) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, role models.UserRole) ([]models.User, error)

	// Transaction runs fn against a repository bound to one database transaction.
	Transaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
}
