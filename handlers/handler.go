package handlers

import (
	"context"
	"io"
	"time"

	"campus-eats-api/events"
	"campus-eats-api/services"
	"campus-eats-api/store"

	"go.uber.org/zap"
)

// ProofOpener resolves a signed proof link to its file.
type ProofOpener interface {
	Open(handle, expires, sig string) (io.ReadSeeker, string, error)
}

// Pinger checks the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Orders    *services.OrderService
	Payments  *services.PaymentService
	Menu      *services.MenuService
	Settings  *services.SettingsService
	Users     *services.UserService
	Hub       *events.Hub
	Proofs    ProofOpener
	DB        Pinger
	Store     *store.Health
	Logger    *zap.SugaredLogger
	Heartbeat time.Duration
}

// Handler serves every route. Handlers are thin: they bind input, call one
// service operation and render its outcome.
type Handler struct {
	orders    *services.OrderService
	payments  *services.PaymentService
	menu      *services.MenuService
	settings  *services.SettingsService
	users     *services.UserService
	hub       *events.Hub
	proofs    ProofOpener
	db        Pinger
	store     *store.Health
	logger    *zap.SugaredLogger
	heartbeat time.Duration
}

func New(d Deps) *Handler {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	return &Handler{
		orders:    d.Orders,
		payments:  d.Payments,
		menu:      d.Menu,
		settings:  d.Settings,
		users:     d.Users,
		hub:       d.Hub,
		proofs:    d.Proofs,
		db:        d.DB,
		store:     d.Store,
		logger:    d.Logger,
		heartbeat: d.Heartbeat,
	}
}
