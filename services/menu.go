package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campus-eats-api/cache"
	"campus-eats-api/events"
	"campus-eats-api/models"
	"campus-eats-api/repository"

	"go.uber.org/zap"
)

// Menu event actions.
const (
	MenuCreated = "created"
	MenuUpdated = "updated"
	MenuDeleted = "deleted"
)

// MenuInput creates a menu item.
type MenuInput struct {
	Name        string
	Description string
	Price       int
	Category    string
	ImageURL    string
	IsVeg       bool
	IsAvailable bool
}

// MenuPatch updates the non-nil fields of a menu item.
type MenuPatch struct {
	Name        *string
	Description *string
	Price       *int
	Category    *string
	ImageURL    *string
	IsVeg       *bool
	IsAvailable *bool
}

// MenuFilter narrows a listing after it is read from cache.
type MenuFilter struct {
	Category      string
	VegOnly       bool
	AvailableOnly bool
}

// MenuService reads the menu through a process-local cache in front of the
// shared cache, and invalidates both on every write.
type MenuService struct {
	repo      repository.Repository
	cache     *cache.Cache
	local     *cache.Local[[]models.MenuItem]
	events    *events.Publisher
	logger    *zap.SugaredLogger
	sharedTTL time.Duration
}

func NewMenuService(repo repository.Repository, c *cache.Cache, pub *events.Publisher, logger *zap.SugaredLogger, localTTL, sharedTTL time.Duration) *MenuService {
	return &MenuService{
		repo:      repo,
		cache:     c,
		local:     cache.NewLocal[[]models.MenuItem](localTTL),
		events:    pub,
		logger:    logger,
		sharedTTL: sharedTTL,
	}
}

// List returns menu items, unavailable ones included unless filtered out.
func (m *MenuService) List(ctx context.Context, f MenuFilter) ([]models.MenuItem, error) {
	items, err := m.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MenuItem, 0, len(items))
	for _, it := range items {
		if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
			continue
		}
		if f.VegOnly && !it.IsVeg {
			continue
		}
		if f.AvailableOnly && !it.IsAvailable {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *MenuService) all(ctx context.Context) ([]models.MenuItem, error) {
	if items, ok := m.local.Get(); ok {
		return items, nil
	}
	gen := m.local.Generation()
	items, err := cache.GetOrLoad(ctx, m.cache, cache.KeyMenu, m.sharedTTL, m.repo.ListMenu)
	if err != nil {
		return nil, fmt.Errorf("load menu: %w", err)
	}
	m.local.Set(gen, items)
	return items, nil
}

func (m *MenuService) Get(ctx context.Context, id uint) (*models.MenuItem, error) {
	item, err := m.repo.GetMenuItem(ctx, id)
	return item, translate(err, "menu item")
}

func (m *MenuService) Create(ctx context.Context, in MenuInput) (*models.MenuItem, error) {
	item := &models.MenuItem{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    in.ImageURL,
		IsVeg:       in.IsVeg,
		IsAvailable: in.IsAvailable,
	}
	if err := validateMenuItem(item); err != nil {
		return nil, err
	}
	if err := m.repo.CreateMenuItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save menu item: %w", err)
	}
	m.changed(ctx, MenuCreated, item.ID)
	return item, nil
}

func (m *MenuService) Update(ctx context.Context, id uint, p MenuPatch) (*models.MenuItem, error) {
	item, err := m.repo.GetMenuItem(ctx, id)
	if err != nil {
		return nil, translate(err, "menu item")
	}
	if p.Name != nil {
		item.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = strings.TrimSpace(*p.Category)
	}
	if p.ImageURL != nil {
		item.ImageURL = *p.ImageURL
	}
	if p.IsVeg != nil {
		item.IsVeg = *p.IsVeg
	}
	if p.IsAvailable != nil {
		item.IsAvailable = *p.IsAvailable
	}
	if err := validateMenuItem(item); err != nil {
		return nil, err
	}
	if err := m.repo.SaveMenuItem(ctx, item); err != nil {
		return nil, translate(err, "menu item")
	}
	m.changed(ctx, MenuUpdated, item.ID)
	return item, nil
}

// SetAvailability toggles whether an item can be ordered.
func (m *MenuService) SetAvailability(ctx context.Context, id uint, available bool) (*models.MenuItem, error) {
	return m.Update(ctx, id, MenuPatch{IsAvailable: &available})
}

// Delete removes an item no order references. Referenced items should be
// marked unavailable instead.
func (m *MenuService) Delete(ctx context.Context, id uint) error {
	if err := m.repo.DeleteMenuItem(ctx, id); err != nil {
		return translate(err, "menu item")
	}
	m.changed(ctx, MenuDeleted, id)
	return nil
}

func (m *MenuService) changed(ctx context.Context, action string, id uint) {
	// shared first: a local miss in between must not refill from the old shared copy
	m.cache.Invalidate(ctx, cache.KeyMenu)
	m.local.Invalidate()
	res := m.events.MenuChanged(ctx, action, id)
	m.logger.Infow("menu changed", "action", action, "item_id", id, "event", res.String())
}

func validateMenuItem(item *models.MenuItem) error {
	if item.Name == "" {
		return invalid("name", "is required")
	}
	if len(item.Name) > 100 {
		return invalid("name", "at most 100 characters")
	}
	if item.Price < models.MinMenuPrice || item.Price > models.MaxMenuPrice {
		return invalid("price", "must be between %d and %d", models.MinMenuPrice, models.MaxMenuPrice)
	}
	return nil
}
