package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-eats-api/cache"
	"campus-eats-api/events"
	"campus-eats-api/models"
	"campus-eats-api/repository"

	"go.uber.org/zap"
)

// PublicConfig is what clients need before placing an order.
type PublicConfig struct {
	ShopStatus  string `json:"shop_status"`
	ShopOpen    bool   `json:"shop_open"`
	PaymentMode string `json:"payment_mode"`
	UPIID       string `json:"upi_id"`
}

// SettingInput is one upsert.
type SettingInput struct {
	Key         string
	Value       string
	Category    string
	Description string
}

type SettingsService struct {
	repo   repository.Repository
	cache  *cache.Cache
	events *events.Publisher
	logger *zap.SugaredLogger
	ttl    time.Duration
}

func NewSettingsService(repo repository.Repository, c *cache.Cache, pub *events.Publisher, logger *zap.SugaredLogger, ttl time.Duration) *SettingsService {
	return &SettingsService{repo: repo, cache: c, events: pub, logger: logger, ttl: ttl}
}

func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	return s.repo.ListSettings(ctx)
}

// Save upserts a setting. Writing shop_status publishes the new flag as part
// of the same operation.
func (s *SettingsService) Save(ctx context.Context, in SettingInput) (*models.Setting, error) {
	in.Key = strings.TrimSpace(in.Key)
	if in.Key == "" {
		return nil, invalid("key", "is required")
	}
	if in.Key == models.SettingShopStatus {
		in.Value = strings.ToLower(strings.TrimSpace(in.Value))
		if in.Value != models.ShopOpen && in.Value != models.ShopClosed {
			return nil, invalid("value", "shop_status must be %q or %q", models.ShopOpen, models.ShopClosed)
		}
	}

	setting := &models.Setting{
		Key:         in.Key,
		Value:       in.Value,
		Category:    in.Category,
		Description: in.Description,
	}
	if err := s.repo.UpsertSetting(ctx, setting); err != nil {
		return nil, fmt.Errorf("save setting %s: %w", in.Key, err)
	}
	s.cache.Invalidate(ctx, cache.KeySettings)

	if setting.Key == models.SettingShopStatus {
		res := s.events.ShopStatusChanged(ctx, setting.Value != models.ShopClosed)
		s.logger.Infow("shop status changed", "value", setting.Value, "version", setting.Version, "event", res.String())
	}
	return setting, nil
}

// Public returns the client-facing configuration through the shared cache.
func (s *SettingsService) Public(ctx context.Context) (*PublicConfig, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.KeySettings, s.ttl, s.loadPublic)
}

func (s *SettingsService) loadPublic(ctx context.Context) (*PublicConfig, error) {
	cfg := &PublicConfig{ShopStatus: models.ShopOpen, ShopOpen: true, PaymentMode: "manual"}
	read := func(key string, dst *string) error {
		setting, err := s.repo.GetSetting(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		*dst = setting.Value
		return nil
	}
	if err := read(models.SettingShopStatus, &cfg.ShopStatus); err != nil {
		return nil, err
	}
	if err := read(models.SettingPaymentMode, &cfg.PaymentMode); err != nil {
		return nil, err
	}
	if err := read(models.SettingUPIID, &cfg.UPIID); err != nil {
		return nil, err
	}
	cfg.ShopOpen = cfg.ShopStatus != models.ShopClosed
	return cfg, nil
}

// ShopOpen reads the authoritative flag, bypassing caches.
func (s *SettingsService) ShopOpen(ctx context.Context) (bool, error) {
	return shopOpen(ctx, s.repo)
}
