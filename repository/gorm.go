package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-eats-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

// ── Menu ──────────────────────────────────────────────────────────

func (r *GormRepository) ListMenu(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	err := r.db.WithContext(ctx).Order("category asc, name asc").Find(&items).Error
	return items, err
}

func (r *GormRepository) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *GormRepository) GetMenuItems(ctx context.Context, ids []uint) ([]models.MenuItem, error) {
	var items []models.MenuItem
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *GormRepository) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *GormRepository) SaveMenuItem(ctx context.Context, item *models.MenuItem) error {
	res := r.db.WithContext(ctx).Model(item).
		Select("name", "description", "price", "category", "image_url", "is_veg", "is_available", "updated_at").
		Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMenuItem refuses while any order line references the item. The
// foreign key's RESTRICT rule backs this up at the database level.
func (r *GormRepository) DeleteMenuItem(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("menu_item_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrInUse
		}
		res := tx.Delete(&models.MenuItem{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ── Orders ────────────────────────────────────────────────────────

func (r *GormRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormRepository) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (r *GormRepository) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Preload("Items")
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	if f.Oldest {
		query = query.Order("created_at asc, id asc")
	} else {
		query = query.Order("created_at desc, id desc")
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	var orders []models.Order
	err := query.Find(&orders).Error
	return orders, err
}

// ApplyStatusChange updates the order only if it is still in ch.From, so two
// concurrent transitions from the same state cannot both succeed.
func (r *GormRepository) ApplyStatusChange(ctx context.Context, ch StatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{"status": ch.To}
		for k, v := range ch.Fields {
			fields[k] = v
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", ch.OrderID, ch.From).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.Order{}).Where("id = ?", ch.OrderID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrStaleStatus
		}
		history := models.OrderStatusHistory{
			OrderID:    ch.OrderID,
			FromStatus: ch.From,
			ToStatus:   ch.To,
			ChangedBy:  ch.ChangedBy,
			Note:       ch.Note,
		}
		return tx.Create(&history).Error
	})
}

func (r *GormRepository) ClaimReference(ctx context.Context, ref string, orderID uint) error {
	db := r.db.WithContext(ctx)
	var held models.PaymentReference
	err := db.Where("reference = ?", ref).First(&held).Error
	switch {
	case err == nil:
		if held.OrderID == orderID {
			return nil
		}
		return ErrDuplicate
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	// the unique index settles two claims racing past the lookup
	if err := db.Create(&models.PaymentReference{Reference: ref, OrderID: orderID}).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *GormRepository) FindUncollectedByOTP(ctx context.Context, otp string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Preload("Items").
		Where("otp = ? AND status <> ?", otp, models.StatusCompleted).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *GormRepository) OrderStats(ctx context.Context, since time.Time) (*OrderStats, error) {
	db := r.db.WithContext(ctx)
	stats := &OrderStats{Counts: make(map[models.OrderStatus]int64, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		stats.Counts[s] = 0
	}

	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	for _, row := range rows {
		stats.Counts[row.Status] = row.Count
		stats.TotalOrders += row.Count
	}

	if err := db.Model(&models.Order{}).
		Where("status IN ?", RevenueStatuses).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&stats.Revenue).Error; err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	if err := db.Model(&models.Order{}).
		Where("status IN ? AND created_at >= ?", RevenueStatuses, since).
		Select("COALESCE(SUM(total_amount), 0)").Scan(&stats.RevenueToday).Error; err != nil {
		return nil, fmt.Errorf("sum revenue today: %w", err)
	}
	stats.GeneratedAt = time.Now().UTC()
	return stats, nil
}

// ── Settings ──────────────────────────────────────────────────────

func (r *GormRepository) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	var s models.Setting
	if err := r.db.WithContext(ctx).Where(&models.Setting{Key: key}).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *GormRepository) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.WithContext(ctx).
		Order("category asc").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&settings).Error
	return settings, err
}

func (r *GormRepository) UpsertSetting(ctx context.Context, s *models.Setting) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Setting
		err := tx.Where(&models.Setting{Key: s.Key}).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if s.Category == "" {
				s.Category = "general"
			}
			s.Version = 1
			return tx.Create(s).Error
		case err != nil:
			return err
		}

		existing.Value = s.Value
		if s.Category != "" {
			existing.Category = s.Category
		}
		if s.Description != "" {
			existing.Description = s.Description
		}
		existing.Version++
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*s = existing
		return nil
	})
}

// ── Users ─────────────────────────────────────────────────────────

func (r *GormRepository) CreateUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		return tx.Create(u).Error
	})
}

func (r *GormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *GormRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *GormRepository) ListUsers(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := r.db.WithContext(ctx).Order("id asc")
	if role != "" {
		query = query.Where("role = ?", role)
	}
	var users []models.User
	err := query.Find(&users).Error
	return users, err
}
