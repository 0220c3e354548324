package models

import "time"

// Well-known setting keys.
const (
	SettingShopStatus  = "shop_status"
	SettingPaymentMode = "payment_mode"
	SettingUPIID       = "upi_id"
)

// Shop status values stored under SettingShopStatus.
const (
	ShopOpen   = "open"
	ShopClosed = "closed"
)

// Setting is a global key/value record. Version grows by one on every write.
type Setting struct {
	Key         string    `json:"key" gorm:"primaryKey"`
	Value       string    `json:"value" gorm:"not null"`
	Category    string    `json:"category" gorm:"default:'general'"`
	Description string    `json:"description"`
	Version     int64     `json:"version" gorm:"not null;default:1"`
	UpdatedAt   time.Time `json:"updated_at"`
}
