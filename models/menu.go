package models

import "time"

// Menu price bounds, in whole rupees.
const (
	MinMenuPrice = 1
	MaxMenuPrice = 1000
)

type MenuItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;index"`
	Description string    `json:"description"`
	Price       int       `json:"price" gorm:"not null;check:menu_item_price_positive,price >= 1"`
	Category    string    `json:"category" gorm:"index"`
	ImageURL    string    `json:"image_url"`
	IsVeg       bool      `json:"is_veg"`
	IsAvailable bool      `json:"is_available" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
