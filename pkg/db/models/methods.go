package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShipmentMethod is a registry entry for a delivery option. The checkout
// pipeline treats an inactive or missing method as a hard validation failure.
type ShipmentMethod struct {
	ID          uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string          `gorm:"column:name;not null"`
	Description string          `gorm:"column:description"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(8,2);not null"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// PaymentMethod is a registry entry for a payment option. AllowedHours is
// the confirmation window granted to a pending order before it expires.
type PaymentMethod struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string    `gorm:"column:name;not null"`
	Description  string    `gorm:"column:description"`
	AllowedHours int       `gorm:"column:allowed_hours;not null;default:2"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
