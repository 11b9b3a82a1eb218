package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/pkg/enums"
)

// Order is created once per checkout attempt, always in status pending.
// Totals and item prices are frozen at creation time; they never recompute
// from the catalog.
type Order struct {
	ID              uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          uint64            `gorm:"column:user_id;not null;index"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'pending';index"`
	PaymentMethodID uint64            `gorm:"column:payment_method_id;not null"`
	ShipmentOrderID uint64            `gorm:"column:shipment_order_id;not null"`
	InvoiceID       *uint64           `gorm:"column:invoice_id"`

	// Billing snapshot entered by the buyer at checkout. The gateway payer,
	// which may differ, lives on the Invoice.
	Name        string `gorm:"column:name"`
	DNI         string `gorm:"column:dni"`
	Email       string `gorm:"column:email"`
	Cellphone   string `gorm:"column:cellphone"`
	DetailOrder string `gorm:"column:detail_order"`

	ShipmentCost   decimal.Decimal `gorm:"column:shipment_cost;type:numeric(9,2);not null;default:0"`
	DiscountCoupon decimal.Decimal `gorm:"column:discount_coupon;type:numeric(9,2);not null;default:0"`
	Total          decimal.Decimal `gorm:"column:total;type:numeric(10,2);not null;default:0"`

	ExpireAt *time.Time `gorm:"column:expire_at;index"`

	Items    []ItemOrder    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipment *ShipmentOrder `gorm:"foreignKey:ShipmentOrderID"`
	Invoice  *Invoice       `gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemOrder freezes one order line: quantity plus the product's original
// price, discount percent and final price as of order creation.
type ItemOrder struct {
	ID            uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       uint64          `gorm:"column:order_id;not null;index"`
	ProductID     uint64          `gorm:"column:product_id;not null;index"`
	Quantity      int             `gorm:"column:quantity;not null"`
	OriginalPrice decimal.Decimal `gorm:"column:original_price;type:numeric(10,2);not null"`
	DiscountPct   int             `gorm:"column:discount_pct;not null;default:0"`
	FinalPrice    decimal.Decimal `gorm:"column:final_price;type:numeric(10,2);not null"`
	Product       *Product        `gorm:"foreignKey:ProductID"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Subtotal is quantity times the frozen final price.
func (i ItemOrder) Subtotal() decimal.Decimal {
	return i.FinalPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShipmentOrder snapshots the delivery details chosen at checkout. Pickup
// orders carry the pickup identity instead of an address.
type ShipmentOrder struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	MethodID   uint64    `gorm:"column:method_id;not null"`
	Address    string    `gorm:"column:address"`
	Province   string    `gorm:"column:province"`
	City       string    `gorm:"column:city"`
	PostalCode string    `gorm:"column:postal_code"`
	Detail     string    `gorm:"column:detail"`
	NamePickup string    `gorm:"column:name_pickup"`
	DNIPickup  string    `gorm:"column:dni_pickup"`
	Method     *ShipmentMethod `gorm:"foreignKey:MethodID"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
