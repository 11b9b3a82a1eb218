package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lucasmartinez/tienda-backend/pkg/enums"
)

// Invoice is created exactly once, when the gateway confirms payment.
// The payer fields come from the gateway response and are authoritative;
// the name/dni/email trio mirrors what the buyer typed at checkout.
// `invoice_number` derives from the row's own primary key, so it is
// assigned right after the insert, never before.
type Invoice struct {
	ID        uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	FType     enums.InvoiceType `gorm:"column:f_type;not null;default:'B'"`
	Name      string            `gorm:"column:name"`
	DNI       string            `gorm:"column:dni"`
	Email     string            `gorm:"column:email"`
	Cellphone string            `gorm:"column:cellphone"`

	Total        decimal.Decimal `gorm:"column:total;type:numeric(10,2);not null;default:0"`
	ShipmentCost decimal.Decimal `gorm:"column:shipment_cost;type:numeric(9,2);not null;default:0"`
	Discount     decimal.Decimal `gorm:"column:discount;type:numeric(9,2);not null;default:0"`
	TotalGateway decimal.Decimal `gorm:"column:total_gateway;type:numeric(10,2);not null;default:0"`

	PayerName        string `gorm:"column:payer_name"`
	PayerDNI         string `gorm:"column:payer_dni"`
	PayerEmail       string `gorm:"column:payer_email"`
	GatewayPaymentID string `gorm:"column:gateway_payment_id;index"`

	InvoiceNumber *string `gorm:"column:invoice_number;uniqueIndex"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CalcTotal is the grand total the invoice settles: items plus shipping
// minus the coupon discount.
func (i Invoice) CalcTotal() decimal.Decimal {
	return i.Total.Add(i.ShipmentCost).Sub(i.Discount)
}
