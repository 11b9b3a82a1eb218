package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is the inventory unit of the catalog. `stock` counts units that are
// sellable right now; `stock_reserved` counts units held by pending orders.
// `stock + stock_reserved` is invariant under reserve/release; only a commit
// (order fulfilled) lowers the sum.
type Product struct {
	ID             uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string          `gorm:"column:name;not null;uniqueIndex"`
	Slug           string          `gorm:"column:slug;index"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	DiscountPct    int             `gorm:"column:discount_pct;not null;default:0"`
	Available      bool            `gorm:"column:available;not null;default:false"`
	Stock          int             `gorm:"column:stock;not null;default:0"`
	StockReserved  int             `gorm:"column:stock_reserved;not null;default:0"`
	Description    *string         `gorm:"column:description"`
	MainImage      string          `gorm:"column:main_image"`
	GalleryImages  pq.StringArray  `gorm:"column:gallery_images;type:text[]"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// FinalPrice returns the list price with the product discount applied,
// rounded half-up to 2 decimals. Order snapshots freeze this value.
func (p *Product) FinalPrice() decimal.Decimal {
	discount := decimal.NewFromInt(int64(p.DiscountPct)).Div(hundred)
	return p.Price.Mul(one.Sub(discount)).Round(2)
}

// SellableStock returns the stock usable for new carts; an unavailable
// product sells nothing regardless of its counter.
func (p *Product) SellableStock() int {
	if !p.Available {
		return 0
	}
	return p.Stock
}
