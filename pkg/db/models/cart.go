package models

import "time"

// Cart is the durable, per-user mirror of the session cart. `last_modified`
// is the whole-cart conflict stamp compared against the browser session to
// detect edits from another tab or device.
type Cart struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       uint64     `gorm:"column:user_id;not null;uniqueIndex"`
	LastModified time.Time  `gorm:"column:last_modified;not null;index"`
	Items        []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// CartItem holds one product line of a durable cart. At most one row may
// exist per (cart, product).
type CartItem struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CartID    uint64    `gorm:"column:cart_id;not null;uniqueIndex:idx_cart_product"`
	ProductID uint64    `gorm:"column:product_id;not null;uniqueIndex:idx_cart_product"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`
	Product   *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
