package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
)

// Repository manages persistence for durable carts and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreateByUser(ctx context.Context, userID uint64) (*models.Cart, error)
	FindByID(ctx context.Context, cartID uint64) (*models.Cart, error)
	ReplaceItems(ctx context.Context, cartID uint64, desired map[uint64]int) error
	SyncItem(ctx context.Context, cartID, productID uint64, quantity int) error
	DeleteItems(ctx context.Context, cartID uint64, productIDs []uint64) error
	ClearItems(ctx context.Context, cartID uint64) error
	Touch(ctx context.Context, cartID uint64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetOrCreateByUser loads the user's durable cart with items and products
// preloaded, creating an empty cart on first authenticated use.
func (r *repository) GetOrCreateByUser(ctx context.Context, userID uint64) (*models.Cart, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart = models.Cart{UserID: userID, LastModified: time.Now().UTC()}
		if cerr := r.db.WithContext(ctx).Create(&cart).Error; cerr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, cerr, "creating cart")
		}
		return &cart, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	return &cart, nil
}

func (r *repository) FindByID(ctx context.Context, cartID uint64) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		First(&cart, cartID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	return &cart, nil
}

// ReplaceItems makes the cart's rows mirror the desired product→quantity
// map: missing rows are created, stale quantities updated, absent products
// deleted. The cart's last_modified is touched once at the end.
func (r *repository) ReplaceItems(ctx context.Context, cartID uint64, desired map[uint64]int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.CartItem
		if err := tx.Where("cart_id = ?", cartID).Find(&current).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart items")
		}

		currentByProduct := make(map[uint64]models.CartItem, len(current))
		for _, item := range current {
			currentByProduct[item.ProductID] = item
		}

		for productID, qty := range desired {
			existing, ok := currentByProduct[productID]
			switch {
			case !ok:
				item := models.CartItem{CartID: cartID, ProductID: productID, Quantity: qty}
				if err := tx.Create(&item).Error; err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating cart item")
				}
			case existing.Quantity != qty:
				if err := tx.Model(&models.CartItem{}).
					Where("id = ?", existing.ID).
					Update("quantity", qty).Error; err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart item")
				}
			}
		}

		stale := make([]uint64, 0)
		for productID, item := range currentByProduct {
			if _, keep := desired[productID]; !keep {
				stale = append(stale, item.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&models.CartItem{}).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting stale cart items")
			}
		}

		return touch(ctx, tx, cartID)
	})
}

// SyncItem mirrors one session cart line into the database. A zero
// quantity deletes the row; otherwise it is upserted.
func (r *repository) SyncItem(ctx context.Context, cartID, productID uint64, quantity int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if quantity <= 0 {
			if err := tx.Where("cart_id = ? AND product_id = ?", cartID, productID).
				Delete(&models.CartItem{}).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting cart item")
			}
			return touch(ctx, tx, cartID)
		}
		item := models.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quantity": quantity}),
		}).Create(&item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upserting cart item")
		}
		return touch(ctx, tx, cartID)
	})
}

// DeleteItems removes the given products from the cart, for checkout
// consuming purchased lines without clearing the rest.
func (r *repository) DeleteItems(ctx context.Context, cartID uint64, productIDs []uint64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id IN ?", cartID, productIDs).
		Delete(&models.CartItem{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting cart items")
	}
	return touch(ctx, r.db, cartID)
}

// ClearItems empties the cart completely.
func (r *repository) ClearItems(ctx context.Context, cartID uint64) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart items")
	}
	return touch(ctx, r.db, cartID)
}

// Touch bumps the cart's last_modified stamp.
func (r *repository) Touch(ctx context.Context, cartID uint64) error {
	return touch(ctx, r.db, cartID)
}

func touch(ctx context.Context, db *gorm.DB, cartID uint64) error {
	if err := db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("last_modified", time.Now().UTC()).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touching cart")
	}
	return nil
}
