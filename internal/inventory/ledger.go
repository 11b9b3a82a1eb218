package inventory

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
)

// ReservationRequest asks to hold Qty units of one product.
type ReservationRequest struct {
	ProductID uint64
	Qty       int
}

// ReservationResult reports the per-product outcome of a batch reserve.
type ReservationResult struct {
	ProductID uint64
	Reserved  bool
	Reason    string
}

// Ledger moves stock between the sellable and reserved pools. Reserve,
// Release and Commit must run inside the caller's transaction; the batch
// either applies fully or not at all.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error)
	Release(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error
	Commit(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error
	ResetAllReserved(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context, ids []uint64) (map[uint64]*models.Product, error)
}

type ledger struct {
	db *gorm.DB
}

// NewLedger returns a Ledger bound to the provided database.
func NewLedger(db *gorm.DB) (Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &ledger{db: db}, nil
}

// Reserve locks every requested product row in ascending id order, then
// moves qty units from stock to stock_reserved. Draining the last unit
// also switches the product off. A product that is unavailable or short
// on stock fails the whole batch with a typed insufficient-stock error
// naming the product, so callers roll back.
func (l *ledger) Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reserve requires a transaction")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to reserve")
	}

	merged := make(map[uint64]int, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %d", req.Qty, req.ProductID))
		}
		merged[req.ProductID] += req.Qty
	}

	ids := make([]uint64, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	// Locking in a stable order keeps concurrent checkouts from deadlocking.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var locked []models.Product
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&locked).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking products")
	}

	byID := make(map[uint64]*models.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}

	results := make([]ReservationResult, 0, len(ids))
	for _, id := range ids {
		qty := merged[id]
		product, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %d not found", id))
		}
		if reason := shortage(product, qty); reason != "" {
			results = append(results, ReservationResult{ProductID: id, Reason: reason})
			return results, insufficientStock(product, qty, reason)
		}
		results = append(results, ReservationResult{ProductID: id, Reserved: true})
	}

	for _, id := range ids {
		qty := merged[id]
		update := tx.WithContext(ctx).Model(&models.Product{}).
			Where("id = ? AND available AND stock >= ?", id, qty).
			Updates(map[string]any{
				"stock":          gorm.Expr("stock - ?", qty),
				"stock_reserved": gorm.Expr("stock_reserved + ?", qty),
				"available":      gorm.Expr("stock - ? > 0", qty),
			})
		if update.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, update.Error, "reserving stock")
		}
		if update.RowsAffected == 0 {
			return nil, insufficientStock(byID[id], qty, "stock changed during reservation")
		}
	}

	return results, nil
}

func shortage(p *models.Product, qty int) string {
	if !p.Available {
		return "product unavailable"
	}
	if p.Stock < qty {
		return fmt.Sprintf("only %d units in stock", p.Stock)
	}
	return ""
}

func insufficientStock(p *models.Product, qty int, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("cannot reserve %d units of %q", qty, p.Name)).
		WithDetails(map[string]any{
			"product_id":   p.ID,
			"product_name": p.Name,
			"requested":    qty,
			"stock":        p.Stock,
			"reason":       reason,
		})
}

// Release returns qty reserved units of a product to the sellable pool
// and switches the product back on once it has stock again.
func (l *ledger) Release(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "release requires a transaction")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d", qty))
	}
	update := tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock_reserved >= ?", productID, qty).
		Updates(map[string]any{
			"stock":          gorm.Expr("stock + ?", qty),
			"stock_reserved": gorm.Expr("stock_reserved - ?", qty),
			"available":      gorm.Expr("stock + ? > 0", qty),
		})
	if update.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, update.Error, "releasing stock")
	}
	if update.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("product %d has fewer than %d reserved units", productID, qty))
	}
	return nil
}

// Commit consumes qty reserved units of a product; the sellable pool is
// untouched because the units left it when they were reserved.
func (l *ledger) Commit(ctx context.Context, tx *gorm.DB, productID uint64, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "commit requires a transaction")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d", qty))
	}
	update := tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock_reserved >= ?", productID, qty).
		Update("stock_reserved", gorm.Expr("stock_reserved - ?", qty))
	if update.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, update.Error, "committing stock")
	}
	if update.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("product %d has fewer than %d reserved units", productID, qty))
	}
	return nil
}

// ResetAllReserved folds every reserved unit back into stock in one
// statement. Admin recovery tool for when the pipeline wedges.
func (l *ledger) ResetAllReserved(ctx context.Context) (int64, error) {
	update := l.db.WithContext(ctx).Model(&models.Product{}).
		Where("stock_reserved > 0").
		Updates(map[string]any{
			"stock":          gorm.Expr("stock + stock_reserved"),
			"stock_reserved": 0,
			"available":      gorm.Expr("stock + stock_reserved > 0"),
		})
	if update.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, update.Error, "resetting reserved stock")
	}
	return update.RowsAffected, nil
}

// Snapshot loads the requested products without locks, keyed by id.
// Missing ids are simply absent from the map.
func (l *ledger) Snapshot(ctx context.Context, ids []uint64) (map[uint64]*models.Product, error) {
	out := make(map[uint64]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := l.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}
