package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
)

// Repository manages persistence for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uint64) (*models.Order, error)
	FindByIDForUser(ctx context.Context, orderID, userID uint64) (*models.Order, error)
	FindByIDLocked(ctx context.Context, orderID uint64) (*models.Order, error)
	ListByUser(ctx context.Context, userID uint64) ([]models.Order, error)
	FindPendingExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	TransitionStatus(ctx context.Context, orderID uint64, from, to enums.OrderStatus) (bool, error)
	AttachInvoice(ctx context.Context, orderID, invoiceID uint64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, orderID uint64) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("id = ?", orderID))
}

func (r *repository) FindByIDForUser(ctx context.Context, orderID, userID uint64) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("id = ? AND user_id = ?", orderID, userID))
}

// FindByIDLocked loads the order row under FOR UPDATE so concurrent
// confirmation and expiry serialize on it.
func (r *repository) FindByIDLocked(ctx context.Context, orderID uint64) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID))
}

func (r *repository) find(ctx context.Context, query *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := query.
		Preload("Items").
		Preload("Items.Product").
		Preload("Shipment").
		Preload("Shipment.Method").
		Preload("Invoice").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uint64) ([]models.Order, error) {
	var list []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return list, nil
}

// FindPendingExpiredIDs returns ids of pending orders whose expiry window
// closed before the cutoff, oldest first.
func (r *repository) FindPendingExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND expire_at IS NOT NULL AND expire_at < ?", enums.OrderStatusPending, cutoff).
		Order("expire_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding expired orders")
	}
	return ids, nil
}

// TransitionStatus flips the status only when the current value matches
// `from`; the boolean reports whether the guarded update applied.
func (r *repository) TransitionStatus(ctx context.Context, orderID uint64, from, to enums.OrderStatus) (bool, error) {
	update := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if update.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, update.Error, "updating order status")
	}
	return update.RowsAffected > 0, nil
}

func (r *repository) AttachInvoice(ctx context.Context, orderID, invoiceID uint64) error {
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("invoice_id", invoiceID).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attaching invoice")
	}
	return nil
}
