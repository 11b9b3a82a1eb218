package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
)

// MethodRegistry reads the shipment and payment method catalogs. Both are
// operator-managed reference data; only active rows are served.
type MethodRegistry interface {
	ActiveShipmentMethod(ctx context.Context, id uint64) (*models.ShipmentMethod, error)
	ActivePaymentMethod(ctx context.Context, id uint64) (*models.PaymentMethod, error)
	ListShipmentMethods(ctx context.Context) ([]models.ShipmentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
}

type methodRegistry struct {
	db *gorm.DB
}

// NewMethodRegistry returns a registry bound to the provided database.
func NewMethodRegistry(db *gorm.DB) MethodRegistry {
	return &methodRegistry{db: db}
}

func (r *methodRegistry) ActiveShipmentMethod(ctx context.Context, id uint64) (*models.ShipmentMethod, error) {
	var method models.ShipmentMethod
	err := r.db.WithContext(ctx).Where("id = ? AND is_active", id).First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive shipment method")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shipment method")
	}
	return &method, nil
}

func (r *methodRegistry) ActivePaymentMethod(ctx context.Context, id uint64) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).Where("id = ? AND is_active", id).First(&method).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive payment method")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment method")
	}
	return &method, nil
}

func (r *methodRegistry) ListShipmentMethods(ctx context.Context) ([]models.ShipmentMethod, error) {
	var methods []models.ShipmentMethod
	if err := r.db.WithContext(ctx).Where("is_active").Order("id").Find(&methods).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing shipment methods")
	}
	return methods, nil
}

func (r *methodRegistry) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	if err := r.db.WithContext(ctx).Where("is_active").Order("id").Find(&methods).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payment methods")
	}
	return methods, nil
}
