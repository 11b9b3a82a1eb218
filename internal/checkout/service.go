package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/internal/cart"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	"github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service executes checkout orchestration: it turns a reconciled durable
// cart into a pending order with every unit reserved.
type Service interface {
	Execute(ctx context.Context, userID uint64, input CheckoutInput) (*models.Order, error)
}

// CheckoutInput is the validated checkout form. Pickup orders carry the
// pickup identity; delivery orders carry the address block.
type CheckoutInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	DNI         string `json:"dni" validate:"required,max=20"`
	Email       string `json:"email" validate:"required,email"`
	Cellphone   string `json:"cellphone" validate:"required,max=30"`
	DetailOrder string `json:"detail_order" validate:"max=500"`

	ShipmentMethodID uint64 `json:"shipment_method_id" validate:"required"`
	PaymentMethodID  uint64 `json:"payment_method_id" validate:"required"`

	Address    string `json:"address" validate:"max=200"`
	Province   string `json:"province" validate:"max=100"`
	City       string `json:"city" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Detail     string `json:"detail" validate:"max=200"`

	NamePickup string `json:"name_pickup" validate:"max=120"`
	DNIPickup  string `json:"dni_pickup" validate:"max=20"`
}

type service struct {
	tx       txRunner
	cartRepo cart.Repository
	ordRepo  orders.Repository
	methods  MethodRegistry
	ledger   inventory.Ledger
	discount DiscountStrategy
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	ordRepo orders.Repository,
	methods MethodRegistry,
	ledger inventory.Ledger,
	discount DiscountStrategy,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if methods == nil {
		return nil, fmt.Errorf("method registry required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if discount == nil {
		discount = NoDiscount{}
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		cartRepo: cartRepo,
		ordRepo:  ordRepo,
		methods:  methods,
		ledger:   ledger,
		discount: discount,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute runs the whole pipeline. Method lookups happen before the
// transaction opens; everything that mutates state happens inside one
// transaction and rolls back together, reservations included.
func (s *service) Execute(ctx context.Context, userID uint64, input CheckoutInput) (*models.Order, error) {
	if userID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires an authenticated user")
	}

	shipMethod, err := s.methods.ActiveShipmentMethod(ctx, input.ShipmentMethodID)
	if err != nil {
		return nil, err
	}
	payMethod, err := s.methods.ActivePaymentMethod(ctx, input.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordRepo := s.ordRepo.WithTx(tx)

		record, err := cartRepo.GetOrCreateByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		requests := make([]inventory.ReservationRequest, len(record.Items))
		for i, item := range record.Items {
			requests[i] = inventory.ReservationRequest{ProductID: item.ProductID, Qty: item.Quantity}
		}
		if _, err := s.ledger.Reserve(ctx, tx, requests); err != nil {
			return err
		}

		shipment := &models.ShipmentOrder{
			MethodID:   shipMethod.ID,
			Address:    input.Address,
			Province:   input.Province,
			City:       input.City,
			PostalCode: input.PostalCode,
			Detail:     input.Detail,
			NamePickup: input.NamePickup,
			DNIPickup:  input.DNIPickup,
		}
		if err := tx.WithContext(ctx).Create(shipment).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating shipment order")
		}

		items, subtotal := freezeItems(record.Items)
		coupon := s.discount.Discount(ctx, subtotal)
		total := subtotal.Add(shipMethod.Price).Sub(coupon)

		expireAt := s.now().Add(time.Duration(payMethod.AllowedHours) * time.Hour)
		order = &models.Order{
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			PaymentMethodID: payMethod.ID,
			ShipmentOrderID: shipment.ID,
			Name:            input.Name,
			DNI:             input.DNI,
			Email:           input.Email,
			Cellphone:       input.Cellphone,
			DetailOrder:     input.DetailOrder,
			ShipmentCost:    shipMethod.Price,
			DiscountCoupon:  coupon,
			Total:           total,
			ExpireAt:        &expireAt,
			Items:           items,
		}
		if err := ordRepo.Create(ctx, order); err != nil {
			return err
		}

		consumed := make([]uint64, len(record.Items))
		for i, item := range record.Items {
			consumed[i] = item.ProductID
		}
		return cartRepo.DeleteItems(ctx, record.ID, consumed)
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID,
		"user_id":  userID,
		"total":    order.Total.String(),
	})
	s.logg.Info(ctx, "order created")
	return order, nil
}

// freezeItems snapshots the catalog price, discount and final price of
// every cart line. Order totals never recompute from the catalog later.
func freezeItems(cartItems []models.CartItem) ([]models.ItemOrder, decimal.Decimal) {
	items := make([]models.ItemOrder, len(cartItems))
	subtotal := decimal.Zero
	for i, line := range cartItems {
		product := line.Product
		final := product.FinalPrice()
		items[i] = models.ItemOrder{
			ProductID:     product.ID,
			Quantity:      line.Quantity,
			OriginalPrice: product.Price,
			DiscountPct:   product.DiscountPct,
			FinalPrice:    final,
		}
		subtotal = subtotal.Add(final.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return items, subtotal
}
