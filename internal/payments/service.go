package payments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/internal/cart"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	"github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
	"github.com/lucasmartinez/tienda-backend/pkg/mercadopago"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
	CreatePreference(ctx context.Context, params mercadopago.PreferenceCreateParams) (*mercadopago.Preference, error)
}

type sessionCarts interface {
	DropForUser(ctx context.Context, userID uint64) error
}

// Outcome classifies what a confirmation attempt did. Every outcome other
// than failed is a success from the gateway's point of view, so redelivered
// notifications always converge.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeNotApproved      Outcome = "not_approved"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeAlreadySettled   Outcome = "already_settled"
)

// ConfirmResult reports the effect of processing one gateway notification.
type ConfirmResult struct {
	Outcome       Outcome `json:"outcome"`
	OrderID       uint64  `json:"order_id,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
}

// PreferenceDTO is what checkout hands the storefront to open the payment
// window.
type PreferenceDTO struct {
	PreferenceID  string          `json:"preference_id"`
	InitPoint     string          `json:"init_point"`
	ComputedTotal string          `json:"computed_total"`
}

// Service drives the pending→confirmed transition and the outbound
// preference creation.
type Service interface {
	Confirm(ctx context.Context, paymentID string) (*ConfirmResult, error)
	CreatePreference(ctx context.Context, orderID, userID uint64) (*PreferenceDTO, error)
}

type service struct {
	tx       txRunner
	ordRepo  orders.Repository
	cartRepo cart.Repository
	ledger   inventory.Ledger
	gateway  gateway
	sessions sessionCarts
	logg     *logger.Logger
}

// NewService builds the payments service.
func NewService(
	tx txRunner,
	ordRepo orders.Repository,
	cartRepo cart.Repository,
	ledger inventory.Ledger,
	gw gateway,
	sessions sessionCarts,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		ordRepo:  ordRepo,
		cartRepo: cartRepo,
		ledger:   ledger,
		gateway:  gw,
		sessions: sessions,
		logg:     logg,
	}, nil
}

// Confirm settles one gateway notification. Unknown references and orders
// already out of pending are logged no-ops, never errors, so the gateway
// can redeliver freely. The whole settlement is one transaction: if any
// piece fails nothing is committed and the redelivery will retry it.
func (s *service) Confirm(ctx context.Context, paymentID string) (*ConfirmResult, error) {
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_id":         payment.ID,
		"external_reference": payment.ExternalReference,
		"payment_status":     payment.Status,
	})

	if !payment.Approved() {
		s.logg.Info(ctx, "payment not approved, nothing to settle")
		return &ConfirmResult{Outcome: OutcomeNotApproved}, nil
	}

	orderID, err := strconv.ParseUint(payment.ExternalReference, 10, 64)
	if err != nil {
		s.logg.Warn(ctx, "gateway sent an unparseable external reference")
		return &ConfirmResult{Outcome: OutcomeUnknownReference}, nil
	}

	result := &ConfirmResult{OrderID: orderID}
	var confirmedUser uint64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordRepo := s.ordRepo.WithTx(tx)
		cartRepo := s.cartRepo.WithTx(tx)

		order, err := ordRepo.FindByIDLocked(ctx, orderID)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				s.logg.Warn(ctx, "gateway referenced an unknown order")
				result.Outcome = OutcomeUnknownReference
				result.OrderID = 0
				return nil
			}
			return err
		}
		if order.Status != enums.OrderStatusPending {
			s.logg.Info(ctx, "order already settled, redelivery ignored")
			result.Outcome = OutcomeAlreadySettled
			return nil
		}

		invoice := buildInvoice(order, payment)
		if err := tx.WithContext(ctx).Create(invoice).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating invoice")
		}
		// the sequential number derives from the invoice's own PK, so it
		// can only be assigned after the insert
		number := fmt.Sprintf("FAC-%06d", invoice.ID)
		if err := tx.WithContext(ctx).Model(invoice).Update("invoice_number", number).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning invoice number")
		}

		applied, err := ordRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		if err := ordRepo.AttachInvoice(ctx, order.ID, invoice.ID); err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := s.ledger.Commit(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		durable, err := cartRepo.GetOrCreateByUser(ctx, order.UserID)
		if err != nil {
			return err
		}
		if err := cartRepo.ClearItems(ctx, durable.ID); err != nil {
			return err
		}

		confirmedUser = order.UserID
		result.Outcome = OutcomeConfirmed
		result.InvoiceNumber = number
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeConfirmed {
		if s.sessions != nil {
			if derr := s.sessions.DropForUser(ctx, confirmedUser); derr != nil {
				// the durable cart is already cleared; the session blob will
				// be re-folded from it on next access
				s.logg.Warn(s.logg.WithField(ctx, "user_id", confirmedUser), "dropping session cart failed")
			}
		}
		s.logg.Info(ctx, "order confirmed and invoiced")
	}
	return result, nil
}

// buildInvoice freezes the settlement: order identity from the checkout
// form, payer identity from the gateway (authoritative), amounts from the
// frozen order lines cross-checked against what the gateway collected.
func buildInvoice(order *models.Order, payment *mercadopago.Payment) *models.Invoice {
	itemsTotal := order.Total.Sub(order.ShipmentCost).Add(order.DiscountCoupon)
	return &models.Invoice{
		FType:            enums.InvoiceTypeB,
		Name:             order.Name,
		DNI:              order.DNI,
		Email:            order.Email,
		Cellphone:        order.Cellphone,
		Total:            itemsTotal,
		ShipmentCost:     order.ShipmentCost,
		Discount:         order.DiscountCoupon,
		TotalGateway:     payment.TransactionDetails.TotalPaidAmount,
		PayerName:        payment.Payer.FullName(),
		PayerDNI:         payment.Payer.Identification.Number,
		PayerEmail:       payment.Payer.Email,
		GatewayPaymentID: strconv.FormatInt(payment.ID, 10),
	}
}

// CreatePreference opens a checkout-pro window for a pending order: every
// frozen order line becomes a preference item and the shipment cost rides
// along as one more line, so the gateway total matches the order total.
func (s *service) CreatePreference(ctx context.Context, orderID, userID uint64) (*PreferenceDTO, error) {
	order, err := s.ordRepo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, not pending", order.Status))
	}

	items := make([]mercadopago.PreferenceItem, 0, len(order.Items)+1)
	for _, line := range order.Items {
		item := mercadopago.PreferenceItem{
			ID:         strconv.FormatUint(line.ProductID, 10),
			Quantity:   int64(line.Quantity),
			UnitPrice:  line.FinalPrice,
			CurrencyID: "ARS",
		}
		if line.Product != nil {
			item.Title = line.Product.Name
			item.PictureURL = line.Product.MainImage
			if line.Product.Description != nil {
				item.Description = *line.Product.Description
			}
		}
		items = append(items, item)
	}
	if order.ShipmentCost.IsPositive() {
		title := "Envio"
		if order.Shipment != nil && order.Shipment.Method != nil {
			title = order.Shipment.Method.Name
		}
		items = append(items, mercadopago.PreferenceItem{
			ID:         fmt.Sprintf("shipment-%d", order.ShipmentOrderID),
			Title:      title,
			Quantity:   1,
			UnitPrice:  order.ShipmentCost,
			CurrencyID: "ARS",
		})
	}

	params := mercadopago.PreferenceCreateParams{
		Items:              items,
		ExternalReference:  strconv.FormatUint(order.ID, 10),
		ExpirationDateFrom: time.Now().UTC(),
		Payer: mercadopago.PreferencePayer{
			Name:  order.Name,
			Email: order.Email,
			Identification: &mercadopago.Identification{
				Type:   "DNI",
				Number: order.DNI,
			},
		},
	}
	if order.ExpireAt != nil {
		params.ExpirationDateTo = *order.ExpireAt
	}

	pref, err := s.gateway.CreatePreference(ctx, params)
	if err != nil {
		return nil, err
	}

	return &PreferenceDTO{
		PreferenceID:  pref.ID,
		InitPoint:     pref.InitPoint,
		ComputedTotal: order.Total.String(),
	}, nil
}
