package payments

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/internal/cart"
	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	"github.com/lucasmartinez/tienda-backend/internal/orders"
	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
	"github.com/lucasmartinez/tienda-backend/pkg/mercadopago"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	payments    map[string]*mercadopago.Payment
	preferences []mercadopago.PreferenceCreateParams
}

func (f *fakeGateway) GetPayment(_ context.Context, paymentID string) (*mercadopago.Payment, error) {
	if p, ok := f.payments[paymentID]; ok {
		return p, nil
	}
	return &mercadopago.Payment{Status: "rejected"}, nil
}

func (f *fakeGateway) CreatePreference(_ context.Context, params mercadopago.PreferenceCreateParams) (*mercadopago.Preference, error) {
	f.preferences = append(f.preferences, params)
	return &mercadopago.Preference{
		ID:                "pref-123",
		InitPoint:         "https://mp.example/init/pref-123",
		ExternalReference: params.ExternalReference,
	}, nil
}

type fakeSessions struct {
	dropped []uint64
}

func (f *fakeSessions) DropForUser(_ context.Context, userID uint64) error {
	f.dropped = append(f.dropped, userID)
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	gateway  *fakeGateway
	sessions *fakeSessions
	cartRepo cart.Repository
	ordRepo  orders.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Cart{}, &models.CartItem{},
		&models.ShipmentMethod{}, &models.PaymentMethod{},
		&models.ShipmentOrder{}, &models.Invoice{},
		&models.Order{}, &models.ItemOrder{},
	))

	ledger, err := inventory.NewLedger(db)
	require.NoError(t, err)
	cartRepo := cart.NewRepository(db)
	ordRepo := orders.NewRepository(db)
	gw := &fakeGateway{payments: map[string]*mercadopago.Payment{}}
	sessions := &fakeSessions{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(gormTxRunner{db: db}, ordRepo, cartRepo, ledger, gw, sessions, logg)
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, gateway: gw, sessions: sessions, cartRepo: cartRepo, ordRepo: ordRepo}
}

// seedPendingOrder builds a pending order for user 1 with 2 reserved units
// and a leftover cart line.
func (f *fixture) seedPendingOrder(t *testing.T) (*models.Order, *models.Product) {
	t.Helper()
	ctx := context.Background()

	product := &models.Product{
		Name:      "prod-" + uuid.NewString(),
		Price:     decimal.RequireFromString("20.00"),
		Available: true,
		Stock:     8,
		StockReserved: 2,
	}
	require.NoError(t, f.db.Create(product).Error)

	ship := &models.ShipmentMethod{Name: "s-" + uuid.NewString(), Price: decimal.RequireFromString("5.00"), IsActive: true}
	require.NoError(t, f.db.Create(ship).Error)
	pay := &models.PaymentMethod{Name: "mp-" + uuid.NewString(), AllowedHours: 2, IsActive: true}
	require.NoError(t, f.db.Create(pay).Error)
	shipOrder := &models.ShipmentOrder{MethodID: ship.ID, Address: "Av. Colon 1234"}
	require.NoError(t, f.db.Create(shipOrder).Error)

	expireAt := time.Now().UTC().Add(2 * time.Hour)
	order := &models.Order{
		UserID:          1,
		Status:          enums.OrderStatusPending,
		PaymentMethodID: pay.ID,
		ShipmentOrderID: shipOrder.ID,
		Name:            "Lucas",
		DNI:             "41224335",
		Email:           "lucas@example.com",
		ShipmentCost:    decimal.RequireFromString("5.00"),
		DiscountCoupon:  decimal.RequireFromString("2.00"),
		Total:           decimal.RequireFromString("43.00"),
		ExpireAt:        &expireAt,
		Items: []models.ItemOrder{{
			ProductID:     product.ID,
			Quantity:      2,
			OriginalPrice: product.Price,
			FinalPrice:    product.Price,
		}},
	}
	require.NoError(t, f.db.Create(order).Error)

	durable, err := f.cartRepo.GetOrCreateByUser(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.cartRepo.ReplaceItems(ctx, durable.ID, map[uint64]int{product.ID: 1}))
	return order, product
}

func approvedPayment(orderID uint64) *mercadopago.Payment {
	return &mercadopago.Payment{
		ID:                987654,
		Status:            "approved",
		ExternalReference: strconv.FormatUint(orderID, 10),
		Payer: mercadopago.Payer{
			FirstName:      "Maria",
			LastName:       "Gomez",
			Email:          "maria@example.com",
			Identification: mercadopago.Identification{Type: "DNI", Number: "30111222"},
		},
		TransactionDetails: mercadopago.TransactionDetails{
			TotalPaidAmount: decimal.RequireFromString("43.00"),
		},
	}
}

func TestConfirmSettlesOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, product := f.seedPendingOrder(t)
	f.gateway.payments["pay-1"] = approvedPayment(order.ID)

	result, err := f.svc.Confirm(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, order.ID, result.OrderID)
	assert.NotEmpty(t, result.InvoiceNumber)

	reloaded, err := f.ordRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	require.NotNil(t, reloaded.Invoice)
	require.NotNil(t, reloaded.Invoice.InvoiceNumber)
	assert.Equal(t, result.InvoiceNumber, *reloaded.Invoice.InvoiceNumber)
	assert.Regexp(t, `^FAC-\d{6}$`, *reloaded.Invoice.InvoiceNumber)

	// gateway payer is authoritative on the invoice; form identity stays
	// on the order
	assert.Equal(t, "Maria Gomez", reloaded.Invoice.PayerName)
	assert.Equal(t, "30111222", reloaded.Invoice.PayerDNI)
	assert.Equal(t, "Lucas", reloaded.Invoice.Name)
	assert.True(t, reloaded.Invoice.TotalGateway.Equal(decimal.RequireFromString("43.00")))
	// items total = order total - shipment + coupon = 40.00
	assert.True(t, reloaded.Invoice.Total.Equal(decimal.RequireFromString("40.00")))

	// reservation committed: reserved pool drained, sellable untouched
	var got models.Product
	require.NoError(t, f.db.First(&got, product.ID).Error)
	assert.Equal(t, 8, got.Stock)
	assert.Equal(t, 0, got.StockReserved)

	// durable cart emptied, session blob dropped
	durable, err := f.cartRepo.GetOrCreateByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, durable.Items)
	assert.Equal(t, []uint64{1}, f.sessions.dropped)
}

func TestConfirmRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, product := f.seedPendingOrder(t)
	f.gateway.payments["pay-1"] = approvedPayment(order.ID)

	first, err := f.svc.Confirm(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeConfirmed, first.Outcome)

	second, err := f.svc.Confirm(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, second.Outcome)

	// exactly one invoice, stock untouched by the redelivery
	var count int64
	require.NoError(t, f.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var got models.Product
	require.NoError(t, f.db.First(&got, product.ID).Error)
	assert.Equal(t, 0, got.StockReserved)
}

func TestConfirmUnknownReference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.payments["pay-x"] = approvedPayment(999999)

	result, err := f.svc.Confirm(context.Background(), "pay-x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownReference, result.Outcome)

	var count int64
	require.NoError(t, f.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConfirmRejectedPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, product := f.seedPendingOrder(t)
	rejected := approvedPayment(order.ID)
	rejected.Status = "rejected"
	f.gateway.payments["pay-1"] = rejected

	result, err := f.svc.Confirm(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotApproved, result.Outcome)

	reloaded, err := f.ordRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, reloaded.Status)

	var got models.Product
	require.NoError(t, f.db.First(&got, product.ID).Error)
	assert.Equal(t, 2, got.StockReserved)
}

func TestCreatePreference(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, product := f.seedPendingOrder(t)

	dto, err := f.svc.CreatePreference(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "pref-123", dto.PreferenceID)
	assert.Equal(t, "43.00", dto.ComputedTotal)

	require.Len(t, f.gateway.preferences, 1)
	params := f.gateway.preferences[0]
	assert.Equal(t, strconv.FormatUint(order.ID, 10), params.ExternalReference)
	// one line per order item plus the shipment line
	require.Len(t, params.Items, 2)
	assert.Equal(t, strconv.FormatUint(product.ID, 10), params.Items[0].ID)
	assert.True(t, params.Items[1].UnitPrice.Equal(decimal.RequireFromString("5.00")))
}

func TestCreatePreferenceNonPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedPendingOrder(t)
	applied, err := f.ordRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, applied)

	_, err = f.svc.CreatePreference(ctx, order.ID, 1)
	require.Error(t, err)
}
