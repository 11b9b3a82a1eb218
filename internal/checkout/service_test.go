package checkout

import (
	"context"
	"io"
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
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	cart    cart.Repository
	ledger  inventory.Ledger
	methods MethodRegistry
}

func newFixture(t *testing.T, discount DiscountStrategy) *fixture {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	methods := NewMethodRegistry(db)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(gormTxRunner{db: db}, cartRepo, ordRepo, methods, ledger, discount, logg)
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, cart: cartRepo, ledger: ledger, methods: methods}
}

func (f *fixture) seedProduct(t *testing.T, name, price string, discountPct, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:        name,
		Slug:        name,
		Price:       decimal.RequireFromString(price),
		DiscountPct: discountPct,
		Available:   true,
		Stock:       stock,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) seedMethods(t *testing.T, shipPrice string, allowedHours int) (*models.ShipmentMethod, *models.PaymentMethod) {
	t.Helper()
	ship := &models.ShipmentMethod{Name: "correo", Price: decimal.RequireFromString(shipPrice), IsActive: true}
	require.NoError(t, f.db.Create(ship).Error)
	pay := &models.PaymentMethod{Name: "mercadopago", AllowedHours: allowedHours, IsActive: true}
	require.NoError(t, f.db.Create(pay).Error)
	return ship, pay
}

func (f *fixture) fillCart(t *testing.T, userID uint64, lines map[uint64]int) *models.Cart {
	t.Helper()
	ctx := context.Background()
	record, err := f.cart.GetOrCreateByUser(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, f.cart.ReplaceItems(ctx, record.ID, lines))
	return record
}

func validInput(shipID, payID uint64) CheckoutInput {
	return CheckoutInput{
		Name:             "Lucas",
		DNI:              "41224335",
		Email:            "lucas@example.com",
		Cellphone:        "3515437688",
		ShipmentMethodID: shipID,
		PaymentMethodID:  payID,
		Address:          "Av. Colon 1234",
		Province:         "Cordoba",
		City:             "Cordoba",
		PostalCode:       "5000",
	}
}

func TestExecuteCreatesPendingOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, FixedDiscount{Amount: decimal.RequireFromString("2.00")})
	ctx := context.Background()

	// 19.99 with 10% off freezes at 17.99
	promo := f.seedProduct(t, "promo", "19.99", 10, 10)
	plain := f.seedProduct(t, "plain", "5.00", 0, 4)
	ship, pay := f.seedMethods(t, "10.00", 2)
	record := f.fillCart(t, 1, map[uint64]int{promo.ID: 2, plain.ID: 1})

	before := time.Now().UTC()
	order, err := f.svc.Execute(ctx, 1, validInput(ship.ID, pay.ID))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	// subtotal 2*17.99 + 5.00 = 40.98; +10.00 shipping -2.00 coupon = 48.98
	assert.True(t, order.Total.Equal(decimal.RequireFromString("48.98")), order.Total.String())
	assert.True(t, order.DiscountCoupon.Equal(decimal.RequireFromString("2.00")))
	require.NotNil(t, order.ExpireAt)
	assert.WithinDuration(t, before.Add(2*time.Hour), *order.ExpireAt, 5*time.Second)

	require.Len(t, order.Items, 2)
	byProduct := map[uint64]models.ItemOrder{}
	for _, item := range order.Items {
		byProduct[item.ProductID] = item
	}
	assert.True(t, byProduct[promo.ID].FinalPrice.Equal(decimal.RequireFromString("17.99")))
	assert.True(t, byProduct[promo.ID].OriginalPrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, 10, byProduct[promo.ID].DiscountPct)

	var gotPromo, gotPlain models.Product
	require.NoError(t, f.db.First(&gotPromo, promo.ID).Error)
	require.NoError(t, f.db.First(&gotPlain, plain.ID).Error)
	assert.Equal(t, 8, gotPromo.Stock)
	assert.Equal(t, 2, gotPromo.StockReserved)
	assert.Equal(t, 3, gotPlain.Stock)
	assert.Equal(t, 1, gotPlain.StockReserved)

	var remaining []models.CartItem
	require.NoError(t, f.db.Where("cart_id = ?", record.ID).Find(&remaining).Error)
	assert.Empty(t, remaining)
}

func TestExecuteRollsBackOnInsufficientStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NoDiscount{})
	ctx := context.Background()

	ok := f.seedProduct(t, "plenty", "10.00", 0, 10)
	short := f.seedProduct(t, "short", "10.00", 0, 1)
	ship, pay := f.seedMethods(t, "0.00", 2)
	record := f.fillCart(t, 1, map[uint64]int{ok.ID: 2, short.ID: 3})

	_, err := f.svc.Execute(ctx, 1, validInput(ship.ID, pay.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Contains(t, typed.Message(), "short")

	// nothing survives the rollback: no order, no reservation, cart intact
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var gotOK models.Product
	require.NoError(t, f.db.First(&gotOK, ok.ID).Error)
	assert.Equal(t, 10, gotOK.Stock)
	assert.Equal(t, 0, gotOK.StockReserved)

	var remaining []models.CartItem
	require.NoError(t, f.db.Where("cart_id = ?", record.ID).Find(&remaining).Error)
	assert.Len(t, remaining, 2)
}

func TestExecuteEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NoDiscount{})
	ship, pay := f.seedMethods(t, "0.00", 2)
	f.fillCart(t, 1, map[uint64]int{})

	_, err := f.svc.Execute(context.Background(), 1, validInput(ship.ID, pay.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestExecuteInactiveMethods(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NoDiscount{})
	ctx := context.Background()

	p := f.seedProduct(t, "p", "10.00", 0, 5)
	ship, pay := f.seedMethods(t, "0.00", 2)
	require.NoError(t, f.db.Model(&models.ShipmentMethod{}).Where("id = ?", ship.ID).Update("is_active", false).Error)
	f.fillCart(t, 1, map[uint64]int{p.ID: 1})

	_, err := f.svc.Execute(ctx, 1, validInput(ship.ID, pay.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = f.svc.Execute(ctx, 1, validInput(99, pay.ID))
	require.Error(t, err)
}

func TestExecuteRequiresUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NoDiscount{})
	ship, pay := f.seedMethods(t, "0.00", 2)

	_, err := f.svc.Execute(context.Background(), 0, validInput(ship.ID, pay.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestFixedDiscountCapsAtSubtotal(t *testing.T) {
	t.Parallel()

	d := FixedDiscount{Amount: decimal.RequireFromString("50.00")}
	got := d.Discount(context.Background(), decimal.RequireFromString("30.00"))
	assert.True(t, got.Equal(decimal.RequireFromString("30.00")))

	got = d.Discount(context.Background(), decimal.Zero)
	assert.True(t, got.IsZero())
}
