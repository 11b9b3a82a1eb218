package orders

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

	"github.com/lucasmartinez/tienda-backend/internal/inventory"
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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.ShipmentMethod{}, &models.PaymentMethod{},
		&models.ShipmentOrder{}, &models.Invoice{}, &models.Order{}, &models.ItemOrder{},
	))
	return db
}

func newService(t *testing.T, db *gorm.DB) (Service, Repository) {
	t.Helper()
	ledger, err := inventory.NewLedger(db)
	require.NoError(t, err)
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(gormTxRunner{db: db}, repo, ledger, logg)
	require.NoError(t, err)
	return svc, repo
}

// seedPendingOrder creates a pending order for userID with qty units of a
// fresh product already moved into the reserved pool.
func seedPendingOrder(t *testing.T, db *gorm.DB, userID uint64, qty int, expireAt time.Time) (*models.Order, *models.Product) {
	t.Helper()
	product := &models.Product{
		Name:      "seed-" + uuid.NewString(),
		Price:     decimal.RequireFromString("10.00"),
		Available: true,
		Stock:     10 - qty,
		StockReserved: qty,
	}
	require.NoError(t, db.Create(product).Error)

	ship := &models.ShipmentMethod{Name: "m-" + uuid.NewString(), Price: decimal.Zero, IsActive: true}
	require.NoError(t, db.Create(ship).Error)
	pay := &models.PaymentMethod{Name: "p-" + uuid.NewString(), AllowedHours: 2, IsActive: true}
	require.NoError(t, db.Create(pay).Error)
	shipOrder := &models.ShipmentOrder{MethodID: ship.ID}
	require.NoError(t, db.Create(shipOrder).Error)

	order := &models.Order{
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		PaymentMethodID: pay.ID,
		ShipmentOrderID: shipOrder.ID,
		Total:           decimal.RequireFromString("10.00"),
		ExpireAt:        &expireAt,
		Items: []models.ItemOrder{{
			ProductID:     product.ID,
			Quantity:      qty,
			OriginalPrice: product.Price,
			FinalPrice:    product.Price,
		}},
	}
	require.NoError(t, db.Create(order).Error)
	return order, product
}

func TestCancelReleasesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newService(t, db)
	ctx := context.Background()

	order, product := seedPendingOrder(t, db, 1, 3, time.Now().Add(time.Hour))

	dto, err := svc.Cancel(ctx, order.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.Status)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 10, got.Stock)
	assert.Equal(t, 0, got.StockReserved)
}

func TestCancelWrongUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newService(t, db)

	order, _ := seedPendingOrder(t, db, 1, 1, time.Now().Add(time.Hour))

	_, err := svc.Cancel(context.Background(), order.ID, 2)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestCancelNonPending(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, repo := newService(t, db)
	ctx := context.Background()

	order, product := seedPendingOrder(t, db, 1, 2, time.Now().Add(time.Hour))
	applied, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	require.True(t, applied)

	_, err = svc.Cancel(ctx, order.ID, 1)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	// confirmed order keeps its reservation untouched
	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 2, got.StockReserved)
}

func TestExpireReleasesAndMarks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, repo := newService(t, db)
	ctx := context.Background()

	order, product := seedPendingOrder(t, db, 1, 4, time.Now().Add(-time.Hour))

	expired, err := svc.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusExpired, reloaded.Status)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 10, got.Stock)
	assert.Equal(t, 0, got.StockReserved)
}

func TestExpireSkipsConfirmedOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, repo := newService(t, db)
	ctx := context.Background()

	order, product := seedPendingOrder(t, db, 1, 2, time.Now().Add(-time.Hour))
	applied, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	require.True(t, applied)

	// a confirmation that won the race must stick
	expired, err := svc.Expire(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 2, got.StockReserved)
}

func TestFindPendingExpiredIDs(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, repo := newService(t, db)
	ctx := context.Background()

	past, _ := seedPendingOrder(t, db, 1, 1, time.Now().Add(-2*time.Hour))
	seedPendingOrder(t, db, 1, 1, time.Now().Add(time.Hour))
	confirmed, _ := seedPendingOrder(t, db, 1, 1, time.Now().Add(-2*time.Hour))
	applied, err := repo.TransitionStatus(ctx, confirmed.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	require.True(t, applied)

	ids, err := repo.FindPendingExpiredIDs(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{past.ID}, ids)
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newService(t, db)
	ctx := context.Background()

	seedPendingOrder(t, db, 5, 1, time.Now().Add(time.Hour))
	seedPendingOrder(t, db, 5, 2, time.Now().Add(time.Hour))
	seedPendingOrder(t, db, 6, 1, time.Now().Add(time.Hour))

	list, err := svc.List(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
