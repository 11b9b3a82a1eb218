package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Cart{}, &models.CartItem{}))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string, stock int, available bool) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:      name,
		Slug:      name,
		Price:     decimal.RequireFromString("10.00"),
		Available: available,
		Stock:     stock,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestGetOrCreateByUser(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created, err := repo.GetOrCreateByUser(ctx, 7)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Empty(t, created.Items)

	again, err := repo.GetOrCreateByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestReplaceItems(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	a := seedProduct(t, db, "a", 10, true)
	b := seedProduct(t, db, "b", 10, true)
	c := seedProduct(t, db, "c", 10, true)

	cart, err := repo.GetOrCreateByUser(ctx, 1)
	require.NoError(t, err)
	before := cart.LastModified

	require.NoError(t, repo.ReplaceItems(ctx, cart.ID, map[uint64]int{a.ID: 2, b.ID: 1}))
	require.NoError(t, repo.ReplaceItems(ctx, cart.ID, map[uint64]int{a.ID: 5, c.ID: 3}))

	reloaded, err := repo.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 2)

	quantities := map[uint64]int{}
	for _, item := range reloaded.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[uint64]int{a.ID: 5, c.ID: 3}, quantities)
	assert.True(t, reloaded.LastModified.After(before) || reloaded.LastModified.Equal(before))
}

func TestSyncItemUpsertAndDelete(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := seedProduct(t, db, "sync", 10, true)
	cart, err := repo.GetOrCreateByUser(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, repo.SyncItem(ctx, cart.ID, p.ID, 3))
	require.NoError(t, repo.SyncItem(ctx, cart.ID, p.ID, 5))

	var items []models.CartItem
	require.NoError(t, db.Where("cart_id = ?", cart.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	require.NoError(t, repo.SyncItem(ctx, cart.ID, p.ID, 0))
	require.NoError(t, db.Where("cart_id = ?", cart.ID).Find(&items).Error)
	assert.Empty(t, items)
}

func TestDeleteItemsLeavesOthers(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	a := seedProduct(t, db, "keep", 10, true)
	b := seedProduct(t, db, "consume", 10, true)
	cart, err := repo.GetOrCreateByUser(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceItems(ctx, cart.ID, map[uint64]int{a.ID: 1, b.ID: 2}))

	require.NoError(t, repo.DeleteItems(ctx, cart.ID, []uint64{b.ID}))

	reloaded, err := repo.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, a.ID, reloaded.Items[0].ProductID)
}

func TestClearItems(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := seedProduct(t, db, "gone", 10, true)
	cart, err := repo.GetOrCreateByUser(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, repo.ReplaceItems(ctx, cart.ID, map[uint64]int{p.ID: 2}))

	require.NoError(t, repo.ClearItems(ctx, cart.ID))

	reloaded, err := repo.FindByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items)
}
