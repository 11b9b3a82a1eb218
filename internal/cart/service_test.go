package cart

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type memorySessions struct {
	carts    map[string]*sessioncart.Cart
	bindings map[uint64]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{carts: map[string]*sessioncart.Cart{}, bindings: map[uint64]string{}}
}

func (m *memorySessions) Load(_ context.Context, sessionID string) (*sessioncart.Cart, error) {
	if cart, ok := m.carts[sessionID]; ok {
		return cart, nil
	}
	return sessioncart.New(), nil
}

func (m *memorySessions) Save(_ context.Context, sessionID string, cart *sessioncart.Cart) error {
	m.carts[sessionID] = cart
	return nil
}

func (m *memorySessions) BindUser(_ context.Context, userID uint64, sessionID string) error {
	m.bindings[userID] = sessionID
	return nil
}

func newService(t *testing.T, db *gorm.DB) (*Service, *memorySessions, Repository) {
	t.Helper()
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	rec, err := NewReconciler(repo, dbSnapshotter{db: db}, logg)
	require.NoError(t, err)
	sessions := newMemorySessions()
	svc, err := NewService(sessions, rec, repo, dbSnapshotter{db: db}, logg)
	require.NoError(t, err)
	return svc, sessions, repo
}

func TestServiceAnonymousAdd(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, sessions, _ := newService(t, db)
	ctx := context.Background()
	p := seedProduct(t, db, "anon-add", 10, true)

	summary, err := svc.Add(ctx, 0, "sess-1", p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CartQuantity)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, p.ID, summary.Items[0].ProductID)

	// nothing durable yet
	var count int64
	require.NoError(t, db.Model(&models.Cart{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Nil(t, sessions.carts["sess-1"].CartID)
}

func TestServiceAuthedAddSyncsDurableCart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, sessions, repo := newService(t, db)
	ctx := context.Background()
	p := seedProduct(t, db, "authed-add", 10, true)

	_, err := svc.Add(ctx, 9, "sess-9", p.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, "sess-9", sessions.bindings[9])
	session := sessions.carts["sess-9"]
	require.NotNil(t, session.CartID)

	durable, err := repo.FindByID(ctx, *session.CartID)
	require.NoError(t, err)
	require.Len(t, durable.Items, 1)
	assert.Equal(t, p.ID, durable.Items[0].ProductID)
	assert.Equal(t, 3, durable.Items[0].Quantity)
}

func TestServiceAddRejectsUnknownOrUnavailable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newService(t, db)
	ctx := context.Background()
	gone := seedProduct(t, db, "gone", 10, false)

	_, err := svc.Add(ctx, 0, "sess-2", 999, 1)
	require.Error(t, err)

	_, err = svc.Add(ctx, 0, "sess-2", gone.ID, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")

	_, err = svc.Add(ctx, 0, "sess-2", gone.ID, 0)
	require.Error(t, err)
}

func TestServiceSubtractRemovesDrainedLine(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, repo := newService(t, db)
	ctx := context.Background()
	p := seedProduct(t, db, "drain", 10, true)

	_, err := svc.Add(ctx, 4, "sess-4", p.ID, 2)
	require.NoError(t, err)

	summary, err := svc.Subtract(ctx, 4, "sess-4", p.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, summary.Items)

	durable, err := repo.GetOrCreateByUser(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, durable.Items)
}

func TestServiceClearEmptiesBothCarts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, repo := newService(t, db)
	ctx := context.Background()
	a := seedProduct(t, db, "clear-a", 10, true)
	b := seedProduct(t, db, "clear-b", 10, true)

	_, err := svc.Add(ctx, 5, "sess-5", a.ID, 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 5, "sess-5", b.ID, 2)
	require.NoError(t, err)

	summary, err := svc.Clear(ctx, 5, "sess-5")
	require.NoError(t, err)
	assert.Empty(t, summary.Items)

	durable, err := repo.GetOrCreateByUser(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, durable.Items)
}
