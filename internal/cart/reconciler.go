package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	"github.com/lucasmartinez/tienda-backend/pkg/db/models"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type productSnapshotter interface {
	Snapshot(ctx context.Context, ids []uint64) (map[uint64]*models.Product, error)
}

// Reconciler merges the browser session cart with the user's durable cart.
// It mutates the session cart in place; persisting the blob back to the
// session store stays with the caller, so the merge policy is testable on
// its own.
type Reconciler struct {
	repo   Repository
	stocks productSnapshotter
	logg   *logger.Logger
}

// NewReconciler builds the reconciler.
func NewReconciler(repo Repository, stocks productSnapshotter, logg *logger.Logger) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if stocks == nil {
		return nil, fmt.Errorf("product snapshotter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{repo: repo, stocks: stocks, logg: logg}, nil
}

// Reconcile folds session and durable cart state for an authenticated user.
//
// First association (session carries no cart id) always folds. A session
// already associated folds again only when the durable cart was modified
// after the session's recorded stamp, which happens when another tab or
// device wrote the cart. Conflict resolution is last-writer-wins for the
// whole cart, arbitrated per product by taking the larger quantity.
//
// Anonymous users (userID zero) keep their session cart untouched; a
// recorded association from before logout is deliberately not read.
func (r *Reconciler) Reconcile(ctx context.Context, userID uint64, session *sessioncart.Cart) error {
	if session == nil {
		return fmt.Errorf("session cart required")
	}
	if userID == 0 {
		return nil
	}

	durable, err := r.repo.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return err
	}

	if session.CartID != nil && *session.CartID == durable.ID &&
		!durable.LastModified.After(session.LastModified) {
		// session is current, nothing to fold
		return nil
	}

	if err := r.fold(ctx, durable, session); err != nil {
		return err
	}

	desired := make(map[uint64]int, len(session.Items))
	for id, item := range session.Items {
		desired[id] = item.Quantity
	}
	if err := r.repo.ReplaceItems(ctx, durable.ID, desired); err != nil {
		return err
	}

	now := time.Now().UTC()
	session.CartID = &durable.ID
	session.LastModified = now
	return nil
}

// fold arbitrates every product present in either cart: the larger
// quantity wins, unavailable products are dropped, and survivors are
// clamped to current stock and refreshed with catalog display data.
func (r *Reconciler) fold(ctx context.Context, durable *models.Cart, session *sessioncart.Cart) error {
	quantities := make(map[uint64]int, len(durable.Items)+len(session.Items))
	for _, item := range durable.Items {
		quantities[item.ProductID] = item.Quantity
	}
	for id, item := range session.Items {
		if item.Quantity > quantities[id] {
			quantities[id] = item.Quantity
		}
	}

	ids := make([]uint64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	snapshot, err := r.stocks.Snapshot(ctx, ids)
	if err != nil {
		return err
	}

	folded := make(map[uint64]sessioncart.Item, len(quantities))
	for id, combined := range quantities {
		product, ok := snapshot[id]
		if !ok || product.SellableStock() == 0 {
			r.logDrop(ctx, id, combined, "unavailable")
			continue
		}
		if combined > product.Stock {
			r.logDrop(ctx, id, combined-product.Stock, "clamped to stock")
			combined = product.Stock
		}
		folded[id] = sessioncart.Item{
			ProductID: id,
			Name:      product.Name,
			Slug:      product.Slug,
			Price:     product.FinalPrice(),
			Image:     product.MainImage,
			Quantity:  combined,
			Stock:     product.Stock,
		}
	}

	session.Items = folded
	return nil
}

func (r *Reconciler) logDrop(ctx context.Context, productID uint64, units int, reason string) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"product_id": productID,
		"units":      units,
		"reason":     reason,
	})
	r.logg.Info(ctx, "cart reconcile dropped units")
}
