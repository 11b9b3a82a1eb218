package cart

import (
	"context"
	"fmt"

	"github.com/lucasmartinez/tienda-backend/internal/sessioncart"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type sessionStore interface {
	Load(ctx context.Context, sessionID string) (*sessioncart.Cart, error)
	Save(ctx context.Context, sessionID string, cart *sessioncart.Cart) error
	BindUser(ctx context.Context, userID uint64, sessionID string) error
}

// Service exposes the shopper-facing cart operations. Every call works on the
// session blob; authenticated shoppers get their durable cart folded in first
// and every mutation mirrored back to it.
type Service struct {
	sessions   sessionStore
	reconciler *Reconciler
	repo       Repository
	stocks     productSnapshotter
	logg       *logger.Logger
}

func NewService(sessions sessionStore, reconciler *Reconciler, repo Repository, stocks productSnapshotter, logg *logger.Logger) (*Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if stocks == nil {
		return nil, fmt.Errorf("product snapshotter is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{sessions: sessions, reconciler: reconciler, repo: repo, stocks: stocks, logg: logg}, nil
}

// View returns the current cart, reconciling with the durable cart for
// authenticated shoppers.
func (s *Service) View(ctx context.Context, userID uint64, sessionID string) (sessioncart.Summary, error) {
	session, err := s.prepare(ctx, userID, sessionID)
	if err != nil {
		return sessioncart.Summary{}, err
	}
	if err := s.sessions.Save(ctx, sessionID, session); err != nil {
		return sessioncart.Summary{}, err
	}
	return session.Serialize(), nil
}

// Add puts qty more units of the product into the cart.
func (s *Service) Add(ctx context.Context, userID uint64, sessionID string, productID uint64, qty int) (sessioncart.Summary, error) {
	if qty <= 0 {
		return sessioncart.Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	session, err := s.prepare(ctx, userID, sessionID)
	if err != nil {
		return sessioncart.Summary{}, err
	}

	snapshot, err := s.stocks.Snapshot(ctx, []uint64{productID})
	if err != nil {
		return sessioncart.Summary{}, err
	}
	product, ok := snapshot[productID]
	if !ok {
		return sessioncart.Summary{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.SellableStock() == 0 {
		return sessioncart.Summary{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %q is not available", product.Name))
	}

	session.Add(product, qty)
	return s.finish(ctx, sessionID, session, productID)
}

// Subtract removes qty units of the product, deleting the line when it
// reaches zero.
func (s *Service) Subtract(ctx context.Context, userID uint64, sessionID string, productID uint64, qty int) (sessioncart.Summary, error) {
	if qty <= 0 {
		return sessioncart.Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	session, err := s.prepare(ctx, userID, sessionID)
	if err != nil {
		return sessioncart.Summary{}, err
	}
	session.Subtract(productID, qty)
	return s.finish(ctx, sessionID, session, productID)
}

// Remove drops a product line from the cart regardless of quantity.
func (s *Service) Remove(ctx context.Context, userID uint64, sessionID string, productID uint64) (sessioncart.Summary, error) {
	session, err := s.prepare(ctx, userID, sessionID)
	if err != nil {
		return sessioncart.Summary{}, err
	}
	session.Delete(productID)
	return s.finish(ctx, sessionID, session, productID)
}

// Clear empties the cart entirely.
func (s *Service) Clear(ctx context.Context, userID uint64, sessionID string) (sessioncart.Summary, error) {
	session, err := s.prepare(ctx, userID, sessionID)
	if err != nil {
		return sessioncart.Summary{}, err
	}
	session.Clear()

	if session.CartID != nil {
		if err := s.repo.ClearItems(ctx, *session.CartID); err != nil {
			return sessioncart.Summary{}, err
		}
	}
	if err := s.sessions.Save(ctx, sessionID, session); err != nil {
		return sessioncart.Summary{}, err
	}
	return session.Serialize(), nil
}

func (s *Service) prepare(ctx context.Context, userID uint64, sessionID string) (*sessioncart.Cart, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if userID != 0 {
		if err := s.reconciler.Reconcile(ctx, userID, session); err != nil {
			return nil, err
		}
		if err := s.sessions.BindUser(ctx, userID, sessionID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "user_id", userID), "binding session to user failed")
		}
	}
	return session, nil
}

// finish mirrors the mutated line into the durable cart (when one is
// associated) and persists the session blob.
func (s *Service) finish(ctx context.Context, sessionID string, session *sessioncart.Cart, productID uint64) (sessioncart.Summary, error) {
	if session.CartID != nil {
		if err := s.repo.SyncItem(ctx, *session.CartID, productID, session.Quantity(productID)); err != nil {
			return sessioncart.Summary{}, err
		}
	}
	if err := s.sessions.Save(ctx, sessionID, session); err != nil {
		return sessioncart.Summary{}, err
	}
	return session.Serialize(), nil
}
