package orders

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lucasmartinez/tienda-backend/internal/inventory"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order reads plus the transitions that release stock.
type Service interface {
	Get(ctx context.Context, orderID, userID uint64) (*OrderDTO, error)
	List(ctx context.Context, userID uint64) ([]OrderDTO, error)
	Cancel(ctx context.Context, orderID, userID uint64) (*OrderDTO, error)
	Expire(ctx context.Context, orderID uint64) (bool, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	ledger inventory.Ledger
	logg   *logger.Logger
}

// NewService builds the orders service.
func NewService(tx txRunner, repo Repository, ledger inventory.Ledger, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, ledger: ledger, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uint64) (*OrderDTO, error) {
	order, err := s.repo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uint64) ([]OrderDTO, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]OrderDTO, len(list))
	for i := range list {
		out[i] = NewOrderDTO(&list[i])
	}
	return out, nil
}

// Cancel takes a pending order off the books: its reservations return to
// sellable stock and the status flips to cancelled. Non-pending orders are
// rejected since their stock was already settled one way or the other.
func (s *service) Cancel(ctx context.Context, orderID, userID uint64) (*OrderDTO, error) {
	if _, err := s.repo.FindByIDForUser(ctx, orderID, userID); err != nil {
		return nil, err
	}
	if err := s.releaseAndTransition(ctx, orderID, enums.OrderStatusCancelled); err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID, userID)
}

// Expire transitions a pending order past its window to expired, releasing
// its reservations. Returns false without touching anything when the order
// is no longer pending, so a late confirmation that won the race sticks.
func (s *service) Expire(ctx context.Context, orderID uint64) (bool, error) {
	err := s.releaseAndTransition(ctx, orderID, enums.OrderStatusExpired)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			ctx = s.logg.WithField(ctx, "order_id", orderID)
			s.logg.Info(ctx, "order no longer pending, expiry skipped")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *service) releaseAndTransition(ctx context.Context, orderID uint64, to enums.OrderStatus) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDLocked(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, not pending", order.Status))
		}

		for _, item := range order.Items {
			if err := s.ledger.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		applied, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPending, to)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		return nil
	})
}
