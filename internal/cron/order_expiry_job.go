package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

const expiryBatchSize = 200

type expiredOrderFinder interface {
	FindPendingExpiredIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uint64) (bool, error)
}

// OrderExpiryJobParams configure the expiry sweep.
type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders expiredOrderFinder
	Expiry orderExpirer
}

// NewOrderExpiryJob builds the cron job that expires pending orders past
// their payment window and returns their reservations to stock.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if params.Expiry == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		expiry: params.Expiry,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders expiredOrderFinder
	expiry orderExpirer
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run expires each stale order in its own transaction; one bad order does
// not stall the sweep, errors are aggregated and reported at the end.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	ids, err := j.orders.FindPendingExpiredIDs(ctx, j.now().UTC(), expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query expired orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	expired := 0
	skipped := 0
	var errs []error
	for _, orderID := range ids {
		ok, err := j.expiry.Expire(ctx, orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire order %d: %w", orderID, err))
			continue
		}
		if ok {
			expired++
		} else {
			skipped++
		}
	}

	runCtx := j.logg.WithFields(ctx, map[string]any{
		"found":   len(ids),
		"expired": expired,
		"skipped": skipped,
		"failed":  len(errs),
	})
	j.logg.Info(runCtx, "order expiry sweep finished")
	return multierr.Combine(errs...)
}
