package worker

import (
	"context"
	"log/slog"
	"time"

	"storefront-payments/internal/domain"
	"storefront-payments/internal/repo"
)

// OrderLister is the slice of the order store the worker reads.
type OrderLister interface {
	FindPaidWithoutPayment(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
}

var _ OrderLister = repo.OrderRepo(nil)

// ReconciliationWorker reports orders marked Paid whose payment record was
// never written. It only reports; fixing them is an operator decision.
type ReconciliationWorker struct {
	orders    OrderLister
	olderThan time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

func NewReconciliationWorker(orders OrderLister, olderThan, interval time.Duration, logger *slog.Logger) *ReconciliationWorker {
	return &ReconciliationWorker{
		orders:    orders,
		olderThan: olderThan,
		interval:  interval,
		logger:    logger,
	}
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started", "interval", rw.interval, "older_than", rw.olderThan)

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.RunOnce(ctx); err != nil {
				rw.logger.Error("reconciliation failed", "error", err)
			}
		}
	}
}

// RunOnce does a single pass and returns the orders that need attention.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) ([]domain.Order, error) {
	orphans, err := rw.orders.FindPaidWithoutPayment(ctx, rw.olderThan)
	if err != nil {
		return nil, err
	}

	if len(orphans) == 0 {
		return nil, nil
	}

	rw.logger.Warn("paid orders without payment record", "count", len(orphans))
	for _, o := range orphans {
		rw.logger.Warn("order needs manual reconciliation",
			"order_id", o.ID,
			"buy_order", o.BusinessNumber,
			"total", o.Total.String(),
			"updated_at", o.UpdatedAt,
		)
	}
	return orphans, nil
}
