// Package worker keeps the order store converged with on-chain settlement
// state. The ticker sweep is the safety net; the event subscription only
// shortens the window between a settlement and the store catching up.
package worker

import (
	"context"
	"time"

	"goldmarket/internal/models"
	"goldmarket/internal/seaport"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Settlement is the read surface the reconciler needs.
type Settlement interface {
	OrderStatus(ctx context.Context, orderHash common.Hash) (seaport.OrderState, error)
}

// OrderStore is the persistence surface the reconciler needs.
type OrderStore interface {
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]*models.StoredOrder, error)
	UpdateStatus(ctx context.Context, orderHash string, status models.OrderStatus) error
}

type Reconciler struct {
	Store      OrderStore
	Settlement Settlement
	Contract   common.Address
	Interval   time.Duration
	WSEndpoint string
	Log        *logrus.Entry
}

func (r *Reconciler) Run(ctx context.Context) {
	go r.runEvents(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if err := r.SweepOnce(ctx); err != nil {
			r.Log.WithError(err).Error("sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce walks every active row and settles its status against the
// contract. Per-order failures are logged and skipped so one bad RPC answer
// cannot stall the rest of the sweep.
func (r *Reconciler) SweepOnce(ctx context.Context) error {
	orders, err := r.Store.ListByStatus(ctx, models.OrderActive)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if err := r.reconcileOrder(ctx, order.OrderHash); err != nil {
			r.Log.WithError(err).WithField("order_hash", order.OrderHash).Warn("reconcile failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (r *Reconciler) reconcileOrder(ctx context.Context, orderHash string) error {
	state, err := r.Settlement.OrderStatus(ctx, common.HexToHash(orderHash))
	if err != nil {
		return err
	}

	var next models.OrderStatus
	switch {
	case state.IsCancelled:
		next = models.OrderCancelled
	case state.Filled():
		next = models.OrderFulfilled
	default:
		return nil
	}

	if err := r.Store.UpdateStatus(ctx, orderHash, next); err != nil {
		return err
	}
	r.Log.WithFields(logrus.Fields{
		"order_hash": orderHash,
		"status":     next,
	}).Info("order reconciled")
	return nil
}
