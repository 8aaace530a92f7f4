// Package settlement runs the recurring jobs that move held funds: the
// balance release loop and the refund escalation loop.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/events"
	"github.com/smallbiznis/escrow/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/escrow/internal/order/domain"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	txdomain "github.com/smallbiznis/escrow/internal/transaction/domain"
	walletdomain "github.com/smallbiznis/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReleaseParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	OrderRepo   orderdomain.Repository
	RefundRepo  refunddomain.Repository
	TxSvc       txdomain.Service
	WalletSvc   walletdomain.Service
	PlatformSvc platformdomain.Service
	Outbox      *events.Outbox
	Metrics     *metrics.SettlementMetrics `optional:"true"`
	Config      Config                     `optional:"true"`
}

// ReleaseWorker moves escrowed shop proceeds from pending to available
// once the holding period elapses, order by order.
type ReleaseWorker struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	orderRepo   orderdomain.Repository
	refundRepo  refunddomain.Repository
	txSvc       txdomain.Service
	walletSvc   walletdomain.Service
	platformSvc platformdomain.Service
	outbox      *events.Outbox
	metrics     *metrics.SettlementMetrics
	cfg         Config
}

func NewReleaseWorker(p ReleaseParams) *ReleaseWorker {
	return &ReleaseWorker{
		db:          p.DB,
		log:         p.Log.Named("settlement.release"),
		clock:       p.Clock,
		orderRepo:   p.OrderRepo,
		refundRepo:  p.RefundRepo,
		txSvc:       p.TxSvc,
		walletSvc:   p.WalletSvc,
		platformSvc: p.PlatformSvc,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
		cfg:         p.Config.withDefaults(),
	}
}

func (w *ReleaseWorker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReleaseInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("balance release run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce releases one batch of eligible orders. Failure on one order is
// logged and does not stop the rest of the batch.
func (w *ReleaseWorker) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	platformCfg, err := w.platformSvc.Get(ctx)
	if err != nil {
		return err
	}
	cutoff := w.clock.Now().Add(-time.Duration(platformCfg.HoldingDays) * 24 * time.Hour)

	var candidates []orderdomain.Order
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acquired, err := tryAdvisoryLock(ctx, tx, releaseLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
		candidates, err = w.orderRepo.ListReleasable(ctx, tx, cutoff, w.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}
	w.metrics.SetReleaseBacklog(len(candidates))

	released := 0
	for _, order := range candidates {
		ok, err := w.releaseOrder(ctx, order)
		if err != nil {
			w.metrics.IncOrderReleased("failed")
			w.log.Warn("order release failed",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			w.metrics.IncOrderReleased("skipped")
			continue
		}
		w.metrics.IncOrderReleased("released")
		if order.CompletedAt != nil {
			w.metrics.ObserveReleaseLag(w.clock.Now().Sub(*order.CompletedAt) -
				time.Duration(platformCfg.HoldingDays)*24*time.Hour)
		}
		released++
	}
	if released > 0 {
		w.log.Info("balances released", zap.Int("orders", released))
	}
	return nil
}

// releaseOrder flips balance_released and moves the shop's share out of
// escrow as one transaction. Returns false when the order was skipped:
// already released by a concurrent run, frozen by an open refund, or
// never captured through a payment transaction.
func (w *ReleaseWorker) releaseOrder(ctx context.Context, order orderdomain.Order) (bool, error) {
	released := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := w.refundRepo.OpenExists(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if open {
			return nil
		}

		breakdown, err := w.txSvc.BreakdownForOrder(ctx, order.ID)
		if errors.Is(err, txdomain.ErrTransactionNotFound) {
			// Never captured through a payment transaction; nothing held.
			return nil
		}
		if err != nil {
			return err
		}
		if breakdown.ShopAmount <= 0 {
			return nil
		}

		flipped, err := w.orderRepo.MarkBalanceReleased(ctx, tx, order.ID, w.clock.Now())
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		if _, err := w.walletSvc.ReleasePendingTx(
			ctx, tx,
			walletdomain.OwnerShop, order.ShopID,
			breakdown.ShopAmount,
			"order", order.ID,
			fmt.Sprintf("holding period elapsed for order %s", order.ID.String()),
		); err != nil {
			return err
		}

		if err := w.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventBalanceReleased,
			Payload:   events.BalanceReleasedPayload{OrderID: order.ID.String(), ShopID: order.ShopID.String(), Amount: breakdown.ShopAmount}.ToMap(),
			DedupeKey: "balance.released:" + order.ID.String(),
		}); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
