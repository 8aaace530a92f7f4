package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/escrow/internal/clock"
	"github.com/smallbiznis/escrow/internal/observability/metrics"
	platformdomain "github.com/smallbiznis/escrow/internal/platform/domain"
	refunddomain "github.com/smallbiznis/escrow/internal/refund/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EscalateParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	RefundRepo  refunddomain.Repository
	RefundSvc   refunddomain.Service
	PlatformSvc platformdomain.Service
	Metrics     *metrics.SettlementMetrics `optional:"true"`
	Config      Config                     `optional:"true"`
}

// EscalateWorker force-advances refund cases a shop has ignored past the
// configured response window, so a customer is never blocked
// indefinitely by an unresponsive seller.
type EscalateWorker struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	refundRepo  refunddomain.Repository
	refundSvc   refunddomain.Service
	platformSvc platformdomain.Service
	metrics     *metrics.SettlementMetrics
	cfg         Config
}

func NewEscalateWorker(p EscalateParams) *EscalateWorker {
	return &EscalateWorker{
		db:          p.DB,
		log:         p.Log.Named("settlement.escalate"),
		clock:       p.Clock,
		refundRepo:  p.RefundRepo,
		refundSvc:   p.RefundSvc,
		platformSvc: p.PlatformSvc,
		metrics:     p.Metrics,
		cfg:         p.Config.withDefaults(),
	}
}

func (w *EscalateWorker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.EscalateInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("refund escalation run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce escalates one batch of stalled cases. Failure on one case is
// logged and does not stop the rest of the batch.
func (w *EscalateWorker) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	platformCfg, err := w.platformSvc.Get(ctx)
	if err != nil {
		return err
	}
	responseWindow := time.Duration(platformCfg.SellerRefundResponseHour) * time.Hour
	cutoff := w.clock.Now().Add(-responseWindow)

	var stalled []refunddomain.RefundRequest
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acquired, err := tryAdvisoryLock(ctx, tx, escalateLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
		stalled, err = w.refundRepo.ListStalledPendingShop(ctx, tx, cutoff, w.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	escalated := 0
	for _, record := range stalled {
		note := fmt.Sprintf("auto-escalated: shop did not respond within %dh", platformCfg.SellerRefundResponseHour)
		if _, err := w.refundSvc.Escalate(ctx, record.ID, note); err != nil {
			// A concurrent shop response between listing and escalation
			// resolves the case; that is not a failure.
			if errors.Is(err, refunddomain.ErrInvalidStateTransition) {
				continue
			}
			w.log.Warn("refund escalation failed",
				zap.String("refund_id", record.ID.String()),
				zap.Error(err),
			)
			continue
		}
		w.metrics.IncRefundEscalated()
		escalated++
	}
	if escalated > 0 {
		w.log.Info("refunds escalated", zap.Int("cases", escalated))
	}
	return nil
}
