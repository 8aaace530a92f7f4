package settlement

import (
	"context"

	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/observability/metrics"
	"go.uber.org/fx"
)

// Module wires the settlement worker loops into the application
// lifecycle.
var Module = fx.Module("settlement",
	fx.Provide(
		configFromApp,
		settlementMetrics,
		NewReleaseWorker,
		NewEscalateWorker,
	),
	fx.Invoke(runWorkers),
)

func configFromApp(cfg config.Config) Config {
	return Config{
		BatchSize:        cfg.Scheduler.BatchSize,
		ReleaseInterval:  cfg.Scheduler.ReleaseInterval,
		EscalateInterval: cfg.Scheduler.EscalateInterval,
	}.withDefaults()
}

func settlementMetrics(cfg config.Config) *metrics.SettlementMetrics {
	return metrics.SettlementWithConfig(metrics.Config{
		ServiceName: "escrow",
		Environment: cfg.Environment,
	})
}

func runWorkers(lc fx.Lifecycle, release *ReleaseWorker, escalate *EscalateWorker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go release.RunForever(ctx)
			go escalate.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
