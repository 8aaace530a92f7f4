package tracing

import (
	"github.com/smallbiznis/escrow/internal/config"
	"go.uber.org/fx"
)

// Module configures the global tracer provider from app config. The
// provider is registered globally, so nothing needs to depend on the
// returned value directly.
var Module = fx.Module("tracing",
	fx.Provide(configFromApp),
	fx.Invoke(NewProvider),
)

func configFromApp(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Telemetry.Enabled,
		ServiceName:      "escrow",
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExporterProtocol: cfg.Telemetry.ExporterProtocol,
		SamplingRatio:    cfg.Telemetry.SamplingRatio,
	}
}
