package transaction

import (
	"github.com/smallbiznis/escrow/internal/config"
	"github.com/smallbiznis/escrow/internal/gateway"
	"github.com/smallbiznis/escrow/internal/gateway/sandbox"
	"github.com/smallbiznis/escrow/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(func(cfg config.Config) *gateway.Registry {
		return gateway.NewRegistry(sandbox.New(cfg.Gateway.WebhookSecret))
	}),
	fx.Provide(service.NewService),
)
