package platform

import (
	"github.com/smallbiznis/escrow/internal/platform/service"
	"go.uber.org/fx"
)

var Module = fx.Module("platform.service",
	fx.Provide(service.NewService),
)
