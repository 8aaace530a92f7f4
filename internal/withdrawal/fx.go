package withdrawal

import (
	"github.com/smallbiznis/escrow/internal/withdrawal/repository"
	"github.com/smallbiznis/escrow/internal/withdrawal/service"
	"go.uber.org/fx"
)

// Module wires the payout workflow.
var Module = fx.Module("withdrawal",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
