package refund

import (
	"github.com/smallbiznis/escrow/internal/refund/repository"
	"github.com/smallbiznis/escrow/internal/refund/service"
	"go.uber.org/fx"
)

// Module wires the refund dispute flow.
var Module = fx.Module("refund",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
