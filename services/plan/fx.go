package plan

import (
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(
		NewRepository,
		NewService,
	),
)
