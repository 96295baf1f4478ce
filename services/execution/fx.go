package execution

import (
	"go.uber.org/fx"
)

var Module = fx.Module("execution.service",
	fx.Provide(
		NewRepository,
		NewService,
	),
)
