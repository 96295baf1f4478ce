package effectiveness

import (
	"go.uber.org/fx"
)

var Module = fx.Module("effectiveness.service",
	fx.Provide(
		NewService,
	),
)
