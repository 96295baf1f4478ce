package alert

import (
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(
		NewService,
	),
)
