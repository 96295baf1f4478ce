package schedule

import (
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(
		NewService,
	),
)

// Worker wires the daily tick and the asynq handler. Split from Module so
// tests and API-only deployments can load the service without the loop.
var Worker = fx.Module("schedule.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(
		StartScheduler,
		RegisterHandlers,
	),
)
