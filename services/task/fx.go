package task

import (
	"go.uber.org/fx"

	"maintenance-engine/services/plan"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewRepository,
		NewService,
		func(s *Service) plan.TaskDeactivator { return s },
	),
)
