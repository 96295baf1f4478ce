package checklist

import (
	"go.uber.org/fx"

	"maintenance-engine/services/execution"
)

var Module = fx.Module("checklist.service",
	fx.Provide(
		NewRepository,
		NewService,
		func(s *Service) execution.Checklist { return s },
	),
)
