package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/internal/httpapi"
	"maintenance-engine/internal/server"
	asynqmod "maintenance-engine/pkg/asynq"
	"maintenance-engine/pkg/config"
	"maintenance-engine/pkg/db"
	"maintenance-engine/pkg/directory"
	"maintenance-engine/pkg/health"
	"maintenance-engine/pkg/logger"
	"maintenance-engine/pkg/redis"
	"maintenance-engine/pkg/sequence"
	"maintenance-engine/services/alert"
	"maintenance-engine/services/checklist"
	"maintenance-engine/services/effectiveness"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/schedule"
	"maintenance-engine/services/task"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		directory.Module,
		health.Module,
		asynqmod.Client,
		asynqmod.Server,

		fx.Provide(provideSnowflakeNode),

		plan.Module,
		task.Module,
		execution.Module,
		checklist.Module,
		schedule.Module,
		schedule.Worker,
		alert.Module,
		effectiveness.Module,

		httpapi.Module,
		server.Module,

		fx.Invoke(migrate),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// migrate keeps the schema current at startup. The engine owns its tables;
// unique indexes back the idempotency and tenant-scoping invariants.
func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&plan.MaintenancePlan{},
		&plan.AuditEvent{},
		&task.MaintenanceTask{},
		&execution.ScheduledExecution{},
		&checklist.TaskExecution{},
		&alert.NotificationRecord{},
	)
}
