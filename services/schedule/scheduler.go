package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	asynqmod "maintenance-engine/pkg/asynq"
	"maintenance-engine/pkg/config"
	"maintenance-engine/services/plan"
)

// Scheduler wakes once a day and enqueues one generation task per tenant.
// The asynq workers run the actual batches, so a slow tenant never blocks
// the tick.
type Scheduler struct {
	plans     plan.Repository
	client    *asynq.Client
	runHour   int
	runMinute int
	lookahead int
}

// SchedulerParams defines dependencies for Scheduler construction.
type SchedulerParams struct {
	fx.In

	Plans  plan.Repository
	Client *asynq.Client
	Config *config.Config
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		plans:     p.Plans,
		client:    p.Client,
		runHour:   p.Config.Scheduler.RunHour,
		runMinute: p.Config.Scheduler.RunMinute,
		lookahead: p.Config.Scheduler.LookaheadDays,
	}
}

// StartScheduler hooks the daily loop into the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started maintenance generation scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.runHour, s.runMinute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] running daily generation enqueue")

	if err := s.EnqueueAllTenants(ctx); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue all tenants", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished enqueue for all tenants",
		zap.Duration("duration", time.Since(start)),
	)
}

// EnqueueAllTenants fans one generation task per tenant out to the default
// queue.
func (s *Scheduler) EnqueueAllTenants(ctx context.Context) error {
	tenants, err := s.plans.DistinctTenants(ctx)
	if err != nil {
		return err
	}

	asOf := time.Now().UTC().Format("2006-01-02")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, tenantID := range tenants {
		g.Go(func() error {
			payload, err := json.Marshal(asynqmod.GeneratePayload{
				TenantID:      tenantID,
				AsOf:          asOf,
				LookaheadDays: s.lookahead,
			})
			if err != nil {
				return err
			}

			task := asynq.NewTask(asynqmod.GenerateTask, payload)
			if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue(asynqmod.QueueDefault)); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue tenant",
					zap.String("tenant_id", tenantID),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
