package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	asynqmod "maintenance-engine/pkg/asynq"
	"maintenance-engine/pkg/config"
	"maintenance-engine/pkg/directory"
	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/task"
)

// Service derives alerts from open executions. Classification is pure; only
// Dispatch has side effects.
type Service struct {
	execs   execution.Repository
	plans   plan.Repository
	tasks   task.Repository
	assets  directory.AssetDirectory
	client  *asynq.Client
	db      *gorm.DB
	horizon int
	logger  *zap.Logger
	node    *snowflake.Node
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Executions execution.Repository
	Plans      plan.Repository
	Tasks      task.Repository
	Assets     directory.AssetDirectory
	Client     *asynq.Client  `optional:"true"`
	DB         *gorm.DB       `optional:"true"`
	Config     *config.Config `optional:"true"`
	Logger     *zap.Logger
	Node       *snowflake.Node
}

// NewService constructs a new Service instance.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Executions == nil {
		panic("alert service requires execution repository dependency")
	}
	if p.Plans == nil {
		panic("alert service requires plan repository dependency")
	}
	if p.Tasks == nil {
		panic("alert service requires task repository dependency")
	}
	horizon := 7
	if p.Config != nil && p.Config.Scheduler.AlertHorizonDays > 0 {
		horizon = p.Config.Scheduler.AlertHorizonDays
	}
	return &Service{
		execs:   p.Executions,
		plans:   p.Plans,
		tasks:   p.Tasks,
		assets:  p.Assets,
		client:  p.Client,
		db:      p.DB,
		horizon: horizon,
		logger:  logger,
		node:    p.Node,
	}
}

// DefaultHorizonDays returns the configured alert window.
func (s *Service) DefaultHorizonDays() int { return s.horizon }

// Derive classifies every open execution due within the horizon. Executions
// due before asOf are overdue, due by tomorrow are urgent, the rest of the
// window is upcoming. The result is ordered by due date, ties broken by
// plan criticality descending.
func (s *Service) Derive(ctx context.Context, tenantID string, asOf time.Time, horizonDays int) ([]Alert, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if horizonDays <= 0 {
		horizonDays = s.horizon
	}
	today := dateOnly(asOf)
	horizon := today.AddDate(0, 0, horizonDays)

	execs, err := s.execs.ListOpen(ctx, tenantID, horizon)
	if err != nil {
		s.logger.Error("failed to list open executions", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to list open executions", errutil.WithErr(err))
	}

	planCache := make(map[string]*plan.MaintenancePlan)
	criticalityCache := make(map[string]int)

	alerts := make([]Alert, 0, len(execs))
	for i := range execs {
		e := &execs[i]

		due := dateOnly(e.DueDate)
		alertType, ok := classify(due, today, horizon)
		if !ok {
			continue
		}

		p, cached := planCache[e.PlanID]
		if !cached {
			p, err = s.plans.GetByID(ctx, tenantID, e.PlanID)
			if err != nil {
				s.logger.Warn("skipping execution with unresolvable plan",
					zap.String("execution_id", e.ID),
					zap.String("plan_id", e.PlanID),
					zap.Error(err))
				continue
			}
			planCache[e.PlanID] = p
			criticalityCache[e.PlanID] = s.criticalityFor(ctx, p)
		}

		a := Alert{
			Type:            alertType,
			TenantID:        tenantID,
			PlanID:          p.ID,
			PlanCode:        p.Code,
			PlanName:        p.Name,
			ExecutionID:     e.ID,
			ExecutionNumber: e.ExecutionNumber,
			AssetID:         e.AssetID,
			DueDate:         due,
			DaysUntilDue:    int(due.Sub(today).Hours() / 24),
			Criticality:     criticalityCache[e.PlanID],
		}

		if s.assets != nil {
			if info, err := s.assets.Lookup(ctx, tenantID, e.AssetID); err == nil && info != nil {
				a.AssetName = info.Name
				a.AssetLocation = info.Location
			}
		}

		alerts = append(alerts, a)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].DueDate.Equal(alerts[j].DueDate) {
			return alerts[i].DueDate.Before(alerts[j].DueDate)
		}
		return alerts[i].Criticality > alerts[j].Criticality
	})

	return alerts, nil
}

// Dispatch hands alerts to the notification queue and writes one audit row
// per alert. Delivery itself happens downstream.
func (s *Service) Dispatch(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	for _, a := range alerts {
		if s.client != nil {
			payload, err := json.Marshal(asynqmod.AlertDispatchPayload{
				TenantID:    a.TenantID,
				PlanID:      a.PlanID,
				ExecutionID: a.ExecutionID,
				Type:        string(a.Type),
				DueDate:     a.DueDate.Format("2006-01-02"),
			})
			if err != nil {
				return errutil.Internal("failed to encode alert payload", errutil.WithErr(err))
			}

			queue := asynqmod.QueueLow
			if a.Type == TypeOverdue || a.Type == TypeUrgent {
				queue = asynqmod.QueueCritical
			}

			t := asynq.NewTask(asynqmod.AlertDispatchTask, payload)
			if _, err := s.client.EnqueueContext(ctx, t, asynq.Queue(queue)); err != nil {
				s.logger.Error("failed to enqueue alert",
					zap.String("execution_id", a.ExecutionID),
					zap.Error(err))
				return errutil.Internal("failed to enqueue alert", errutil.WithErr(err))
			}
		}

		if s.db != nil {
			record := &NotificationRecord{
				ID:          s.nextID(),
				TenantID:    a.TenantID,
				PlanID:      a.PlanID,
				ExecutionID: a.ExecutionID,
				Type:        a.Type,
				DueDate:     a.DueDate,
				EnqueuedAt:  time.Now().UTC(),
			}
			if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
				s.logger.Error("failed to record alert dispatch",
					zap.String("execution_id", a.ExecutionID),
					zap.Error(err))
				return errutil.Internal("failed to record alert dispatch", errutil.WithErr(err))
			}
		}
	}

	return nil
}

// classify buckets one due date. The urgent band covers today and tomorrow;
// anything earlier is overdue, anything inside the horizon is upcoming.
func classify(due, today, horizon time.Time) (Type, bool) {
	switch {
	case due.Before(today):
		return TypeOverdue, true
	case !due.After(today.AddDate(0, 0, 1)):
		return TypeUrgent, true
	case !due.After(horizon):
		return TypeUpcoming, true
	default:
		return "", false
	}
}

// criticalityFor scores a plan for alert ordering: a reliability tier plus
// one when the checklist carries a critical task.
func (s *Service) criticalityFor(ctx context.Context, p *plan.MaintenancePlan) int {
	score := 0
	switch {
	case p.TargetReliability >= 99:
		score = 2
	case p.TargetReliability >= 95:
		score = 1
	}

	tasks, err := s.tasks.ListByPlan(ctx, p.TenantID, p.ID, true)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("failed to load tasks for criticality",
				zap.String("plan_id", p.ID),
				zap.Error(err))
		}
		return score
	}
	for _, t := range tasks {
		if t.Critical {
			score++
			break
		}
	}
	return score
}

func (s *Service) nextID() string {
	if s.node == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.node.Generate().String()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
