package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"maintenance-engine/pkg/config"
	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
)

// Service generates planned executions from active plans. Generation is
// idempotent: rerunning a batch for the same day creates nothing new.
type Service struct {
	plans     plan.Repository
	execs     execution.Repository
	creator   *execution.Service
	lookahead int
	logger    *zap.Logger
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Plans      plan.Repository
	Executions execution.Repository
	Creator    *execution.Service
	Config     *config.Config `optional:"true"`
	Logger     *zap.Logger
}

// NewService constructs a new Service instance.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Plans == nil {
		panic("schedule service requires plan repository dependency")
	}
	if p.Executions == nil {
		panic("schedule service requires execution repository dependency")
	}
	if p.Creator == nil {
		panic("schedule service requires execution service dependency")
	}
	lookahead := 30
	if p.Config != nil && p.Config.Scheduler.LookaheadDays > 0 {
		lookahead = p.Config.Scheduler.LookaheadDays
	}
	return &Service{
		plans:     p.Plans,
		execs:     p.Executions,
		creator:   p.Creator,
		lookahead: lookahead,
		logger:    logger,
	}
}

// DefaultLookaheadDays returns the configured generation window.
func (s *Service) DefaultLookaheadDays() int { return s.lookahead }

// GenerateDue creates one planned execution for every active plan whose next
// occurrence falls within the lookahead window. The baseline for the
// recurrence step is the due date of the last completed execution, or the
// plan's effective date when it has never completed.
//
// A plan whose slot is already covered is skipped silently; other per-plan
// failures are logged and skipped so one bad plan cannot stall the batch.
// Cancellation between plans keeps the rows created so far.
func (s *Service) GenerateDue(ctx context.Context, tenantID string, asOf time.Time, lookaheadDays int) ([]*execution.ScheduledExecution, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if lookaheadDays <= 0 {
		lookaheadDays = s.lookahead
	}
	asOf = dateOnly(asOf)
	horizon := asOf.AddDate(0, 0, lookaheadDays)

	plans, err := s.plans.ListDue(ctx, tenantID, horizon)
	if err != nil {
		s.logger.Error("failed to list plans for generation",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, errutil.Internal("failed to list plans for generation", errutil.WithErr(err))
	}

	created := make([]*execution.ScheduledExecution, 0)
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		p := &plans[i]

		exec, err := s.generateForPlan(ctx, p, asOf, horizon)
		if err != nil {
			if errors.Is(err, execution.ErrAlreadyScheduled) {
				continue
			}
			s.logger.Warn("skipping plan after generation failure",
				zap.String("tenant_id", tenantID),
				zap.String("plan_id", p.ID),
				zap.Error(err))
			continue
		}
		if exec != nil {
			created = append(created, exec)
		}
	}

	s.logger.Info("schedule generation finished",
		zap.String("tenant_id", tenantID),
		zap.Time("as_of", asOf),
		zap.Int("plans", len(plans)),
		zap.Int("created", len(created)))

	return created, nil
}

func (s *Service) generateForPlan(ctx context.Context, p *plan.MaintenancePlan, asOf, horizon time.Time) (*execution.ScheduledExecution, error) {
	due, err := s.nextDueFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if due.After(horizon) {
		return nil, nil
	}

	return s.creator.CreatePlanned(ctx, execution.CreatePlannedInput{
		TenantID:             p.TenantID,
		PlanID:               p.ID,
		AssetID:              p.AssetID,
		DueDate:              due,
		PlannedDurationHours: p.EstimatedHours,
		PlannedCost:          p.EstimatedCost,
		ShutdownRequired:     p.DowntimeHours > 0,
	})
}

func (s *Service) nextDueFor(ctx context.Context, p *plan.MaintenancePlan) (time.Time, error) {
	last, err := s.execs.LastCompletedDue(ctx, p.TenantID, p.ID)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		// Never completed: the first occurrence is the effective date itself.
		return dateOnly(p.EffectiveDate), nil
	}

	due, err := NextDue(p, *last)
	if err != nil {
		return time.Time{}, err
	}
	return dateOnly(due), nil
}

// NextSchedule is a due-date preview entry for one plan. Nothing is created.
type NextSchedule struct {
	PlanID       string    `json:"plan_id"`
	PlanCode     string    `json:"plan_code"`
	PlanName     string    `json:"plan_name"`
	AssetID      string    `json:"asset_id"`
	NextDue      time.Time `json:"next_due"`
	DaysUntilDue int       `json:"days_until_due"`
	Overdue      bool      `json:"overdue"`
}

// NextSchedules previews the next occurrence of every active plan, ordered
// by due date.
func (s *Service) NextSchedules(ctx context.Context, tenantID string, asOf time.Time) ([]NextSchedule, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	asOf = dateOnly(asOf)
	horizon := asOf.AddDate(0, 0, s.lookahead)

	plans, err := s.plans.ListDue(ctx, tenantID, horizon)
	if err != nil {
		s.logger.Error("failed to list plans for preview",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil, errutil.Internal("failed to list plans for preview", errutil.WithErr(err))
	}

	out := make([]NextSchedule, 0, len(plans))
	for i := range plans {
		p := &plans[i]

		due, err := s.nextDueFor(ctx, p)
		if err != nil {
			s.logger.Warn("skipping plan in preview",
				zap.String("plan_id", p.ID),
				zap.Error(err))
			continue
		}

		out = append(out, NextSchedule{
			PlanID:       p.ID,
			PlanCode:     p.Code,
			PlanName:     p.Name,
			AssetID:      p.AssetID,
			NextDue:      due,
			DaysUntilDue: int(due.Sub(asOf).Hours() / 24),
			Overdue:      due.Before(asOf),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].NextDue.Before(out[j].NextDue)
	})
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
