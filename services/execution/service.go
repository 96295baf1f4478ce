package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"maintenance-engine/pkg/config"
	"maintenance-engine/pkg/errutil"
	"maintenance-engine/pkg/sequence"
	"maintenance-engine/services/plan"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ChecklistSummary is the rollup the checklist service reports for one
// execution.
type ChecklistSummary struct {
	Total            int     `json:"total"`
	Pending          int     `json:"pending"`
	InProgress       int     `json:"in_progress"`
	Completed        int     `json:"completed"`
	Skipped          int     `json:"skipped"`
	Failed           int     `json:"failed"`
	TotalCost        float64 `json:"total_cost"`
	LaborHours       float64 `json:"labor_hours"`
	RequiresFollowUp bool    `json:"requires_follow_up"`
}

// Terminal returns the number of checklist items in a terminal state.
func (s ChecklistSummary) Terminal() int {
	return s.Completed + s.Skipped + s.Failed
}

// Checklist is implemented by the checklist service. Start instantiates the
// per-execution checklist; Summary rolls it up at completion.
type Checklist interface {
	StartChecklist(ctx context.Context, tenantID, executionID string) error
	Summary(ctx context.Context, tenantID, executionID string) (*ChecklistSummary, error)
}

// Service tracks executions through their state machine. Transitions are
// compare-and-set updates so concurrent workers cannot double-apply them.
type Service struct {
	repo     Repository
	plans    plan.Repository
	numbers  sequence.Generator
	check    Checklist
	analyzer config.Analyzer
	logger   *zap.Logger
	node     *snowflake.Node
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Repository Repository
	Plans      plan.Repository
	Numbers    sequence.Generator
	Checklist  Checklist      `optional:"true"`
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
	if p.Repository == nil {
		panic("execution service requires repository dependency")
	}
	if p.Plans == nil {
		panic("execution service requires plan repository dependency")
	}
	if p.Numbers == nil {
		panic("execution service requires sequence generator dependency")
	}
	analyzer := config.DefaultAnalyzer()
	if p.Config != nil {
		analyzer = p.Config.Analyzer
	}
	return &Service{
		repo:     p.Repository,
		plans:    p.Plans,
		numbers:  p.Numbers,
		check:    p.Checklist,
		analyzer: analyzer,
		logger:   logger,
		node:     p.Node,
	}
}

// CreatePlannedInput carries the fields the schedule generator supplies for
// a new occurrence.
type CreatePlannedInput struct {
	TenantID             string
	PlanID               string
	AssetID              string
	DueDate              time.Time
	PlannedDurationHours float64
	PlannedCost          float64
	ShutdownRequired     bool
}

// CreatePlanned inserts one planned occurrence of a plan. A collision on the
// schedule key returns ErrAlreadyScheduled unchanged so the generator can
// treat the slot as covered.
func (s *Service) CreatePlanned(ctx context.Context, in CreatePlannedInput) (*ScheduledExecution, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.PlanID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and plan_id are required")
	}
	if in.DueDate.IsZero() {
		return nil, errutil.ValidationFailed("due_date is required",
			errutil.WithDetails(errutil.Detail{Field: "due_date", Message: "required"}))
	}

	number, err := s.numbers.NextExecutionNumber(ctx, in.TenantID, in.DueDate)
	if err != nil {
		s.logger.Error("failed to allocate execution number",
			zap.String("tenant_id", in.TenantID),
			zap.Error(err))
		return nil, errutil.Internal("failed to allocate execution number", errutil.WithErr(err))
	}

	key := ScheduleKeyFor(in.PlanID, in.DueDate)
	now := time.Now().UTC()
	exec := &ScheduledExecution{
		ID:                   s.nextID(),
		TenantID:             in.TenantID,
		PlanID:               in.PlanID,
		AssetID:              in.AssetID,
		ExecutionNumber:      number,
		DueDate:              in.DueDate,
		ScheduleKey:          &key,
		Status:               StatusPlanned,
		PlannedDurationHours: in.PlannedDurationHours,
		PlannedCost:          in.PlannedCost,
		ShutdownRequired:     in.ShutdownRequired,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, exec); err != nil {
		if errors.Is(err, ErrAlreadyScheduled) {
			return nil, err
		}
		s.logger.Error("failed to create execution",
			zap.String("plan_id", in.PlanID),
			zap.Time("due_date", in.DueDate),
			zap.Error(err))
		return nil, errutil.Internal("failed to create execution", errutil.WithErr(err))
	}
	return exec, nil
}

// ScheduleInput confirms a planned occurrence with a time window and crew.
type ScheduleInput struct {
	PlannedStart     *time.Time
	PlannedEnd       *time.Time
	LeadTechnicianID string
}

// Schedule confirms a planned execution. Only planned executions accept it.
func (s *Service) Schedule(ctx context.Context, tenantID, executionID string, in ScheduleInput) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":     StatusScheduled,
		"updated_at": time.Now().UTC(),
	}
	if in.PlannedStart != nil {
		updates["planned_start"] = in.PlannedStart
	}
	if in.PlannedEnd != nil {
		updates["planned_end"] = in.PlannedEnd
	}
	if in.LeadTechnicianID != "" {
		updates["lead_technician_id"] = in.LeadTechnicianID
	}

	return s.transition(ctx, tenantID, executionID, []Status{StatusPlanned}, updates, "schedule")
}

// StartInput records the conditions under which work begins.
type StartInput struct {
	TechnicianID         string
	ActualStart          *time.Time
	ConditionBefore      AssetCondition
	SafetyBriefingDone   bool
	LockoutTagoutApplied bool
}

// Start moves an execution into in_progress and instantiates its checklist.
func (s *Service) Start(ctx context.Context, tenantID, executionID string, in StartInput) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}
	if in.ConditionBefore != "" && !in.ConditionBefore.Valid() {
		return nil, errutil.ValidationFailed("unknown asset condition",
			errutil.WithDetails(errutil.Detail{Field: "condition_before", Message: string(in.ConditionBefore)}))
	}

	started := time.Now().UTC()
	if in.ActualStart != nil {
		started = in.ActualStart.UTC()
	}

	updates := map[string]any{
		"status":                 StatusInProgress,
		"actual_start":           started,
		"safety_briefing_done":   in.SafetyBriefingDone,
		"lockout_tagout_applied": in.LockoutTagoutApplied,
		"updated_at":             time.Now().UTC(),
	}
	if in.TechnicianID != "" {
		updates["lead_technician_id"] = in.TechnicianID
	}
	if in.ConditionBefore != "" {
		updates["condition_before"] = in.ConditionBefore
	}

	exec, err := s.transition(ctx, tenantID, executionID,
		[]Status{StatusPlanned, StatusScheduled}, updates, "start")
	if err != nil {
		return nil, err
	}

	if s.check != nil {
		if err := s.check.StartChecklist(ctx, tenantID, executionID); err != nil {
			// The execution is running; the checklist can be instantiated
			// again on the next start attempt of any item.
			s.logger.Warn("failed to instantiate checklist",
				zap.String("execution_id", executionID),
				zap.Error(err))
		}
	}

	return exec, nil
}

// CompleteInput records the outcome of finished work.
type CompleteInput struct {
	CompletedBy         string
	ActualEnd           *time.Time
	ActualDurationHours float64
	DowntimeHours       float64
	LaborCost           float64
	MaterialCost        float64
	ContractorCost      float64
	ActualCost          float64
	QualityRating       *float64
	ConditionAfter      AssetCondition
	IssuesEncountered   []string
	RequiresFollowUp    bool
}

// Complete finishes an in_progress execution. The cost, checklist rollup and
// plan year-to-date totals are written together; a precondition failure
// leaves the row untouched.
func (s *Service) Complete(ctx context.Context, tenantID, executionID string, in CompleteInput) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CompletedBy) == "" {
		return nil, errutil.ValidationFailed("completed_by is required",
			errutil.WithDetails(errutil.Detail{Field: "completed_by", Message: "required"}))
	}
	if in.ConditionAfter != "" && !in.ConditionAfter.Valid() {
		return nil, errutil.ValidationFailed("unknown asset condition",
			errutil.WithDetails(errutil.Detail{Field: "condition_after", Message: string(in.ConditionAfter)}))
	}
	if in.QualityRating != nil {
		if *in.QualityRating < s.analyzer.MinQualityRating || *in.QualityRating > s.analyzer.MaxQualityRating {
			return nil, errutil.ValidationFailed("quality rating out of range",
				errutil.WithDetails(errutil.Detail{
					Field:   "quality_rating",
					Message: fmt.Sprintf("%.1f not in [%.1f, %.1f]", *in.QualityRating, s.analyzer.MinQualityRating, s.analyzer.MaxQualityRating),
				}))
		}
	}

	existing, err := s.get(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}

	ended := time.Now().UTC()
	if in.ActualEnd != nil {
		ended = in.ActualEnd.UTC()
	}

	duration := in.ActualDurationHours
	if duration == 0 && existing.ActualStart != nil && ended.After(*existing.ActualStart) {
		duration = ended.Sub(*existing.ActualStart).Hours()
	}

	actualCost := in.ActualCost
	if actualCost == 0 {
		actualCost = in.LaborCost + in.MaterialCost + in.ContractorCost
	}

	completion := 100.0
	followUp := in.RequiresFollowUp
	if s.check != nil {
		summary, err := s.check.Summary(ctx, tenantID, executionID)
		if err != nil {
			s.logger.Warn("failed to summarize checklist",
				zap.String("execution_id", executionID),
				zap.Error(err))
		} else if summary.Total > 0 {
			completion = float64(summary.Terminal()) / float64(summary.Total) * 100
			followUp = followUp || summary.RequiresFollowUp
		}
	}

	issues, err := encodeStrings(in.IssuesEncountered)
	if err != nil {
		return nil, errutil.Internal("failed to encode issues", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":                StatusCompleted,
		"actual_end":            ended,
		"actual_duration_hours": duration,
		"downtime_hours":        in.DowntimeHours,
		"labor_cost":            in.LaborCost,
		"material_cost":         in.MaterialCost,
		"contractor_cost":       in.ContractorCost,
		"actual_cost":           actualCost,
		"completion_percent":    completion,
		"requires_follow_up":    followUp,
		"issues_encountered":    issues,
		"completed_by":          in.CompletedBy,
		"completed_at":          now,
		"updated_at":            now,
	}
	if in.QualityRating != nil {
		updates["quality_rating"] = *in.QualityRating
	}
	if in.ConditionAfter != "" {
		updates["condition_after"] = in.ConditionAfter
	}

	exec, err := s.transition(ctx, tenantID, executionID, []Status{StatusInProgress}, updates, "complete")
	if err != nil {
		return nil, err
	}

	if err := s.plans.AddActuals(ctx, tenantID, exec.PlanID, actualCost, duration); err != nil {
		// The execution record is authoritative; plan totals are derived and
		// recoverable from it.
		s.logger.Warn("failed to roll actuals into plan",
			zap.String("plan_id", exec.PlanID),
			zap.Error(err))
	}

	return exec, nil
}

// Cancel aborts a non-terminal execution. Clearing the schedule key frees
// the plan+date slot for regeneration.
func (s *Service) Cancel(ctx context.Context, tenantID, executionID, reason string) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errutil.ValidationFailed("reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	updates := map[string]any{
		"status":        StatusCancelled,
		"cancel_reason": reason,
		"schedule_key":  nil,
		"updated_at":    time.Now().UTC(),
	}

	return s.transition(ctx, tenantID, executionID,
		[]Status{StatusPlanned, StatusScheduled, StatusInProgress}, updates, "cancel")
}

// ReviewInput records the post-completion sign-off.
type ReviewInput struct {
	ReviewedBy string
	ApprovedBy string
}

// Review records reviewer and approver on a completed execution. The status
// does not change.
func (s *Service) Review(ctx context.Context, tenantID, executionID string, in ReviewInput) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ReviewedBy) == "" {
		return nil, errutil.ValidationFailed("reviewed_by is required",
			errutil.WithDetails(errutil.Detail{Field: "reviewed_by", Message: "required"}))
	}

	existing, err := s.get(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusCompleted {
		return nil, errutil.InvalidTransition(
			fmt.Sprintf("execution is %s, review requires completed", existing.Status))
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"reviewed_by": in.ReviewedBy,
		"reviewed_at": now,
		"updated_at":  now,
	}
	if in.ApprovedBy != "" {
		updates["approved_by"] = in.ApprovedBy
		updates["approved_at"] = now
	}

	if _, err := s.repo.Update(ctx, tenantID, executionID, updates); err != nil {
		s.logger.Error("failed to record review", zap.String("execution_id", executionID), zap.Error(err))
		return nil, errutil.Internal("failed to record review", errutil.WithErr(err))
	}

	return s.get(ctx, tenantID, executionID)
}

// Get fetches one execution by id.
func (s *Service) Get(ctx context.Context, tenantID, executionID string) (*ScheduledExecution, error) {
	if err := validateIDs(tenantID, executionID); err != nil {
		return nil, err
	}
	return s.get(ctx, tenantID, executionID)
}

// List returns executions matching the filter, due date ascending.
func (s *Service) List(ctx context.Context, tenantID string, params ListParams) ([]ScheduledExecution, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, errutil.ValidationFailed("unknown status",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(params.Status)}))
	}
	if params.Limit <= 0 {
		params.Limit = defaultPageSize
	}
	if params.Limit > maxPageSize {
		params.Limit = maxPageSize
	}

	execs, err := s.repo.List(ctx, tenantID, params)
	if err != nil {
		s.logger.Error("failed to list executions", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to list executions", errutil.WithErr(err))
	}
	return execs, nil
}

// Statistics summarizes executions over a period.
type Statistics struct {
	Total          int64            `json:"total"`
	ByStatus       map[Status]int64 `json:"by_status"`
	CompletionRate float64          `json:"completion_rate"`
	AvgDuration    float64          `json:"avg_duration_hours"`
	AvgCost        float64          `json:"avg_cost"`
	AvgQuality     float64          `json:"avg_quality"`
}

// GetStatistics reports counts by status plus completion rate and averages
// over completed executions in the period.
func (s *Service) GetStatistics(ctx context.Context, tenantID string, from, to time.Time) (*Statistics, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}

	byStatus, err := s.repo.CountByStatus(ctx, tenantID, from, to)
	if err != nil {
		s.logger.Error("failed to count executions", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to count executions", errutil.WithErr(err))
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	stats := &Statistics{
		Total:    total,
		ByStatus: byStatus,
	}
	if total > 0 {
		stats.CompletionRate = float64(byStatus[StatusCompleted]) / float64(total) * 100
	}

	completed, err := s.repo.List(ctx, tenantID, ListParams{
		Status: StatusCompleted,
		From:   from,
		To:     to,
		Limit:  maxPageSize * 10,
	})
	if err != nil {
		s.logger.Error("failed to list completed executions", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to list completed executions", errutil.WithErr(err))
	}

	if len(completed) > 0 {
		var duration, cost, quality float64
		var rated int
		for _, e := range completed {
			duration += e.ActualDurationHours
			cost += e.ActualCost
			if e.QualityRating != nil {
				quality += *e.QualityRating
				rated++
			}
		}
		stats.AvgDuration = duration / float64(len(completed))
		stats.AvgCost = cost / float64(len(completed))
		if rated > 0 {
			stats.AvgQuality = quality / float64(rated)
		}
	}

	return stats, nil
}

func (s *Service) get(ctx context.Context, tenantID, executionID string) (*ScheduledExecution, error) {
	exec, err := s.repo.GetByID(ctx, tenantID, executionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("execution not found",
			errutil.WithDetails(errutil.Detail{Field: "execution_id", Message: executionID}))
	}
	if err != nil {
		s.logger.Error("failed to get execution", zap.String("execution_id", executionID), zap.Error(err))
		return nil, errutil.Internal("failed to get execution", errutil.WithErr(err))
	}
	return exec, nil
}

// transition applies a CAS status update and reloads the row. Zero rows
// affected means the execution either does not exist or is not in an
// accepted state; the reload disambiguates.
func (s *Service) transition(ctx context.Context, tenantID, executionID string, from []Status, updates map[string]any, op string) (*ScheduledExecution, error) {
	affected, err := s.repo.UpdateStatus(ctx, tenantID, executionID, from, updates)
	if err != nil {
		s.logger.Error("failed to transition execution",
			zap.String("execution_id", executionID),
			zap.String("op", op),
			zap.Error(err))
		return nil, errutil.Internal("failed to transition execution", errutil.WithErr(err))
	}
	if affected == 0 {
		existing, err := s.get(ctx, tenantID, executionID)
		if err != nil {
			return nil, err
		}
		return nil, errutil.InvalidTransition(
			fmt.Sprintf("execution is %s, %s not permitted", existing.Status, op))
	}
	return s.get(ctx, tenantID, executionID)
}

func (s *Service) nextID() string {
	if s.node == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.node.Generate().String()
}

func validateIDs(tenantID, executionID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(executionID) == "" {
		return errutil.ValidationFailed("execution_id is required",
			errutil.WithDetails(errutil.Detail{Field: "execution_id", Message: "required"}))
	}
	return nil
}

func encodeStrings(values []string) (datatypes.JSON, error) {
	if len(values) == 0 {
		return datatypes.JSON([]byte("[]")), nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
