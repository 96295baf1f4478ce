package checklist

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

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/task"
)

// Service instantiates per-execution checklists from plan tasks and records
// item outcomes. It implements execution.Checklist.
type Service struct {
	repo   Repository
	execs  execution.Repository
	tasks  task.Repository
	logger *zap.Logger
	node   *snowflake.Node
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Repository Repository
	Executions execution.Repository
	Tasks      task.Repository
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
		panic("checklist service requires repository dependency")
	}
	if p.Executions == nil {
		panic("checklist service requires execution repository dependency")
	}
	if p.Tasks == nil {
		panic("checklist service requires task repository dependency")
	}
	return &Service{
		repo:   p.Repository,
		execs:  p.Executions,
		tasks:  p.Tasks,
		logger: logger,
		node:   p.Node,
	}
}

// StartChecklist creates one pending item per active plan task, snapshotting
// sequence and name. Calling it on an execution that already has a checklist
// is a no-op.
func (s *Service) StartChecklist(ctx context.Context, tenantID, executionID string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(executionID) == "" {
		return errutil.ValidationFailed("tenant_id and execution_id are required")
	}

	existing, err := s.repo.ListByExecution(ctx, tenantID, executionID)
	if err != nil {
		s.logger.Error("failed to list checklist", zap.String("execution_id", executionID), zap.Error(err))
		return errutil.Internal("failed to instantiate checklist", errutil.WithErr(err))
	}
	if len(existing) > 0 {
		return nil
	}

	exec, err := s.execs.GetByID(ctx, tenantID, executionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errutil.NotFound("execution not found",
			errutil.WithDetails(errutil.Detail{Field: "execution_id", Message: executionID}))
	}
	if err != nil {
		s.logger.Error("failed to load execution", zap.String("execution_id", executionID), zap.Error(err))
		return errutil.Internal("failed to instantiate checklist", errutil.WithErr(err))
	}

	planTasks, err := s.tasks.ListByPlan(ctx, tenantID, exec.PlanID, true)
	if err != nil {
		s.logger.Error("failed to list plan tasks", zap.String("plan_id", exec.PlanID), zap.Error(err))
		return errutil.Internal("failed to instantiate checklist", errutil.WithErr(err))
	}
	if len(planTasks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	items := make([]TaskExecution, 0, len(planTasks))
	for _, pt := range planTasks {
		items = append(items, TaskExecution{
			ID:          s.nextID(),
			TenantID:    tenantID,
			ExecutionID: executionID,
			TaskID:      pt.ID,
			Sequence:    pt.Sequence,
			Name:        pt.Name,
			Status:      ItemPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.repo.CreateBatch(ctx, items); err != nil {
		// A concurrent instantiation hit the unique index first; the
		// checklist exists either way.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		s.logger.Error("failed to create checklist", zap.String("execution_id", executionID), zap.Error(err))
		return errutil.Internal("failed to instantiate checklist", errutil.WithErr(err))
	}
	return nil
}

// BeginItem moves one pending item to in_progress.
func (s *Service) BeginItem(ctx context.Context, tenantID, itemID, executedBy string) (*TaskExecution, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(itemID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and item_id are required")
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     ItemInProgress,
		"started_at": now,
		"updated_at": now,
	}
	if executedBy != "" {
		updates["executed_by"] = executedBy
	}

	affected, err := s.repo.UpdateStatus(ctx, tenantID, itemID, []ItemStatus{ItemPending}, updates)
	if err != nil {
		s.logger.Error("failed to begin checklist item", zap.String("item_id", itemID), zap.Error(err))
		return nil, errutil.Internal("failed to begin checklist item", errutil.WithErr(err))
	}
	if affected == 0 {
		return nil, s.transitionError(ctx, tenantID, itemID, "begin")
	}
	return s.get(ctx, tenantID, itemID)
}

// OutcomeInput records the terminal result of one checklist item.
type OutcomeInput struct {
	Status          ItemStatus
	ExecutedBy      string
	DurationMinutes int
	Notes           string
	QualityPassed   *bool
	QualityNotes    string
	IssuesFound     []string
	Cost            float64
	LaborHours      float64
}

// RecordOutcome finishes one item with completed, skipped or failed. Failed
// items and failed quality checks flag the execution for follow-up.
func (s *Service) RecordOutcome(ctx context.Context, tenantID, itemID string, in OutcomeInput) (*TaskExecution, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(itemID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and item_id are required")
	}
	if !in.Status.Terminal() {
		return nil, errutil.ValidationFailed("outcome status must be completed, skipped or failed",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(in.Status)}))
	}
	if in.DurationMinutes < 0 {
		return nil, errutil.ValidationFailed("duration_minutes must not be negative",
			errutil.WithDetails(errutil.Detail{Field: "duration_minutes", Message: fmt.Sprintf("%d", in.DurationMinutes)}))
	}

	issues, err := encodeStrings(in.IssuesFound)
	if err != nil {
		return nil, errutil.Internal("failed to encode issues", errutil.WithErr(err))
	}

	followUp := in.Status == ItemFailed
	now := time.Now().UTC()
	updates := map[string]any{
		"status":           in.Status,
		"completed_at":     now,
		"duration_minutes": in.DurationMinutes,
		"notes":            in.Notes,
		"quality_notes":    in.QualityNotes,
		"issues_found":     issues,
		"cost":             in.Cost,
		"labor_hours":      in.LaborHours,
		"updated_at":       now,
	}
	if in.ExecutedBy != "" {
		updates["executed_by"] = in.ExecutedBy
	}
	if in.QualityPassed != nil {
		updates["quality_checked"] = true
		updates["quality_passed"] = *in.QualityPassed
		if !*in.QualityPassed {
			followUp = true
		}
	}
	updates["follow_up_needed"] = followUp

	affected, err := s.repo.UpdateStatus(ctx, tenantID, itemID,
		[]ItemStatus{ItemPending, ItemInProgress}, updates)
	if err != nil {
		s.logger.Error("failed to record checklist outcome", zap.String("item_id", itemID), zap.Error(err))
		return nil, errutil.Internal("failed to record checklist outcome", errutil.WithErr(err))
	}
	if affected == 0 {
		return nil, s.transitionError(ctx, tenantID, itemID, "record outcome for")
	}
	return s.get(ctx, tenantID, itemID)
}

// List returns the checklist of an execution in sequence order.
func (s *Service) List(ctx context.Context, tenantID, executionID string) ([]TaskExecution, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(executionID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and execution_id are required")
	}

	items, err := s.repo.ListByExecution(ctx, tenantID, executionID)
	if err != nil {
		s.logger.Error("failed to list checklist", zap.String("execution_id", executionID), zap.Error(err))
		return nil, errutil.Internal("failed to list checklist", errutil.WithErr(err))
	}
	return items, nil
}

// Progress reports the terminal share of an execution's checklist as a
// percentage. Empty checklists report 0.
func (s *Service) Progress(ctx context.Context, tenantID, executionID string) (float64, error) {
	items, err := s.List(ctx, tenantID, executionID)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	var terminal int
	for _, item := range items {
		if item.Status.Terminal() {
			terminal++
		}
	}
	return float64(terminal) / float64(len(items)) * 100, nil
}

// Summary rolls up an execution's checklist for the completion path.
func (s *Service) Summary(ctx context.Context, tenantID, executionID string) (*execution.ChecklistSummary, error) {
	items, err := s.List(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}

	summary := &execution.ChecklistSummary{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case ItemPending:
			summary.Pending++
		case ItemInProgress:
			summary.InProgress++
		case ItemCompleted:
			summary.Completed++
		case ItemSkipped:
			summary.Skipped++
		case ItemFailed:
			summary.Failed++
		}
		summary.TotalCost += item.Cost
		summary.LaborHours += item.LaborHours
		if item.FollowUpNeeded {
			summary.RequiresFollowUp = true
		}
	}
	return summary, nil
}

func (s *Service) get(ctx context.Context, tenantID, itemID string) (*TaskExecution, error) {
	item, err := s.repo.GetByID(ctx, tenantID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("checklist item not found",
			errutil.WithDetails(errutil.Detail{Field: "item_id", Message: itemID}))
	}
	if err != nil {
		s.logger.Error("failed to get checklist item", zap.String("item_id", itemID), zap.Error(err))
		return nil, errutil.Internal("failed to get checklist item", errutil.WithErr(err))
	}
	return item, nil
}

func (s *Service) transitionError(ctx context.Context, tenantID, itemID, op string) error {
	existing, err := s.get(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	return errutil.InvalidTransition(
		fmt.Sprintf("checklist item is %s, cannot %s it", existing.Status, op))
}

func (s *Service) nextID() string {
	if s.node == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.node.Generate().String()
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
