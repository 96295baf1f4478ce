package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/plan"
)

// Service manages the checklist items attached to a maintenance plan.
type Service struct {
	repo   Repository
	plans  plan.Repository
	logger *zap.Logger
	node   *snowflake.Node
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Repository Repository
	Plans      plan.Repository
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
		panic("task service requires repository dependency")
	}
	if p.Plans == nil {
		panic("task service requires plan repository dependency")
	}
	return &Service{
		repo:   p.Repository,
		plans:  p.Plans,
		logger: logger,
		node:   p.Node,
	}
}

// AddTaskInput carries the fields accepted when adding a checklist item.
type AddTaskInput struct {
	TenantID            string
	PlanID              string
	Sequence            int
	Name                string
	Description         string
	Type                TaskType
	Instructions        string
	EstimatedMinutes    int
	RequiredSkill       SkillLevel
	Critical            bool
	InspectionRequired  bool
	MeasurementRequired bool
	PhotoRequired       bool
}

// UpdateTaskInput carries the mutable fields of an existing checklist item.
type UpdateTaskInput struct {
	TenantID            string
	TaskID              string
	Name                string
	Description         string
	Type                TaskType
	Instructions        string
	EstimatedMinutes    int
	RequiredSkill       SkillLevel
	Critical            bool
	InspectionRequired  bool
	MeasurementRequired bool
	PhotoRequired       bool
}

// AddTask appends a checklist item to a plan. The sequence number must be
// unique within the plan.
func (s *Service) AddTask(ctx context.Context, in AddTaskInput) (*MaintenanceTask, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errutil.ValidationFailed("name is required",
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	if in.Sequence < 1 {
		return nil, errutil.ValidationFailed("sequence must be at least 1",
			errutil.WithDetails(errutil.Detail{Field: "sequence", Message: fmt.Sprintf("%d", in.Sequence)}))
	}
	if in.EstimatedMinutes < 0 {
		return nil, errutil.ValidationFailed("estimated_minutes must not be negative",
			errutil.WithDetails(errutil.Detail{Field: "estimated_minutes", Message: fmt.Sprintf("%d", in.EstimatedMinutes)}))
	}
	if in.Type != "" && !in.Type.Valid() {
		return nil, errutil.ValidationFailed("unknown task type",
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(in.Type)}))
	}
	if in.RequiredSkill != "" && !in.RequiredSkill.Valid() {
		return nil, errutil.ValidationFailed("unknown skill level",
			errutil.WithDetails(errutil.Detail{Field: "required_skill", Message: string(in.RequiredSkill)}))
	}

	owner, err := s.plans.GetByID(ctx, in.TenantID, in.PlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("plan not found",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: in.PlanID}))
	}
	if err != nil {
		s.logger.Error("failed to load plan for task", zap.String("plan_id", in.PlanID), zap.Error(err))
		return nil, errutil.Internal("failed to add task", errutil.WithErr(err))
	}
	if owner.Status.Terminal() {
		return nil, errutil.InvalidTransition("retired plan cannot accept tasks")
	}

	if _, err := s.repo.GetBySequence(ctx, in.TenantID, in.PlanID, in.Sequence); err == nil {
		return nil, errutil.Conflict("sequence already in use",
			errutil.WithDetails(errutil.Detail{Field: "sequence", Message: fmt.Sprintf("%d", in.Sequence)}))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("failed to check task sequence", zap.String("plan_id", in.PlanID), zap.Error(err))
		return nil, errutil.Internal("failed to add task", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	task := &MaintenanceTask{
		ID:                  s.nextID(),
		TenantID:            in.TenantID,
		PlanID:              in.PlanID,
		Sequence:            in.Sequence,
		Name:                in.Name,
		Description:         in.Description,
		Type:                in.Type,
		Instructions:        in.Instructions,
		EstimatedMinutes:    in.EstimatedMinutes,
		RequiredSkill:       in.RequiredSkill,
		Critical:            in.Critical,
		InspectionRequired:  in.InspectionRequired,
		MeasurementRequired: in.MeasurementRequired,
		PhotoRequired:       in.PhotoRequired,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			zap.String("plan_id", in.PlanID),
			zap.Int("sequence", in.Sequence),
			zap.Error(err))
		return nil, errutil.Internal("failed to add task", errutil.WithErr(err))
	}
	return task, nil
}

// UpdateTask replaces the descriptive fields of a checklist item. The
// sequence is fixed after creation so historical executions keep their
// ordering.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (*MaintenanceTask, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.TaskID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and task_id are required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errutil.ValidationFailed("name is required",
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	if in.EstimatedMinutes < 0 {
		return nil, errutil.ValidationFailed("estimated_minutes must not be negative",
			errutil.WithDetails(errutil.Detail{Field: "estimated_minutes", Message: fmt.Sprintf("%d", in.EstimatedMinutes)}))
	}
	if in.Type != "" && !in.Type.Valid() {
		return nil, errutil.ValidationFailed("unknown task type",
			errutil.WithDetails(errutil.Detail{Field: "type", Message: string(in.Type)}))
	}
	if in.RequiredSkill != "" && !in.RequiredSkill.Valid() {
		return nil, errutil.ValidationFailed("unknown skill level",
			errutil.WithDetails(errutil.Detail{Field: "required_skill", Message: string(in.RequiredSkill)}))
	}

	existing, err := s.repo.GetByID(ctx, in.TenantID, in.TaskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("task not found",
			errutil.WithDetails(errutil.Detail{Field: "task_id", Message: in.TaskID}))
	}
	if err != nil {
		s.logger.Error("failed to load task", zap.String("task_id", in.TaskID), zap.Error(err))
		return nil, errutil.Internal("failed to update task", errutil.WithErr(err))
	}

	existing.Name = in.Name
	existing.Description = in.Description
	existing.Type = in.Type
	existing.Instructions = in.Instructions
	existing.EstimatedMinutes = in.EstimatedMinutes
	existing.RequiredSkill = in.RequiredSkill
	existing.Critical = in.Critical
	existing.InspectionRequired = in.InspectionRequired
	existing.MeasurementRequired = in.MeasurementRequired
	existing.PhotoRequired = in.PhotoRequired
	existing.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, existing); err != nil {
		s.logger.Error("failed to update task", zap.String("task_id", in.TaskID), zap.Error(err))
		return nil, errutil.Internal("failed to update task", errutil.WithErr(err))
	}
	return existing, nil
}

// DeactivateTask soft-disables one checklist item. Already inactive items
// are left untouched.
func (s *Service) DeactivateTask(ctx context.Context, tenantID, taskID string) (*MaintenanceTask, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(taskID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and task_id are required")
	}

	existing, err := s.repo.GetByID(ctx, tenantID, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("task not found",
			errutil.WithDetails(errutil.Detail{Field: "task_id", Message: taskID}))
	}
	if err != nil {
		s.logger.Error("failed to load task", zap.String("task_id", taskID), zap.Error(err))
		return nil, errutil.Internal("failed to deactivate task", errutil.WithErr(err))
	}
	if !existing.Active {
		return existing, nil
	}

	existing.Active = false
	existing.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, existing); err != nil {
		s.logger.Error("failed to deactivate task", zap.String("task_id", taskID), zap.Error(err))
		return nil, errutil.Internal("failed to deactivate task", errutil.WithErr(err))
	}
	return existing, nil
}

// DeactivateForPlan disables every checklist item of a plan. Called by the
// plan service on retirement.
func (s *Service) DeactivateForPlan(ctx context.Context, tenantID, planID string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(planID) == "" {
		return errutil.ValidationFailed("tenant_id and plan_id are required")
	}
	if err := s.repo.DeactivateByPlan(ctx, tenantID, planID); err != nil {
		s.logger.Error("failed to deactivate plan tasks", zap.String("plan_id", planID), zap.Error(err))
		return errutil.Internal("failed to deactivate plan tasks", errutil.WithErr(err))
	}
	return nil
}

// GetTask fetches one checklist item by id.
func (s *Service) GetTask(ctx context.Context, tenantID, taskID string) (*MaintenanceTask, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(taskID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and task_id are required")
	}

	task, err := s.repo.GetByID(ctx, tenantID, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("task not found",
			errutil.WithDetails(errutil.Detail{Field: "task_id", Message: taskID}))
	}
	if err != nil {
		s.logger.Error("failed to get task", zap.String("task_id", taskID), zap.Error(err))
		return nil, errutil.Internal("failed to get task", errutil.WithErr(err))
	}
	return task, nil
}

// ListTasks returns a plan's checklist in sequence order.
func (s *Service) ListTasks(ctx context.Context, tenantID, planID string, activeOnly bool) ([]MaintenanceTask, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and plan_id are required")
	}

	tasks, err := s.repo.ListByPlan(ctx, tenantID, planID, activeOnly)
	if err != nil {
		s.logger.Error("failed to list tasks", zap.String("plan_id", planID), zap.Error(err))
		return nil, errutil.Internal("failed to list tasks", errutil.WithErr(err))
	}
	return tasks, nil
}

func (s *Service) nextID() string {
	if s.node == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.node.Generate().String()
}
