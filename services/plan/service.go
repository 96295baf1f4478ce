package plan

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
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TaskDeactivator is implemented by the task service. Retiring a plan
// deactivates its checklist items so no future schedule picks them up.
type TaskDeactivator interface {
	DeactivateForPlan(ctx context.Context, tenantID, planID string) error
}

// Service owns the plan lifecycle: draft, approval, activation, review and
// retirement. Every lifecycle change writes an audit event in the same
// transaction.
type Service struct {
	db       *gorm.DB
	repo     Repository
	tasks    TaskDeactivator
	analyzer config.Analyzer
	logger   *zap.Logger
	node     *snowflake.Node
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config  `optional:"true"`
	Tasks  TaskDeactivator `optional:"true"`
	Logger *zap.Logger
	Node   *snowflake.Node
}

// NewService constructs a new Service instance.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.DB == nil {
		panic("plan service requires database dependency")
	}
	analyzer := config.DefaultAnalyzer()
	if p.Config != nil {
		analyzer = p.Config.Analyzer
	}
	return &Service{
		db:       p.DB,
		repo:     NewRepository(p.DB),
		tasks:    p.Tasks,
		analyzer: analyzer,
		logger:   logger,
		node:     p.Node,
	}
}

// CreatePlanInput carries the fields accepted when registering a plan.
type CreatePlanInput struct {
	TenantID           string
	AssetID            string
	Code               string
	Name               string
	Description        string
	Strategy           Strategy
	Approach           Approach
	FrequencyType      FrequencyType
	FrequencyInterval  int
	FrequencyUnit      FrequencyUnit
	EstimatedHours     float64
	EstimatedCost      float64
	DowntimeHours      float64
	SafetyRequirements string
	RequiredTools      []string
	RequiredParts      []string
	TargetAvailability float64
	TargetReliability  float64
	TargetCostPerYear  float64
	EffectiveDate      time.Time
	ReviewDate         *time.Time
	Actor              string
}

// UpdatePlanInput carries the mutable fields of an existing plan.
type UpdatePlanInput struct {
	TenantID           string
	PlanID             string
	Name               string
	Description        string
	Strategy           Strategy
	Approach           Approach
	FrequencyType      FrequencyType
	FrequencyInterval  int
	FrequencyUnit      FrequencyUnit
	EstimatedHours     float64
	EstimatedCost      float64
	DowntimeHours      float64
	SafetyRequirements string
	RequiredTools      []string
	RequiredParts      []string
	TargetAvailability float64
	TargetReliability  float64
	TargetCostPerYear  float64
	EffectiveDate      time.Time
	ReviewDate         *time.Time
	Actor              string
}

// ApproveInput decides a pending approval. Approved defaults to rejection
// when false.
type ApproveInput struct {
	TenantID string
	PlanID   string
	Approver string
	Comment  string
	Approved bool
}

// CreatePlan registers a new draft plan with a pending approval.
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*MaintenancePlan, error) {
	if err := validateIdentity(in.TenantID, in.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.AssetID) == "" {
		return nil, errutil.ValidationFailed("asset_id is required",
			errutil.WithDetails(errutil.Detail{Field: "asset_id", Message: "required"}))
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, errutil.ValidationFailed("code is required",
			errutil.WithDetails(errutil.Detail{Field: "code", Message: "required"}))
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errutil.ValidationFailed("name is required",
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	unit, err := normalizeFrequency(in.FrequencyType, in.FrequencyInterval, in.FrequencyUnit)
	if err != nil {
		return nil, err
	}

	tools, err := encodeStrings(in.RequiredTools)
	if err != nil {
		return nil, errutil.Internal("failed to encode required tools", errutil.WithErr(err))
	}
	parts, err := encodeStrings(in.RequiredParts)
	if err != nil {
		return nil, errutil.Internal("failed to encode required parts", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	effective := in.EffectiveDate
	if effective.IsZero() {
		effective = now.Truncate(24 * time.Hour)
	}

	plan := &MaintenancePlan{
		ID:                 s.nextID(),
		TenantID:           in.TenantID,
		AssetID:            in.AssetID,
		Code:               strings.TrimSpace(in.Code),
		Name:               in.Name,
		Description:        in.Description,
		Strategy:           in.Strategy,
		Approach:           in.Approach,
		FrequencyType:      in.FrequencyType,
		FrequencyInterval:  in.FrequencyInterval,
		FrequencyUnit:      unit,
		EstimatedHours:     in.EstimatedHours,
		EstimatedCost:      in.EstimatedCost,
		DowntimeHours:      in.DowntimeHours,
		SafetyRequirements: in.SafetyRequirements,
		RequiredTools:      tools,
		RequiredParts:      parts,
		TargetAvailability: in.TargetAvailability,
		TargetReliability:  in.TargetReliability,
		TargetCostPerYear:  in.TargetCostPerYear,
		Status:             StatusDraft,
		ApprovalStatus:     ApprovalPending,
		EffectiveDate:      effective,
		ReviewDate:         in.ReviewDate,
		CreatedBy:          in.Actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		if _, err := repo.GetByCode(ctx, in.TenantID, plan.Code); err == nil {
			return errutil.Conflict("plan code already in use",
				errutil.WithDetails(errutil.Detail{Field: "code", Message: plan.Code}))
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := repo.Create(ctx, plan); err != nil {
			return err
		}
		return repo.AppendAudit(ctx, s.auditEvent(plan, AuditPlanCreated, in.Actor, ""))
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		s.logger.Error("failed to create plan",
			zap.String("tenant_id", in.TenantID),
			zap.String("code", plan.Code),
			zap.Error(err))
		return nil, errutil.Internal("failed to create plan", errutil.WithErr(err))
	}

	return plan, nil
}

// UpdatePlan replaces the mutable fields of a plan. Retired plans reject
// every update.
func (s *Service) UpdatePlan(ctx context.Context, in UpdatePlanInput) (*MaintenancePlan, error) {
	if err := validateIdentity(in.TenantID, in.Actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}
	unit, err := normalizeFrequency(in.FrequencyType, in.FrequencyInterval, in.FrequencyUnit)
	if err != nil {
		return nil, err
	}

	tools, err := encodeStrings(in.RequiredTools)
	if err != nil {
		return nil, errutil.Internal("failed to encode required tools", errutil.WithErr(err))
	}
	parts, err := encodeStrings(in.RequiredParts)
	if err != nil {
		return nil, errutil.Internal("failed to encode required parts", errutil.WithErr(err))
	}

	var updated *MaintenancePlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		existing, err := repo.GetByID(ctx, in.TenantID, in.PlanID)
		if err != nil {
			return err
		}
		if existing.Status.Terminal() {
			return errutil.InvalidTransition("retired plan cannot be updated")
		}

		existing.Name = in.Name
		existing.Description = in.Description
		existing.Strategy = in.Strategy
		existing.Approach = in.Approach
		existing.FrequencyType = in.FrequencyType
		existing.FrequencyInterval = in.FrequencyInterval
		existing.FrequencyUnit = unit
		existing.EstimatedHours = in.EstimatedHours
		existing.EstimatedCost = in.EstimatedCost
		existing.DowntimeHours = in.DowntimeHours
		existing.SafetyRequirements = in.SafetyRequirements
		existing.RequiredTools = tools
		existing.RequiredParts = parts
		existing.TargetAvailability = in.TargetAvailability
		existing.TargetReliability = in.TargetReliability
		existing.TargetCostPerYear = in.TargetCostPerYear
		if !in.EffectiveDate.IsZero() {
			existing.EffectiveDate = in.EffectiveDate
		}
		if in.ReviewDate != nil {
			existing.ReviewDate = in.ReviewDate
		}
		existing.UpdatedAt = time.Now().UTC()

		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.auditEvent(existing, AuditPlanUpdated, in.Actor, "")); err != nil {
			return err
		}

		updated = existing
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, in.TenantID, in.PlanID, "failed to update plan")
	}
	return updated, nil
}

// Approve decides a pending approval. An approval activates the plan; a
// rejection keeps it in draft for rework.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (*MaintenancePlan, error) {
	if err := validateIdentity(in.TenantID, in.Approver); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}

	var decided *MaintenancePlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		existing, err := repo.GetByID(ctx, in.TenantID, in.PlanID)
		if err != nil {
			return err
		}
		if existing.Status.Terminal() {
			return errutil.InvalidTransition("retired plan cannot be approved")
		}
		if existing.ApprovalStatus != ApprovalPending {
			return errutil.InvalidTransition(
				fmt.Sprintf("approval already decided: %s", existing.ApprovalStatus))
		}

		now := time.Now().UTC()
		action := AuditPlanRejected
		if in.Approved {
			existing.ApprovalStatus = ApprovalApproved
			existing.Status = StatusActive
			existing.ApprovedBy = in.Approver
			existing.ApprovedAt = &now
			action = AuditPlanApproved
		} else {
			existing.ApprovalStatus = ApprovalRejected
		}
		existing.UpdatedAt = now

		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.auditEvent(existing, action, in.Approver, in.Comment)); err != nil {
			return err
		}

		decided = existing
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, in.TenantID, in.PlanID, "failed to decide approval")
	}
	return decided, nil
}

// Retire moves a plan to its terminal state and deactivates its checklist
// items. Retirement is not reversible.
func (s *Service) Retire(ctx context.Context, tenantID, planID, actor, comment string) (*MaintenancePlan, error) {
	if err := validateIdentity(tenantID, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}

	var retired *MaintenancePlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		existing, err := repo.GetByID(ctx, tenantID, planID)
		if err != nil {
			return err
		}
		if existing.Status.Terminal() {
			return errutil.InvalidTransition("plan is already retired")
		}

		existing.Status = StatusRetired
		existing.UpdatedAt = time.Now().UTC()

		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.auditEvent(existing, AuditPlanRetired, actor, comment)); err != nil {
			return err
		}

		retired = existing
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, tenantID, planID, "failed to retire plan")
	}

	if s.tasks != nil {
		if err := s.tasks.DeactivateForPlan(ctx, tenantID, planID); err != nil {
			// The plan is retired either way; task rows stay inert because
			// generation only reads active plans.
			s.logger.Warn("failed to deactivate tasks for retired plan",
				zap.String("tenant_id", tenantID),
				zap.String("plan_id", planID),
				zap.Error(err))
		}
	}

	return retired, nil
}

// StartReview moves an active plan into review.
func (s *Service) StartReview(ctx context.Context, tenantID, planID, actor string) (*MaintenancePlan, error) {
	return s.transition(ctx, tenantID, planID, actor, "",
		StatusActive, StatusUnderReview, AuditPlanReviewStarted, nil)
}

// FinishReview returns a plan from review to active and records the next
// review date.
func (s *Service) FinishReview(ctx context.Context, tenantID, planID, actor string, nextReview *time.Time) (*MaintenancePlan, error) {
	return s.transition(ctx, tenantID, planID, actor, "",
		StatusUnderReview, StatusActive, AuditPlanReviewFinished, nextReview)
}

func (s *Service) transition(ctx context.Context, tenantID, planID, actor, comment string,
	from, to PlanStatus, action string, nextReview *time.Time) (*MaintenancePlan, error) {

	if err := validateIdentity(tenantID, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}

	var out *MaintenancePlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		existing, err := repo.GetByID(ctx, tenantID, planID)
		if err != nil {
			return err
		}
		if existing.Status != from {
			return errutil.InvalidTransition(
				fmt.Sprintf("plan is %s, expected %s", existing.Status, from))
		}

		existing.Status = to
		if nextReview != nil {
			existing.ReviewDate = nextReview
		}
		existing.UpdatedAt = time.Now().UTC()

		if err := repo.Update(ctx, existing); err != nil {
			return err
		}
		if err := repo.AppendAudit(ctx, s.auditEvent(existing, action, actor, comment)); err != nil {
			return err
		}

		out = existing
		return nil
	})
	if err != nil {
		return nil, s.wrap(err, tenantID, planID, "failed to transition plan")
	}
	return out, nil
}

// GetPlan fetches one plan by id.
func (s *Service) GetPlan(ctx context.Context, tenantID, planID string) (*MaintenancePlan, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}

	plan, err := s.repo.GetByID(ctx, tenantID, planID)
	if err != nil {
		return nil, s.wrap(err, tenantID, planID, "failed to get plan")
	}
	return plan, nil
}

// GetPlanByCode fetches one plan by its tenant-unique code.
func (s *Service) GetPlanByCode(ctx context.Context, tenantID, code string) (*MaintenancePlan, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(code) == "" {
		return nil, errutil.ValidationFailed("code is required",
			errutil.WithDetails(errutil.Detail{Field: "code", Message: "required"}))
	}

	plan, err := s.repo.GetByCode(ctx, tenantID, code)
	if err != nil {
		return nil, s.wrap(err, tenantID, code, "failed to get plan")
	}
	return plan, nil
}

// ListPlans returns plans for a tenant with optional status and asset filters.
func (s *Service) ListPlans(ctx context.Context, tenantID string, params ListParams) ([]MaintenancePlan, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if params.Limit <= 0 {
		params.Limit = defaultPageSize
	}
	if params.Limit > maxPageSize {
		params.Limit = maxPageSize
	}

	plans, err := s.repo.List(ctx, tenantID, params)
	if err != nil {
		s.logger.Error("failed to list plans", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to list plans", errutil.WithErr(err))
	}
	return plans, nil
}

// ListAudit returns the append-only history of a plan in chronological order.
func (s *Service) ListAudit(ctx context.Context, tenantID, planID string) ([]AuditEvent, error) {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("tenant_id and plan_id are required")
	}

	events, err := s.repo.ListAudit(ctx, tenantID, planID)
	if err != nil {
		s.logger.Error("failed to list audit events",
			zap.String("tenant_id", tenantID),
			zap.String("plan_id", planID),
			zap.Error(err))
		return nil, errutil.Internal("failed to list audit events", errutil.WithErr(err))
	}
	return events, nil
}

// Statistics summarizes the plan portfolio for a tenant.
type Statistics struct {
	Total            int64                `json:"total"`
	ByStatus         map[PlanStatus]int64 `json:"by_status"`
	LowEffectiveness []MaintenancePlan    `json:"low_effectiveness"`
	BudgetRisk       []MaintenancePlan    `json:"budget_risk"`
	DueForReview     []MaintenancePlan    `json:"due_for_review"`
}

// GetStatistics reports portfolio counts plus the plans flagged for low
// effectiveness, budget overrun risk and overdue review.
func (s *Service) GetStatistics(ctx context.Context, tenantID string) (*Statistics, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}

	byStatus, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, errutil.Internal("failed to count plans", errutil.WithErr(err))
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	low, err := s.repo.ListLowEffectiveness(ctx, tenantID, s.analyzer.LowEffectivenessScore)
	if err != nil {
		return nil, errutil.Internal("failed to list low effectiveness plans", errutil.WithErr(err))
	}

	risk, err := s.repo.ListBudgetRisk(ctx, tenantID, s.analyzer.BudgetRiskRatio)
	if err != nil {
		return nil, errutil.Internal("failed to list budget risk plans", errutil.WithErr(err))
	}

	review, err := s.repo.ListForReview(ctx, tenantID, time.Now().UTC())
	if err != nil {
		return nil, errutil.Internal("failed to list plans due for review", errutil.WithErr(err))
	}

	return &Statistics{
		Total:            total,
		ByStatus:         byStatus,
		LowEffectiveness: low,
		BudgetRisk:       risk,
		DueForReview:     review,
	}, nil
}

// Repo exposes the repository for sibling services that read plans.
func (s *Service) Repo() Repository { return s.repo }

func (s *Service) nextID() string {
	if s.node == nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return s.node.Generate().String()
}

func (s *Service) auditEvent(p *MaintenancePlan, action, actor, comment string) *AuditEvent {
	return &AuditEvent{
		ID:         s.nextID(),
		TenantID:   p.TenantID,
		PlanID:     p.ID,
		Action:     action,
		Actor:      actor,
		Comment:    comment,
		OccurredAt: time.Now().UTC(),
	}
}

// wrap translates repository errors into the service error taxonomy, leaving
// errors that already carry a status untouched.
func (s *Service) wrap(err error, tenantID, planID, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errutil.NotFound("plan not found",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: planID}))
	}
	if errutil.StatusOf(err) != errutil.StatusUnknown {
		return err
	}
	s.logger.Error(msg,
		zap.String("tenant_id", tenantID),
		zap.String("plan_id", planID),
		zap.Error(err))
	return errutil.Internal(msg, errutil.WithErr(err))
}

func validateIdentity(tenantID, actor string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(actor) == "" {
		return errutil.ValidationFailed("actor is required",
			errutil.WithDetails(errutil.Detail{Field: "actor", Message: "required"}))
	}
	return nil
}

func normalizeFrequency(ft FrequencyType, interval int, unit FrequencyUnit) (FrequencyUnit, error) {
	if !ft.Valid() {
		return "", errutil.ValidationFailed("unknown frequency type",
			errutil.WithDetails(errutil.Detail{Field: "frequency_type", Message: string(ft)}))
	}
	if interval < 1 {
		return "", errutil.ValidationFailed("frequency interval must be at least 1",
			errutil.WithDetails(errutil.Detail{Field: "frequency_interval", Message: fmt.Sprintf("%d", interval)}))
	}
	if ft == FrequencyCustom {
		if !unit.Valid() {
			return "", errutil.ValidationFailed("custom frequency requires a unit",
				errutil.WithDetails(errutil.Detail{Field: "frequency_unit", Message: string(unit)}))
		}
		return unit, nil
	}
	// Non-custom frequencies carry the unit implicitly.
	return "", nil
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
