package plan

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ListParams describes filters applied when listing plans from the repository.
type ListParams struct {
	Status  PlanStatus
	AssetID string
	Limit   int
	Offset  int
}

// Repository describes database operations available for maintenance plans.
type Repository interface {
	Create(ctx context.Context, plan *MaintenancePlan) error
	GetByID(ctx context.Context, tenantID, planID string) (*MaintenancePlan, error)
	GetByCode(ctx context.Context, tenantID, code string) (*MaintenancePlan, error)
	List(ctx context.Context, tenantID string, params ListParams) ([]MaintenancePlan, error)
	ListDue(ctx context.Context, tenantID string, effectiveBy time.Time) ([]MaintenancePlan, error)
	DistinctTenants(ctx context.Context) ([]string, error)
	Update(ctx context.Context, plan *MaintenancePlan) error
	AddActuals(ctx context.Context, tenantID, planID string, cost, hours float64) error
	SetEffectiveness(ctx context.Context, tenantID, planID string, completionRate, score float64) error
	CountByStatus(ctx context.Context, tenantID string) (map[PlanStatus]int64, error)
	ListForReview(ctx context.Context, tenantID string, by time.Time) ([]MaintenancePlan, error)
	ListLowEffectiveness(ctx context.Context, tenantID string, minScore float64) ([]MaintenancePlan, error)
	ListBudgetRisk(ctx context.Context, tenantID string, thresholdRatio float64) ([]MaintenancePlan, error)
	AppendAudit(ctx context.Context, event *AuditEvent) error
	ListAudit(ctx context.Context, tenantID, planID string) ([]AuditEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, plan *MaintenancePlan) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, planID string) (*MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plan MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, planID).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetByCode(ctx context.Context, tenantID, code string) (*MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plan MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) List(ctx context.Context, tenantID string, params ListParams) ([]MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&MaintenancePlan{}).
		Where("tenant_id = ?", tenantID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.AssetID != "" {
		query = query.Where("asset_id = ?", params.AssetID)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	query = query.Order("code ASC")

	var plans []MaintenancePlan
	if err := query.Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// ListDue selects the active plans whose effective date has been reached,
// the candidate set for schedule generation.
func (r *gormRepository) ListDue(ctx context.Context, tenantID string, effectiveBy time.Time) ([]MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plans []MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND effective_date <= ?", tenantID, StatusActive, effectiveBy).
		Order("effective_date ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// DistinctTenants lists every tenant that has at least one active plan, the
// fan-out set for the daily generation tick.
func (r *gormRepository) DistinctTenants(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var tenants []string
	err := r.db.WithContext(ctx).Model(&MaintenancePlan{}).
		Where("status = ?", StatusActive).
		Distinct("tenant_id").
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *gormRepository) Update(ctx context.Context, plan *MaintenancePlan) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&MaintenancePlan{}).
		Where("tenant_id = ? AND id = ?", plan.TenantID, plan.ID).
		Updates(map[string]any{
			"name":                 plan.Name,
			"description":          plan.Description,
			"strategy":             plan.Strategy,
			"approach":             plan.Approach,
			"frequency_type":       plan.FrequencyType,
			"frequency_interval":   plan.FrequencyInterval,
			"frequency_unit":       plan.FrequencyUnit,
			"estimated_hours":      plan.EstimatedHours,
			"estimated_cost":       plan.EstimatedCost,
			"downtime_hours":       plan.DowntimeHours,
			"safety_requirements":  plan.SafetyRequirements,
			"required_tools":       plan.RequiredTools,
			"required_parts":       plan.RequiredParts,
			"target_availability":  plan.TargetAvailability,
			"target_reliability":   plan.TargetReliability,
			"target_cost_per_year": plan.TargetCostPerYear,
			"status":               plan.Status,
			"approval_status":      plan.ApprovalStatus,
			"effective_date":       plan.EffectiveDate,
			"review_date":          plan.ReviewDate,
			"approved_by":          plan.ApprovedBy,
			"approved_at":          plan.ApprovedAt,
			"updated_at":           plan.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddActuals rolls completed execution cost and hours into the plan's
// year-to-date totals.
func (r *gormRepository) AddActuals(ctx context.Context, tenantID, planID string, cost, hours float64) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&MaintenancePlan{}).
		Where("tenant_id = ? AND id = ?", tenantID, planID).
		Updates(map[string]any{
			"actual_cost_ytd":  gorm.Expr("actual_cost_ytd + ?", cost),
			"actual_hours_ytd": gorm.Expr("actual_hours_ytd + ?", hours),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) SetEffectiveness(ctx context.Context, tenantID, planID string, completionRate, score float64) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&MaintenancePlan{}).
		Where("tenant_id = ? AND id = ?", tenantID, planID).
		Updates(map[string]any{
			"completion_rate":     completionRate,
			"effectiveness_score": score,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) CountByStatus(ctx context.Context, tenantID string) (map[PlanStatus]int64, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	type row struct {
		Status PlanStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&MaintenancePlan{}).
		Select("status, COUNT(*) AS total").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[PlanStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

func (r *gormRepository) ListForReview(ctx context.Context, tenantID string, by time.Time) ([]MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plans []MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND review_date IS NOT NULL AND review_date <= ?", tenantID, StatusActive, by).
		Order("review_date ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *gormRepository) ListLowEffectiveness(ctx context.Context, tenantID string, minScore float64) ([]MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plans []MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND effectiveness_score < ?", tenantID, StatusActive, minScore).
		Order("effectiveness_score ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *gormRepository) ListBudgetRisk(ctx context.Context, tenantID string, thresholdRatio float64) ([]MaintenancePlan, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var plans []MaintenancePlan
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND target_cost_per_year > 0 AND actual_cost_ytd > target_cost_per_year * ?",
			tenantID, StatusActive, thresholdRatio).
		Order("actual_cost_ytd / target_cost_per_year DESC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *gormRepository) AppendAudit(ctx context.Context, event *AuditEvent) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormRepository) ListAudit(ctx context.Context, tenantID, planID string) ([]AuditEvent, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var events []AuditEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ?", tenantID, planID).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
