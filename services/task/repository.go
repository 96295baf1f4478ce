package task

import (
	"context"

	"gorm.io/gorm"
)

// Repository describes database operations available for maintenance tasks.
type Repository interface {
	Create(ctx context.Context, task *MaintenanceTask) error
	GetByID(ctx context.Context, tenantID, taskID string) (*MaintenanceTask, error)
	GetBySequence(ctx context.Context, tenantID, planID string, sequence int) (*MaintenanceTask, error)
	ListByPlan(ctx context.Context, tenantID, planID string, activeOnly bool) ([]MaintenanceTask, error)
	Update(ctx context.Context, task *MaintenanceTask) error
	DeactivateByPlan(ctx context.Context, tenantID, planID string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, task *MaintenanceTask) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, taskID string) (*MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var task MaintenanceTask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, taskID).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) GetBySequence(ctx context.Context, tenantID, planID string, sequence int) (*MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var task MaintenanceTask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ? AND sequence = ?", tenantID, planID, sequence).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) ListByPlan(ctx context.Context, tenantID, planID string, activeOnly bool) ([]MaintenanceTask, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ?", tenantID, planID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var tasks []MaintenanceTask
	if err := query.Order("sequence ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *gormRepository) Update(ctx context.Context, task *MaintenanceTask) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&MaintenanceTask{}).
		Where("tenant_id = ? AND id = ?", task.TenantID, task.ID).
		Updates(map[string]any{
			"sequence":             task.Sequence,
			"name":                 task.Name,
			"description":          task.Description,
			"type":                 task.Type,
			"instructions":         task.Instructions,
			"estimated_minutes":    task.EstimatedMinutes,
			"required_skill":       task.RequiredSkill,
			"critical":             task.Critical,
			"inspection_required":  task.InspectionRequired,
			"measurement_required": task.MeasurementRequired,
			"photo_required":       task.PhotoRequired,
			"active":               task.Active,
			"updated_at":           task.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateByPlan soft-disables every task of a plan. Used when the plan is
// retired; missing tasks are not an error.
func (r *gormRepository) DeactivateByPlan(ctx context.Context, tenantID, planID string) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	return r.db.WithContext(ctx).
		Model(&MaintenanceTask{}).
		Where("tenant_id = ? AND plan_id = ? AND active = ?", tenantID, planID, true).
		Update("active", false).Error
}
