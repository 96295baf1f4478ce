package checklist

import (
	"context"

	"gorm.io/gorm"
)

// Repository describes database operations available for checklist items.
type Repository interface {
	CreateBatch(ctx context.Context, items []TaskExecution) error
	GetByID(ctx context.Context, tenantID, itemID string) (*TaskExecution, error)
	ListByExecution(ctx context.Context, tenantID, executionID string) ([]TaskExecution, error)
	Update(ctx context.Context, item *TaskExecution) error
	UpdateStatus(ctx context.Context, tenantID, itemID string, from []ItemStatus, updates map[string]any) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateBatch(ctx context.Context, items []TaskExecution) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, itemID string) (*TaskExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var item TaskExecution
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, itemID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) ListByExecution(ctx context.Context, tenantID, executionID string) ([]TaskExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var items []TaskExecution
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND execution_id = ?", tenantID, executionID).
		Order("sequence ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) Update(ctx context.Context, item *TaskExecution) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&TaskExecution{}).
		Where("tenant_id = ? AND id = ?", item.TenantID, item.ID).
		Updates(map[string]any{
			"status":           item.Status,
			"started_at":       item.StartedAt,
			"completed_at":     item.CompletedAt,
			"duration_minutes": item.DurationMinutes,
			"executed_by":      item.ExecutedBy,
			"notes":            item.Notes,
			"quality_checked":  item.QualityChecked,
			"quality_passed":   item.QualityPassed,
			"quality_notes":    item.QualityNotes,
			"issues_found":     item.IssuesFound,
			"cost":             item.Cost,
			"labor_hours":      item.LaborHours,
			"follow_up_needed": item.FollowUpNeeded,
			"updated_at":       item.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus performs a compare-and-set transition on one item; zero rows
// affected means the item was not in an accepted state.
func (r *gormRepository) UpdateStatus(ctx context.Context, tenantID, itemID string, from []ItemStatus, updates map[string]any) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&TaskExecution{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, itemID, from).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
