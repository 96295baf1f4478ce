package execution

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrAlreadyScheduled is returned when an insert collides with an existing
// non-cancelled execution for the same plan and due date.
var ErrAlreadyScheduled = errors.New("execution already scheduled for plan and date")

// ListParams describes the filters applied when listing executions.
type ListParams struct {
	Status Status
	PlanID string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Repository describes database operations available for executions.
type Repository interface {
	Create(ctx context.Context, exec *ScheduledExecution) error
	GetByID(ctx context.Context, tenantID, executionID string) (*ScheduledExecution, error)
	List(ctx context.Context, tenantID string, params ListParams) ([]ScheduledExecution, error)
	ListOpen(ctx context.Context, tenantID string, dueBefore time.Time) ([]ScheduledExecution, error)
	ListCompletedByPlan(ctx context.Context, tenantID, planID string, from, to time.Time) ([]ScheduledExecution, error)
	LastCompletedDue(ctx context.Context, tenantID, planID string) (*time.Time, error)
	UpdateStatus(ctx context.Context, tenantID, executionID string, from []Status, updates map[string]any) (int64, error)
	Update(ctx context.Context, tenantID, executionID string, updates map[string]any) (int64, error)
	CountByStatus(ctx context.Context, tenantID string, from, to time.Time) (map[Status]int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Create inserts a new execution. A unique violation on the schedule key is
// reported as ErrAlreadyScheduled so generation can skip the slot.
func (r *gormRepository) Create(ctx context.Context, exec *ScheduledExecution) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyScheduled
		}
		return err
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, tenantID, executionID string) (*ScheduledExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exec ScheduledExecution
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, executionID).
		First(&exec).Error
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *gormRepository) List(ctx context.Context, tenantID string, params ListParams) ([]ScheduledExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&ScheduledExecution{}).
		Where("tenant_id = ?", tenantID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.PlanID != "" {
		query = query.Where("plan_id = ?", params.PlanID)
	}
	if !params.From.IsZero() {
		query = query.Where("due_date >= ?", params.From)
	}
	if !params.To.IsZero() {
		query = query.Where("due_date <= ?", params.To)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	var execs []ScheduledExecution
	if err := query.Order("due_date ASC, execution_number ASC").Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

// ListOpen returns the non-terminal executions due before the given time,
// the input set for alert derivation.
func (r *gormRepository) ListOpen(ctx context.Context, tenantID string, dueBefore time.Time) ([]ScheduledExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var execs []ScheduledExecution
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ? AND due_date <= ?",
			tenantID, []Status{StatusPlanned, StatusScheduled, StatusInProgress}, dueBefore).
		Order("due_date ASC").
		Find(&execs).Error
	if err != nil {
		return nil, err
	}
	return execs, nil
}

func (r *gormRepository) ListCompletedByPlan(ctx context.Context, tenantID, planID string, from, to time.Time) ([]ScheduledExecution, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ? AND status = ?", tenantID, planID, StatusCompleted)
	if !from.IsZero() {
		query = query.Where("due_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("due_date <= ?", to)
	}

	var execs []ScheduledExecution
	if err := query.Order("due_date ASC").Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

// LastCompletedDue returns the due date of the most recent completed
// execution of a plan, nil when the plan has never completed.
func (r *gormRepository) LastCompletedDue(ctx context.Context, tenantID, planID string) (*time.Time, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var exec ScheduledExecution
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ? AND status = ?", tenantID, planID, StatusCompleted).
		Order("due_date DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	due := exec.DueDate
	return &due, nil
}

// UpdateStatus performs a compare-and-set transition. The update only lands
// when the current status is in the from set; callers treat zero rows
// affected as an invalid transition.
func (r *gormRepository) UpdateStatus(ctx context.Context, tenantID, executionID string, from []Status, updates map[string]any) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ScheduledExecution{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", tenantID, executionID, from).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *gormRepository) Update(ctx context.Context, tenantID, executionID string, updates map[string]any) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ScheduledExecution{}).
		Where("tenant_id = ? AND id = ?", tenantID, executionID).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *gormRepository) CountByStatus(ctx context.Context, tenantID string, from, to time.Time) (map[Status]int64, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	type row struct {
		Status Status
		Total  int64
	}

	query := r.db.WithContext(ctx).Model(&ScheduledExecution{}).
		Select("status, COUNT(*) AS total").
		Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("due_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("due_date <= ?", to)
	}

	var rows []row
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}
