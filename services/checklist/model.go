package checklist

import (
	"time"

	"gorm.io/datatypes"
)

type ItemStatus string

var (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemSkipped    ItemStatus = "skipped"
	ItemFailed     ItemStatus = "failed"
)

// Terminal reports whether the item status admits no further change.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemSkipped || s == ItemFailed
}

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemCompleted, ItemSkipped, ItemFailed:
		return true
	default:
		return false
	}
}

// TaskExecution is one checklist item instantiated for an execution. The
// sequence and name are snapshots taken at instantiation so later task edits
// do not rewrite history.
type TaskExecution struct {
	ID              string         `gorm:"column:id;primaryKey"`
	TenantID        string         `gorm:"column:tenant_id;index"`
	ExecutionID     string         `gorm:"column:execution_id;index;uniqueIndex:idx_task_executions_exec_task"`
	TaskID          string         `gorm:"column:task_id;uniqueIndex:idx_task_executions_exec_task"`
	Sequence        int            `gorm:"column:sequence"`
	Name            string         `gorm:"column:name"`
	Status          ItemStatus     `gorm:"column:status;index"`
	StartedAt       *time.Time     `gorm:"column:started_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
	DurationMinutes int            `gorm:"column:duration_minutes"`
	ExecutedBy      string         `gorm:"column:executed_by"`
	Notes           string         `gorm:"column:notes"`
	QualityChecked  bool           `gorm:"column:quality_checked"`
	QualityPassed   bool           `gorm:"column:quality_passed"`
	QualityNotes    string         `gorm:"column:quality_notes"`
	IssuesFound     datatypes.JSON `gorm:"column:issues_found"`
	Cost            float64        `gorm:"column:cost"`
	LaborHours      float64        `gorm:"column:labor_hours"`
	FollowUpNeeded  bool           `gorm:"column:follow_up_needed"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

func (TaskExecution) TableName() string { return "task_executions" }
