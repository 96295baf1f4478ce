package execution

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Status string

var (
	StatusPlanned    Status = "planned"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type AssetCondition string

var (
	ConditionExcellent AssetCondition = "excellent"
	ConditionGood      AssetCondition = "good"
	ConditionFair      AssetCondition = "fair"
	ConditionPoor      AssetCondition = "poor"
	ConditionCritical  AssetCondition = "critical"
)

func (c AssetCondition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor, ConditionCritical:
		return true
	default:
		return false
	}
}

// ScheduledExecution is one occurrence of a plan on a due date.
//
// The schedule key enforces the generation invariant at the storage level:
// at most one non-cancelled execution per plan and due date. Cancellation
// clears the key so the slot can be regenerated; the execution number stays
// unique per tenant for the lifetime of the row.
type ScheduledExecution struct {
	ID                   string         `gorm:"column:id;primaryKey"`
	TenantID             string         `gorm:"column:tenant_id;index;uniqueIndex:idx_executions_tenant_number"`
	PlanID               string         `gorm:"column:plan_id;index"`
	AssetID              string         `gorm:"column:asset_id;index"`
	ExecutionNumber      string         `gorm:"column:execution_number;uniqueIndex:idx_executions_tenant_number"`
	DueDate              time.Time      `gorm:"column:due_date;index"`
	ScheduleKey          *string        `gorm:"column:schedule_key;uniqueIndex:idx_executions_schedule_key"`
	Status               Status         `gorm:"column:status;index"`
	PlannedStart         *time.Time     `gorm:"column:planned_start"`
	PlannedEnd           *time.Time     `gorm:"column:planned_end"`
	ActualStart          *time.Time     `gorm:"column:actual_start"`
	ActualEnd            *time.Time     `gorm:"column:actual_end"`
	PlannedDurationHours float64        `gorm:"column:planned_duration_hours"`
	ActualDurationHours  float64        `gorm:"column:actual_duration_hours"`
	DowntimeHours        float64        `gorm:"column:downtime_hours"`
	ShutdownRequired     bool           `gorm:"column:shutdown_required"`
	SafetyBriefingDone   bool           `gorm:"column:safety_briefing_done"`
	LockoutTagoutApplied bool           `gorm:"column:lockout_tagout_applied"`
	CompletionPercent    float64        `gorm:"column:completion_percent"`
	PlannedCost          float64        `gorm:"column:planned_cost"`
	ActualCost           float64        `gorm:"column:actual_cost"`
	LaborCost            float64        `gorm:"column:labor_cost"`
	MaterialCost         float64        `gorm:"column:material_cost"`
	ContractorCost       float64        `gorm:"column:contractor_cost"`
	QualityRating        *float64       `gorm:"column:quality_rating"`
	ConditionBefore      AssetCondition `gorm:"column:condition_before"`
	ConditionAfter       AssetCondition `gorm:"column:condition_after"`
	RequiresFollowUp     bool           `gorm:"column:requires_follow_up"`
	IssuesEncountered    datatypes.JSON `gorm:"column:issues_encountered"`
	LeadTechnicianID     string         `gorm:"column:lead_technician_id"`
	CancelReason         string         `gorm:"column:cancel_reason"`
	CompletedBy          string         `gorm:"column:completed_by"`
	CompletedAt          *time.Time     `gorm:"column:completed_at"`
	ReviewedBy           string         `gorm:"column:reviewed_by"`
	ReviewedAt           *time.Time     `gorm:"column:reviewed_at"`
	ApprovedBy           string         `gorm:"column:approved_by"`
	ApprovedAt           *time.Time     `gorm:"column:approved_at"`
	CreatedAt            time.Time      `gorm:"column:created_at"`
	UpdatedAt            time.Time      `gorm:"column:updated_at"`
}

func (ScheduledExecution) TableName() string { return "scheduled_executions" }

// ScheduleKeyFor builds the uniqueness key for a plan occurrence. Due dates
// are keyed by calendar day.
func ScheduleKeyFor(planID string, due time.Time) string {
	return fmt.Sprintf("%s:%s", planID, due.Format("2006-01-02"))
}
