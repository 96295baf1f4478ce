package plan

import (
	"time"

	"gorm.io/datatypes"
)

type PlanStatus string

var (
	StatusDraft       PlanStatus = "draft"
	StatusActive      PlanStatus = "active"
	StatusUnderReview PlanStatus = "under_review"
	StatusRetired     PlanStatus = "retired"
)

func (s PlanStatus) String() string {
	switch s {
	case StatusDraft, StatusActive, StatusUnderReview, StatusRetired:
		return string(s)
	default:
		return ""
	}
}

// Terminal reports whether the status admits no further lifecycle change.
func (s PlanStatus) Terminal() bool { return s == StatusRetired }

type ApprovalStatus string

var (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type FrequencyType string

var (
	FrequencyDaily      FrequencyType = "daily"
	FrequencyWeekly     FrequencyType = "weekly"
	FrequencyMonthly    FrequencyType = "monthly"
	FrequencyQuarterly  FrequencyType = "quarterly"
	FrequencySemiAnnual FrequencyType = "semi_annual"
	FrequencyAnnual     FrequencyType = "annual"
	FrequencyCustom     FrequencyType = "custom"
)

func (f FrequencyType) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly,
		FrequencySemiAnnual, FrequencyAnnual, FrequencyCustom:
		return true
	default:
		return false
	}
}

type FrequencyUnit string

var (
	UnitDays   FrequencyUnit = "days"
	UnitWeeks  FrequencyUnit = "weeks"
	UnitMonths FrequencyUnit = "months"
	UnitYears  FrequencyUnit = "years"
)

func (u FrequencyUnit) Valid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	default:
		return false
	}
}

type Strategy string

var (
	StrategyReactive   Strategy = "reactive"
	StrategyPreventive Strategy = "preventive"
	StrategyPredictive Strategy = "predictive"
	StrategyProactive  Strategy = "proactive"
)

type Approach string

var (
	ApproachInHouse       Approach = "in_house"
	ApproachOutsourced    Approach = "outsourced"
	ApproachHybrid        Approach = "hybrid"
	ApproachVendorManaged Approach = "vendor_managed"
)

// MaintenancePlan is one recurring maintenance definition for an asset.
// The (tenant_id, code) pair is unique per tenant.
type MaintenancePlan struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	TenantID           string         `gorm:"column:tenant_id;index;uniqueIndex:idx_plans_tenant_code"`
	AssetID            string         `gorm:"column:asset_id;index"`
	Code               string         `gorm:"column:code;uniqueIndex:idx_plans_tenant_code"`
	Name               string         `gorm:"column:name"`
	Description        string         `gorm:"column:description"`
	Strategy           Strategy       `gorm:"column:strategy"`
	Approach           Approach       `gorm:"column:approach"`
	FrequencyType      FrequencyType  `gorm:"column:frequency_type"`
	FrequencyInterval  int            `gorm:"column:frequency_interval"`
	FrequencyUnit      FrequencyUnit  `gorm:"column:frequency_unit"`
	EstimatedHours     float64        `gorm:"column:estimated_hours"`
	EstimatedCost      float64        `gorm:"column:estimated_cost"`
	DowntimeHours      float64        `gorm:"column:downtime_hours"`
	SafetyRequirements string         `gorm:"column:safety_requirements"`
	RequiredTools      datatypes.JSON `gorm:"column:required_tools"`
	RequiredParts      datatypes.JSON `gorm:"column:required_parts"`
	TargetAvailability float64        `gorm:"column:target_availability"`
	TargetReliability  float64        `gorm:"column:target_reliability"`
	TargetCostPerYear  float64        `gorm:"column:target_cost_per_year"`
	Status             PlanStatus     `gorm:"column:status;index"`
	ApprovalStatus     ApprovalStatus `gorm:"column:approval_status"`
	EffectiveDate      time.Time      `gorm:"column:effective_date"`
	ReviewDate         *time.Time     `gorm:"column:review_date"`
	ActualCostYTD      float64        `gorm:"column:actual_cost_ytd"`
	ActualHoursYTD     float64        `gorm:"column:actual_hours_ytd"`
	CompletionRate     float64        `gorm:"column:completion_rate"`
	EffectivenessScore float64        `gorm:"column:effectiveness_score"`
	ApprovedBy         string         `gorm:"column:approved_by"`
	ApprovedAt         *time.Time     `gorm:"column:approved_at"`
	CreatedBy          string         `gorm:"column:created_by"`
	CreatedAt          time.Time      `gorm:"column:created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at"`
}

func (MaintenancePlan) TableName() string { return "maintenance_plans" }

// AuditEvent is an append-only record of a lifecycle or approval change.
// Rows are written in the same transaction as the change and never updated.
type AuditEvent struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;index"`
	PlanID     string    `gorm:"column:plan_id;index"`
	Action     string    `gorm:"column:action"`
	Actor      string    `gorm:"column:actor"`
	Comment    string    `gorm:"column:comment"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (AuditEvent) TableName() string { return "plan_audit_events" }

const (
	AuditPlanCreated        = "plan.created"
	AuditPlanUpdated        = "plan.updated"
	AuditPlanApproved       = "plan.approved"
	AuditPlanRejected       = "plan.rejected"
	AuditPlanRetired        = "plan.retired"
	AuditPlanReviewStarted  = "plan.review_started"
	AuditPlanReviewFinished = "plan.review_finished"
)
