package task

import "time"

type TaskType string

var (
	TypeInspection    TaskType = "inspection"
	TypeCleaning      TaskType = "cleaning"
	TypeLubrication   TaskType = "lubrication"
	TypeAdjustment    TaskType = "adjustment"
	TypeCalibration   TaskType = "calibration"
	TypeReplacement   TaskType = "replacement"
	TypeRepair        TaskType = "repair"
	TypeTesting       TaskType = "testing"
	TypeMeasurement   TaskType = "measurement"
	TypeDocumentation TaskType = "documentation"
)

func (t TaskType) Valid() bool {
	switch t {
	case TypeInspection, TypeCleaning, TypeLubrication, TypeAdjustment, TypeCalibration,
		TypeReplacement, TypeRepair, TypeTesting, TypeMeasurement, TypeDocumentation:
		return true
	default:
		return false
	}
}

type SkillLevel string

var (
	SkillBasic        SkillLevel = "basic"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
	SkillCertified    SkillLevel = "certified"
)

func (s SkillLevel) Valid() bool {
	switch s {
	case SkillBasic, SkillIntermediate, SkillAdvanced, SkillExpert, SkillCertified:
		return true
	default:
		return false
	}
}

// MaintenanceTask is one checklist item of a plan. The (plan_id, sequence)
// pair is unique; deactivated tasks stay on record because completed
// executions reference them.
type MaintenanceTask struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	TenantID            string     `gorm:"column:tenant_id;index"`
	PlanID              string     `gorm:"column:plan_id;index;uniqueIndex:idx_tasks_plan_sequence"`
	Sequence            int        `gorm:"column:sequence;uniqueIndex:idx_tasks_plan_sequence"`
	Name                string     `gorm:"column:name"`
	Description         string     `gorm:"column:description"`
	Type                TaskType   `gorm:"column:type"`
	Instructions        string     `gorm:"column:instructions"`
	EstimatedMinutes    int        `gorm:"column:estimated_minutes"`
	RequiredSkill       SkillLevel `gorm:"column:required_skill"`
	Critical            bool       `gorm:"column:critical"`
	InspectionRequired  bool       `gorm:"column:inspection_required"`
	MeasurementRequired bool       `gorm:"column:measurement_required"`
	PhotoRequired       bool       `gorm:"column:photo_required"`
	Active              bool       `gorm:"column:active;index"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (MaintenanceTask) TableName() string { return "maintenance_tasks" }
