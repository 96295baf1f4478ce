package alert

import "time"

type Type string

var (
	TypeOverdue  Type = "overdue"
	TypeUrgent   Type = "urgent"
	TypeUpcoming Type = "upcoming"
)

// Alert is a derived, unpersisted view of one open execution that needs
// attention. Alerts are recomputed on demand; only dispatches are recorded.
type Alert struct {
	Type            Type      `json:"type"`
	TenantID        string    `json:"tenant_id"`
	PlanID          string    `json:"plan_id"`
	PlanCode        string    `json:"plan_code"`
	PlanName        string    `json:"plan_name"`
	ExecutionID     string    `json:"execution_id"`
	ExecutionNumber string    `json:"execution_number"`
	AssetID         string    `json:"asset_id"`
	AssetName       string    `json:"asset_name"`
	AssetLocation   string    `json:"asset_location"`
	DueDate         time.Time `json:"due_date"`
	DaysUntilDue    int       `json:"days_until_due"`
	Criticality     int       `json:"criticality"`
}

// NotificationRecord is the audit row written for every alert handed to the
// notification queue.
type NotificationRecord struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;index"`
	PlanID      string    `gorm:"column:plan_id;index"`
	ExecutionID string    `gorm:"column:execution_id;index"`
	Type        Type      `gorm:"column:type"`
	DueDate     time.Time `gorm:"column:due_date"`
	EnqueuedAt  time.Time `gorm:"column:enqueued_at"`
}

func (NotificationRecord) TableName() string { return "alert_notifications" }
