package asynq

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"

	// GenerateTask triggers the schedule generator batch for one tenant.
	GenerateTask = "maintenance:generate"

	// AlertDispatchTask carries one derived alert to the notification queue.
	AlertDispatchTask = "alert:dispatch"
)

type GeneratePayload struct {
	TenantID      string `json:"tenant_id"`
	AsOf          string `json:"as_of"`
	LookaheadDays int    `json:"lookahead_days"`
}

type AlertDispatchPayload struct {
	TenantID    string `json:"tenant_id"`
	PlanID      string `json:"plan_id"`
	ExecutionID string `json:"execution_id"`
	Type        string `json:"type"`
	DueDate     string `json:"due_date"`
}
