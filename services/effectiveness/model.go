package effectiveness

import "time"

// Trend classifies the movement of a metric between the first and second
// half of the analysis period.
type Trend string

var (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Report is the computed effectiveness view for one plan over one period.
// Reports are derived on demand and not persisted; only the composite score
// and completion rate are written back to the plan row.
type Report struct {
	TenantID    string    `json:"tenant_id"`
	PlanID      string    `json:"plan_id"`
	PlanCode    string    `json:"plan_code"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalExecutions     int `json:"total_executions"`
	CompletedExecutions int `json:"completed_executions"`
	CancelledExecutions int `json:"cancelled_executions"`

	CompletionRate       float64 `json:"completion_rate"`
	AverageCost          float64 `json:"average_cost"`
	AverageDurationHours float64 `json:"average_duration_hours"`
	AverageQuality       float64 `json:"average_quality"`

	CostTrend    Trend `json:"cost_trend"`
	QualityTrend Trend `json:"quality_trend"`

	EffectivenessScore float64  `json:"effectiveness_score"`
	RecommendedActions []string `json:"recommended_actions"`

	GeneratedAt time.Time `json:"generated_at"`
}
