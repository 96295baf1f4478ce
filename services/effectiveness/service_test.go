package effectiveness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/testutil"
)

type testEnv struct {
	svc *Service
	db  *gorm.DB
	seq int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t, &plan.MaintenancePlan{}, &execution.ScheduledExecution{})
	svc := NewService(ServiceParams{
		Plans:      plan.NewRepository(db),
		Executions: execution.NewRepository(db),
		Logger:     zap.NewNop(),
	})
	return &testEnv{svc: svc, db: db}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) seedPlan(t *testing.T, id string, targetCostPerYear, actualCostYTD float64) {
	t.Helper()

	now := time.Now().UTC()
	p := &plan.MaintenancePlan{
		ID:                id,
		TenantID:          "tenant-1",
		AssetID:           "asset-1",
		Code:              "PM-" + id,
		Name:              "Plan " + id,
		FrequencyType:     plan.FrequencyMonthly,
		FrequencyInterval: 1,
		TargetCostPerYear: targetCostPerYear,
		ActualCostYTD:     actualCostYTD,
		Status:            plan.StatusActive,
		EffectiveDate:     date(2024, 1, 1),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, e.db.Create(p).Error)
}

func (e *testEnv) seedExecution(t *testing.T, planID string, due time.Time, status execution.Status, cost float64, quality *float64) {
	t.Helper()

	e.seq++
	now := time.Now().UTC()
	ex := &execution.ScheduledExecution{
		ID:                  fmt.Sprintf("exec-%d", e.seq),
		TenantID:            "tenant-1",
		PlanID:              planID,
		AssetID:             "asset-1",
		ExecutionNumber:     fmt.Sprintf("20240101-%03d", e.seq),
		DueDate:             due,
		Status:              status,
		ActualCost:          cost,
		ActualDurationHours: 2,
		QualityRating:       quality,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, e.db.Create(ex).Error)
}

func ptr(v float64) *float64 { return &v }

func TestService_Analyze_PerfectHistoryScoresHundred(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	for i := 0; i < 4; i++ {
		env.seedExecution(t, "p1", date(2024, time.Month(i+1), 15), execution.StatusCompleted, 100, ptr(5))
	}

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	require.Equal(t, 4, report.TotalExecutions)
	require.Equal(t, 4, report.CompletedExecutions)
	require.Equal(t, 100.0, report.CompletionRate)
	require.Equal(t, 100.0, report.AverageCost)
	require.Equal(t, 5.0, report.AverageQuality)
	require.Equal(t, 2.0, report.AverageDurationHours)
	require.Equal(t, TrendStable, report.CostTrend)
	require.Equal(t, TrendStable, report.QualityTrend)
	require.Equal(t, 100.0, report.EffectivenessScore)
	require.Empty(t, report.RecommendedActions)
}

func TestService_Analyze_ScoreBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	// Wildly spread costs, poor quality, partial completion.
	env.seedExecution(t, "p1", date(2024, 1, 15), execution.StatusCompleted, 10, ptr(1))
	env.seedExecution(t, "p1", date(2024, 2, 15), execution.StatusCompleted, 900, ptr(0.5))
	env.seedExecution(t, "p1", date(2024, 3, 15), execution.StatusCancelled, 0, nil)
	env.seedExecution(t, "p1", date(2024, 4, 15), execution.StatusPlanned, 0, nil)

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	require.GreaterOrEqual(t, report.EffectivenessScore, 0.0)
	require.LessOrEqual(t, report.EffectivenessScore, 100.0)
	require.Equal(t, 50.0, report.CompletionRate)
	require.Equal(t, 1, report.CancelledExecutions)
}

func TestService_Analyze_Trends(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	// Cost rises 50% and quality drops 40% between halves, both outside the
	// 5% stability band.
	env.seedExecution(t, "p1", date(2024, 1, 15), execution.StatusCompleted, 100, ptr(5))
	env.seedExecution(t, "p1", date(2024, 2, 15), execution.StatusCompleted, 100, ptr(5))
	env.seedExecution(t, "p1", date(2024, 3, 15), execution.StatusCompleted, 150, ptr(3))
	env.seedExecution(t, "p1", date(2024, 4, 15), execution.StatusCompleted, 150, ptr(3))

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	require.Equal(t, TrendIncreasing, report.CostTrend)
	require.Equal(t, TrendDecreasing, report.QualityTrend)
	require.Contains(t, report.RecommendedActions, "investigate rising maintenance cost")
	require.Contains(t, report.RecommendedActions, "review task instructions and required skill levels")
}

func TestService_Analyze_TrendStableWithinBand(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	env.seedExecution(t, "p1", date(2024, 1, 15), execution.StatusCompleted, 100, ptr(5))
	env.seedExecution(t, "p1", date(2024, 2, 15), execution.StatusCompleted, 100, ptr(5))
	env.seedExecution(t, "p1", date(2024, 3, 15), execution.StatusCompleted, 102, ptr(5))
	env.seedExecution(t, "p1", date(2024, 4, 15), execution.StatusCompleted, 102, ptr(5))

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	require.Equal(t, TrendStable, report.CostTrend)
}

func TestService_Analyze_NoQualityRatingsNotPenalised(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	env.seedExecution(t, "p1", date(2024, 1, 15), execution.StatusCompleted, 100, nil)
	env.seedExecution(t, "p1", date(2024, 2, 15), execution.StatusCompleted, 100, nil)

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	// Quality drops out of the weighting; full completion with flat cost
	// still scores 100.
	require.Equal(t, 0.0, report.AverageQuality)
	require.Equal(t, 100.0, report.EffectivenessScore)
}

func TestService_Analyze_WeightedComposite(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	env.seedExecution(t, "p1", date(2024, 1, 15), execution.StatusCompleted, 100, ptr(4))
	env.seedExecution(t, "p1", date(2024, 2, 15), execution.StatusCompleted, 100, ptr(4))
	env.seedExecution(t, "p1", date(2024, 3, 15), execution.StatusCancelled, 0, nil)
	env.seedExecution(t, "p1", date(2024, 4, 15), execution.StatusPlanned, 0, nil)

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	// Equal thirds of completion 50, quality 4/5 -> 80, flat cost -> 100.
	require.InDelta(t, (50.0+80.0+100.0)/3.0, report.EffectivenessScore, 0.001)
}

func TestService_Analyze_EmptyPeriod(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	// History exists but outside the requested window.
	env.seedExecution(t, "p1", date(2023, 6, 15), execution.StatusCompleted, 100, ptr(5))

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	require.Zero(t, report.TotalExecutions)
	require.Zero(t, report.CompletionRate)
	require.Zero(t, report.EffectivenessScore)
	require.Equal(t, TrendStable, report.CostTrend)
}

func TestService_Analyze_PersistsScoreOnPlan(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	for i := 0; i < 2; i++ {
		env.seedExecution(t, "p1", date(2024, time.Month(i+1), 15), execution.StatusCompleted, 100, ptr(5))
	}

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)

	var stored plan.MaintenancePlan
	require.NoError(t, env.db.Where("id = ?", "p1").First(&stored).Error)
	require.Equal(t, report.EffectivenessScore, stored.EffectivenessScore)
	require.Equal(t, report.CompletionRate, stored.CompletionRate)
}

func TestService_Analyze_BudgetRiskAction(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 1000, 900)
	for i := 0; i < 2; i++ {
		env.seedExecution(t, "p1", date(2024, time.Month(i+1), 15), execution.StatusCompleted, 450, ptr(5))
	}

	report, err := env.svc.Analyze(context.Background(), "tenant-1", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.NoError(t, err)
	require.Contains(t, report.RecommendedActions, "actual cost approaching yearly target")
}

func TestService_Analyze_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "p1", 0, 0)
	ctx := context.Background()

	_, err := env.svc.Analyze(ctx, "tenant-1", "missing", date(2024, 1, 1), date(2024, 12, 31))
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = env.svc.Analyze(ctx, "", "p1", date(2024, 1, 1), date(2024, 12, 31))
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	_, err = env.svc.Analyze(ctx, "tenant-1", "p1", date(2024, 12, 31), date(2024, 1, 1))
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}
