package execution

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/pkg/sequence"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/testutil"
)

type fakeChecklist struct {
	started []string
	summary *ChecklistSummary
}

func (f *fakeChecklist) StartChecklist(_ context.Context, _, executionID string) error {
	f.started = append(f.started, executionID)
	return nil
}

func (f *fakeChecklist) Summary(_ context.Context, _, _ string) (*ChecklistSummary, error) {
	if f.summary == nil {
		return &ChecklistSummary{}, nil
	}
	return f.summary, nil
}

func newTestService(t *testing.T, check Checklist) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &plan.MaintenancePlan{}, &ScheduledExecution{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		Repository: NewRepository(db),
		Plans:      plan.NewRepository(db),
		Numbers:    sequence.NewMemoryGenerator(),
		Checklist:  check,
		Logger:     zap.NewNop(),
		Node:       node,
	})

	return svc, db
}

func seedPlan(t *testing.T, db *gorm.DB) *plan.MaintenancePlan {
	t.Helper()

	now := time.Now().UTC()
	p := &plan.MaintenancePlan{
		ID:                "plan-1",
		TenantID:          "tenant-1",
		AssetID:           "asset-1",
		Code:              "PM-HVAC-01",
		Name:              "HVAC quarterly inspection",
		FrequencyType:     plan.FrequencyQuarterly,
		FrequencyInterval: 1,
		Status:            plan.StatusActive,
		EffectiveDate:     now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func plannedInput(due time.Time) CreatePlannedInput {
	return CreatePlannedInput{
		TenantID:             "tenant-1",
		PlanID:               "plan-1",
		AssetID:              "asset-1",
		DueDate:              due,
		PlannedDurationHours: 4,
		PlannedCost:          250,
	}
}

func TestService_CreatePlanned(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	exec, err := svc.CreatePlanned(ctx, plannedInput(due))
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, exec.Status)
	require.Equal(t, "20260315-001", exec.ExecutionNumber)
	require.NotNil(t, exec.ScheduleKey)
	require.Equal(t, "plan-1:2026-03-15", *exec.ScheduleKey)
}

func TestService_CreatePlanned_DuplicateSlot(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreatePlanned(ctx, plannedInput(due))
	require.NoError(t, err)

	_, err = svc.CreatePlanned(ctx, plannedInput(due))
	require.ErrorIs(t, err, ErrAlreadyScheduled)

	// A different day for the same plan is a different slot.
	_, err = svc.CreatePlanned(ctx, plannedInput(due.AddDate(0, 0, 1)))
	require.NoError(t, err)
}

func TestService_CancelFreesSlot(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	exec, err := svc.CreatePlanned(ctx, plannedInput(due))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, "tenant-1", exec.ID, "asset offline")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.ScheduleKey)
	require.Equal(t, "asset offline", cancelled.CancelReason)

	// The slot can be generated again after cancellation.
	again, err := svc.CreatePlanned(ctx, plannedInput(due))
	require.NoError(t, err)
	require.NotEqual(t, exec.ID, again.ID)
	require.NotEqual(t, exec.ExecutionNumber, again.ExecutionNumber)
}

func TestService_StartTransitions(t *testing.T) {
	check := &fakeChecklist{}
	svc, db := newTestService(t, check)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	started, err := svc.Start(ctx, "tenant-1", exec.ID, StartInput{
		TechnicianID:       "tech-1",
		ConditionBefore:    ConditionFair,
		SafetyBriefingDone: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.ActualStart)
	require.Equal(t, "tech-1", started.LeadTechnicianID)
	require.Equal(t, []string{exec.ID}, check.started)

	// Starting twice is an invalid transition.
	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-2"})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestService_ScheduleThenStart(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	start := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	scheduled, err := svc.Schedule(ctx, "tenant-1", exec.ID, ScheduleInput{
		PlannedStart:     &start,
		PlannedEnd:       &end,
		LeadTechnicianID: "tech-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, scheduled.Status)

	// Schedule only applies to planned executions.
	_, err = svc.Schedule(ctx, "tenant-1", exec.ID, ScheduleInput{})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)
}

func TestService_CompleteRollsUpChecklistAndPlan(t *testing.T) {
	check := &fakeChecklist{summary: &ChecklistSummary{
		Total:            4,
		Completed:        2,
		Skipped:          1,
		Failed:           0,
		Pending:          1,
		RequiresFollowUp: true,
	}}
	svc, db := newTestService(t, check)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)

	rating := 4.5
	completed, err := svc.Complete(ctx, "tenant-1", exec.ID, CompleteInput{
		CompletedBy:         "tech-1",
		ActualDurationHours: 3.5,
		LaborCost:           120,
		MaterialCost:        60,
		ContractorCost:      20,
		QualityRating:       &rating,
		ConditionAfter:      ConditionGood,
		IssuesEncountered:   []string{"worn belt"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, 200.0, completed.ActualCost)
	require.InDelta(t, 75.0, completed.CompletionPercent, 0.001)
	require.True(t, completed.RequiresFollowUp)
	require.NotNil(t, completed.CompletedAt)

	var p plan.MaintenancePlan
	require.NoError(t, db.Where("id = ?", "plan-1").First(&p).Error)
	require.Equal(t, 200.0, p.ActualCostYTD)
	require.Equal(t, 3.5, p.ActualHoursYTD)
}

func TestService_CompleteRequiresInProgress(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	_, err = svc.Complete(ctx, "tenant-1", exec.ID, CompleteInput{CompletedBy: "tech-1"})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	// The failed completion left nothing behind.
	fetched, err := svc.Get(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, fetched.Status)
	require.Zero(t, fetched.ActualCost)
	require.Empty(t, fetched.CompletedBy)
}

func TestService_CompleteQualityRatingRange(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)

	bad := 7.5
	_, err = svc.Complete(ctx, "tenant-1", exec.ID, CompleteInput{
		CompletedBy:   "tech-1",
		QualityRating: &bad,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestService_CancelTerminalRejected(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "tenant-1", exec.ID, CompleteInput{CompletedBy: "tech-1"})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "tenant-1", exec.ID, "too late")
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestService_Review(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()

	exec, err := svc.CreatePlanned(ctx, plannedInput(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// Review requires a completed execution.
	_, err = svc.Review(ctx, "tenant-1", exec.ID, ReviewInput{ReviewedBy: "supervisor-1"})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	_, err = svc.Start(ctx, "tenant-1", exec.ID, StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "tenant-1", exec.ID, CompleteInput{CompletedBy: "tech-1"})
	require.NoError(t, err)

	reviewed, err := svc.Review(ctx, "tenant-1", exec.ID, ReviewInput{
		ReviewedBy: "supervisor-1",
		ApprovedBy: "manager-1",
	})
	require.NoError(t, err)
	require.Equal(t, "supervisor-1", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)
	require.Equal(t, "manager-1", reviewed.ApprovedBy)
	require.NotNil(t, reviewed.ApprovedAt)
}

func TestService_ListAndStatistics(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedPlan(t, db)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		exec, err := svc.CreatePlanned(ctx, plannedInput(base.AddDate(0, 0, i)))
		require.NoError(t, err)
		ids = append(ids, exec.ID)
	}

	rating := 4.0
	_, err := svc.Start(ctx, "tenant-1", ids[0], StartInput{TechnicianID: "tech-1"})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "tenant-1", ids[0], CompleteInput{
		CompletedBy:         "tech-1",
		ActualDurationHours: 2,
		ActualCost:          100,
		QualityRating:       &rating,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "tenant-1", ids[1], "weather")
	require.NoError(t, err)

	completed, err := svc.List(ctx, "tenant-1", ListParams{Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)

	stats, err := svc.GetStatistics(ctx, "tenant-1", base.AddDate(0, 0, -1), base.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Total)
	require.Equal(t, int64(1), stats.ByStatus[StatusCompleted])
	require.Equal(t, int64(1), stats.ByStatus[StatusCancelled])
	require.Equal(t, int64(1), stats.ByStatus[StatusPlanned])
	require.InDelta(t, 33.333, stats.CompletionRate, 0.01)
	require.Equal(t, 2.0, stats.AvgDuration)
	require.Equal(t, 100.0, stats.AvgCost)
	require.Equal(t, 4.0, stats.AvgQuality)
}
