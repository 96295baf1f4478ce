package checklist

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/task"
	"maintenance-engine/services/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &execution.ScheduledExecution{}, &task.MaintenanceTask{}, &TaskExecution{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		Repository: NewRepository(db),
		Executions: execution.NewRepository(db),
		Tasks:      task.NewRepository(db),
		Logger:     zap.NewNop(),
		Node:       node,
	})

	return svc, db
}

func seedExecution(t *testing.T, db *gorm.DB) *execution.ScheduledExecution {
	t.Helper()

	now := time.Now().UTC()
	key := "plan-1:2026-03-15"
	exec := &execution.ScheduledExecution{
		ID:              "exec-1",
		TenantID:        "tenant-1",
		PlanID:          "plan-1",
		AssetID:         "asset-1",
		ExecutionNumber: "20260315-001",
		DueDate:         time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		ScheduleKey:     &key,
		Status:          execution.StatusInProgress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(exec).Error)
	return exec
}

func seedTasks(t *testing.T, db *gorm.DB, n int) []task.MaintenanceTask {
	t.Helper()

	now := time.Now().UTC()
	names := []string{"Inspect filters", "Check belts", "Lubricate bearings", "Test alarms"}
	tasks := make([]task.MaintenanceTask, 0, n)
	for i := 0; i < n; i++ {
		mt := task.MaintenanceTask{
			ID:        names[i%len(names)] + "-id",
			TenantID:  "tenant-1",
			PlanID:    "plan-1",
			Sequence:  i + 1,
			Name:      names[i%len(names)],
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, db.Create(&mt).Error)
		tasks = append(tasks, mt)
	}
	return tasks
}

func TestService_StartChecklist(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 3)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))

	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, 1, items[0].Sequence)
	require.Equal(t, "Inspect filters", items[0].Name)
	for _, item := range items {
		require.Equal(t, ItemPending, item.Status)
	}
}

func TestService_StartChecklist_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 2)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))
	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))

	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestService_StartChecklist_SkipsInactiveTasks(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	tasks := seedTasks(t, db, 3)
	require.NoError(t, db.Model(&task.MaintenanceTask{}).
		Where("id = ?", tasks[1].ID).
		Update("active", false).Error)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))

	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestService_StartChecklist_MissingExecution(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.StartChecklist(context.Background(), "tenant-1", "missing")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestService_RecordOutcome(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 2)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))
	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	passed := true
	done, err := svc.RecordOutcome(ctx, "tenant-1", items[0].ID, OutcomeInput{
		Status:          ItemCompleted,
		ExecutedBy:      "tech-1",
		DurationMinutes: 25,
		QualityPassed:   &passed,
		Cost:            40,
		LaborHours:      0.5,
	})
	require.NoError(t, err)
	require.Equal(t, ItemCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.True(t, done.QualityChecked)
	require.True(t, done.QualityPassed)
	require.False(t, done.FollowUpNeeded)

	// Terminal items reject further outcomes.
	_, err = svc.RecordOutcome(ctx, "tenant-1", items[0].ID, OutcomeInput{Status: ItemSkipped})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	// Non-terminal outcome statuses are rejected up front.
	_, err = svc.RecordOutcome(ctx, "tenant-1", items[1].ID, OutcomeInput{Status: ItemInProgress})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestService_RecordOutcome_FollowUpFlags(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 2)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))
	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	failed, err := svc.RecordOutcome(ctx, "tenant-1", items[0].ID, OutcomeInput{
		Status:      ItemFailed,
		IssuesFound: []string{"seized bearing"},
	})
	require.NoError(t, err)
	require.True(t, failed.FollowUpNeeded)

	notPassed := false
	qualityFailed, err := svc.RecordOutcome(ctx, "tenant-1", items[1].ID, OutcomeInput{
		Status:        ItemCompleted,
		QualityPassed: &notPassed,
		QualityNotes:  "torque below spec",
	})
	require.NoError(t, err)
	require.True(t, qualityFailed.FollowUpNeeded)
}

func TestService_BeginItem(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 1)
	ctx := context.Background()

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))
	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	begun, err := svc.BeginItem(ctx, "tenant-1", items[0].ID, "tech-1")
	require.NoError(t, err)
	require.Equal(t, ItemInProgress, begun.Status)
	require.NotNil(t, begun.StartedAt)
	require.Equal(t, "tech-1", begun.ExecutedBy)

	_, err = svc.BeginItem(ctx, "tenant-1", items[0].ID, "tech-2")
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestService_ProgressAndSummary(t *testing.T) {
	svc, db := newTestService(t)
	seedExecution(t, db)
	seedTasks(t, db, 4)
	ctx := context.Background()

	// Empty checklist reports zero progress.
	progress, err := svc.Progress(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.Zero(t, progress)

	require.NoError(t, svc.StartChecklist(ctx, "tenant-1", "exec-1"))
	items, err := svc.List(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	_, err = svc.RecordOutcome(ctx, "tenant-1", items[0].ID, OutcomeInput{
		Status: ItemCompleted, Cost: 40, LaborHours: 0.5,
	})
	require.NoError(t, err)
	_, err = svc.RecordOutcome(ctx, "tenant-1", items[1].ID, OutcomeInput{
		Status: ItemSkipped, Notes: "not applicable",
	})
	require.NoError(t, err)
	_, err = svc.RecordOutcome(ctx, "tenant-1", items[2].ID, OutcomeInput{
		Status: ItemFailed, Cost: 15,
	})
	require.NoError(t, err)

	progress, err = svc.Progress(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.InDelta(t, 75.0, progress, 0.001)

	summary, err := svc.Summary(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Pending)
	require.Equal(t, 3, summary.Terminal())
	require.Equal(t, 55.0, summary.TotalCost)
	require.Equal(t, 0.5, summary.LaborHours)
	require.True(t, summary.RequiresFollowUp)
}
