package task

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &plan.MaintenancePlan{}, &MaintenanceTask{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		Repository: NewRepository(db),
		Plans:      plan.NewRepository(db),
		Logger:     zap.NewNop(),
		Node:       node,
	})

	return svc, db
}

func seedPlan(t *testing.T, db *gorm.DB, status plan.PlanStatus) *plan.MaintenancePlan {
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
		Status:            status,
		EffectiveDate:     now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestService_AddTask(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	created, err := svc.AddTask(ctx, AddTaskInput{
		TenantID:         "tenant-1",
		PlanID:           "plan-1",
		Sequence:         1,
		Name:             "Inspect filters",
		Type:             TypeInspection,
		EstimatedMinutes: 20,
		RequiredSkill:    SkillBasic,
		Critical:         true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.True(t, created.Active)

	fetched, err := svc.GetTask(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, 1, fetched.Sequence)
	require.Equal(t, TypeInspection, fetched.Type)
	require.True(t, fetched.Critical)
}

func TestService_AddTask_DuplicateSequence(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	_, err := svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 1, Name: "Inspect filters",
	})
	require.NoError(t, err)

	_, err = svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 1, Name: "Check belts",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestService_AddTask_PlanGuards(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusRetired)
	ctx := context.Background()

	_, err := svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "missing", Sequence: 1, Name: "Inspect filters",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 1, Name: "Inspect filters",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	_, err = svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 0, Name: "Inspect filters",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	_, err = svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 2, Name: "Check belts",
		Type: TaskType("demolition"),
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestService_UpdateTask(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	created, err := svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 1, Name: "Inspect filters",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, UpdateTaskInput{
		TenantID:         "tenant-1",
		TaskID:           created.ID,
		Name:             "Inspect and replace filters",
		Type:             TypeReplacement,
		EstimatedMinutes: 35,
		RequiredSkill:    SkillIntermediate,
	})
	require.NoError(t, err)
	require.Equal(t, "Inspect and replace filters", updated.Name)
	require.Equal(t, 35, updated.EstimatedMinutes)
	require.Equal(t, SkillIntermediate, updated.RequiredSkill)
	require.Equal(t, 1, updated.Sequence)

	_, err = svc.UpdateTask(ctx, UpdateTaskInput{
		TenantID: "tenant-1", TaskID: "missing", Name: "x",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestService_DeactivateTask(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	created, err := svc.AddTask(ctx, AddTaskInput{
		TenantID: "tenant-1", PlanID: "plan-1", Sequence: 1, Name: "Inspect filters",
	})
	require.NoError(t, err)

	deactivated, err := svc.DeactivateTask(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.False(t, deactivated.Active)

	// Deactivating twice is a no-op.
	again, err := svc.DeactivateTask(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.False(t, again.Active)
}

func TestService_ListTasksOrderAndFilter(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	for i, name := range []string{"Lubricate bearings", "Inspect filters", "Check belts"} {
		_, err := svc.AddTask(ctx, AddTaskInput{
			TenantID: "tenant-1", PlanID: "plan-1", Sequence: 3 - i, Name: name,
		})
		require.NoError(t, err)
	}

	tasks, err := svc.ListTasks(ctx, "tenant-1", "plan-1", false)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, 1, tasks[0].Sequence)
	require.Equal(t, "Check belts", tasks[0].Name)
	require.Equal(t, 3, tasks[2].Sequence)

	_, err = svc.DeactivateTask(ctx, "tenant-1", tasks[1].ID)
	require.NoError(t, err)

	active, err := svc.ListTasks(ctx, "tenant-1", "plan-1", true)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestService_DeactivateForPlan(t *testing.T) {
	svc, db := newTestService(t)
	seedPlan(t, db, plan.StatusActive)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := svc.AddTask(ctx, AddTaskInput{
			TenantID: "tenant-1", PlanID: "plan-1", Sequence: i, Name: "Step",
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeactivateForPlan(ctx, "tenant-1", "plan-1"))

	active, err := svc.ListTasks(ctx, "tenant-1", "plan-1", true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.ListTasks(ctx, "tenant-1", "plan-1", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
