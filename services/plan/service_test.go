package plan

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &MaintenancePlan{}, &AuditEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:     db,
		Logger: zap.NewNop(),
		Node:   node,
	})

	return svc, db
}

func validCreateInput() CreatePlanInput {
	return CreatePlanInput{
		TenantID:          "tenant-1",
		AssetID:           "asset-1",
		Code:              "PM-HVAC-01",
		Name:              "HVAC quarterly inspection",
		Strategy:          StrategyPreventive,
		Approach:          ApproachInHouse,
		FrequencyType:     FrequencyQuarterly,
		FrequencyInterval: 1,
		EstimatedHours:    4,
		EstimatedCost:     250,
		TargetCostPerYear: 1200,
		EffectiveDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Actor:             "user-1",
	}
}

func TestService_CreatePlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, ApprovalPending, created.ApprovalStatus)
	require.Equal(t, FrequencyUnit(""), created.FrequencyUnit)

	fetched, err := svc.GetPlan(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Code, fetched.Code)

	events, err := svc.ListAudit(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, AuditPlanCreated, events[0].Action)
	require.Equal(t, "user-1", events[0].Actor)
}

func TestService_CreatePlan_DuplicateCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = svc.CreatePlan(ctx, validCreateInput())
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestService_CreatePlan_SameCodeDifferentTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	other := validCreateInput()
	other.TenantID = "tenant-2"
	_, err = svc.CreatePlan(ctx, other)
	require.NoError(t, err)
}

func TestService_CreatePlan_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	missingCode := validCreateInput()
	missingCode.Code = ""
	_, err := svc.CreatePlan(ctx, missingCode)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	zeroInterval := validCreateInput()
	zeroInterval.FrequencyInterval = 0
	_, err = svc.CreatePlan(ctx, zeroInterval)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	customNoUnit := validCreateInput()
	customNoUnit.FrequencyType = FrequencyCustom
	customNoUnit.FrequencyUnit = ""
	_, err = svc.CreatePlan(ctx, customNoUnit)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	customWithUnit := validCreateInput()
	customWithUnit.Code = "PM-HVAC-02"
	customWithUnit.FrequencyType = FrequencyCustom
	customWithUnit.FrequencyInterval = 45
	customWithUnit.FrequencyUnit = UnitDays
	created, err := svc.CreatePlan(ctx, customWithUnit)
	require.NoError(t, err)
	require.Equal(t, UnitDays, created.FrequencyUnit)
}

func TestService_ApproveActivatesPlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1",
		PlanID:   created.ID,
		Approver: "manager-1",
		Approved: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, approved.Status)
	require.Equal(t, ApprovalApproved, approved.ApprovalStatus)
	require.Equal(t, "manager-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	// A second decision on the same approval is rejected.
	_, err = svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1",
		PlanID:   created.ID,
		Approver: "manager-2",
		Approved: true,
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestService_RejectKeepsDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	rejected, err := svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1",
		PlanID:   created.ID,
		Approver: "manager-1",
		Comment:  "interval too aggressive",
		Approved: false,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, rejected.Status)
	require.Equal(t, ApprovalRejected, rejected.ApprovalStatus)

	events, err := svc.ListAudit(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, AuditPlanRejected, events[1].Action)
	require.Equal(t, "interval too aggressive", events[1].Comment)
}

type fakeDeactivator struct {
	calls []string
}

func (f *fakeDeactivator) DeactivateForPlan(_ context.Context, _, planID string) error {
	f.calls = append(f.calls, planID)
	return nil
}

func TestService_RetireIsTerminal(t *testing.T) {
	db := testutil.NewTestDB(t, &MaintenancePlan{}, &AuditEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	deactivator := &fakeDeactivator{}

	svc := NewService(ServiceParams{
		DB:     db,
		Tasks:  deactivator,
		Logger: zap.NewNop(),
		Node:   node,
	})
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	retired, err := svc.Retire(ctx, "tenant-1", created.ID, "user-1", "asset decommissioned")
	require.NoError(t, err)
	require.Equal(t, StatusRetired, retired.Status)
	require.Equal(t, []string{created.ID}, deactivator.calls)

	_, err = svc.Retire(ctx, "tenant-1", created.ID, "user-1", "")
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	_, err = svc.UpdatePlan(ctx, UpdatePlanInput{
		TenantID:          "tenant-1",
		PlanID:            created.ID,
		Name:              "renamed",
		FrequencyType:     FrequencyMonthly,
		FrequencyInterval: 1,
		Actor:             "user-1",
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestService_ReviewCycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1", PlanID: created.ID, Approver: "manager-1", Approved: true,
	})
	require.NoError(t, err)

	underReview, err := svc.StartReview(ctx, "tenant-1", created.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusUnderReview, underReview.Status)

	// Review blocks a second StartReview until finished.
	_, err = svc.StartReview(ctx, "tenant-1", created.ID, "user-1")
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	next := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	finished, err := svc.FinishReview(ctx, "tenant-1", created.ID, "user-1", &next)
	require.NoError(t, err)
	require.Equal(t, StatusActive, finished.Status)
	require.NotNil(t, finished.ReviewDate)
	require.True(t, finished.ReviewDate.Equal(next))
}

func TestService_GetPlan_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetPlan(context.Background(), "tenant-1", "missing")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestService_ListPlansFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)

	second := validCreateInput()
	second.Code = "PM-ELEV-01"
	second.AssetID = "asset-2"
	_, err = svc.CreatePlan(ctx, second)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1", PlanID: first.ID, Approver: "manager-1", Approved: true,
	})
	require.NoError(t, err)

	all, err := svc.ListPlans(ctx, "tenant-1", ListParams{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := svc.ListPlans(ctx, "tenant-1", ListParams{Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, first.ID, active[0].ID)

	byAsset, err := svc.ListPlans(ctx, "tenant-1", ListParams{AssetID: "asset-2"})
	require.NoError(t, err)
	require.Len(t, byAsset, 1)

	other, err := svc.ListPlans(ctx, "tenant-2", ListParams{})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestService_GetStatistics(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePlan(ctx, validCreateInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, ApproveInput{
		TenantID: "tenant-1", PlanID: created.ID, Approver: "manager-1", Approved: true,
	})
	require.NoError(t, err)

	draft := validCreateInput()
	draft.Code = "PM-ELEV-01"
	_, err = svc.CreatePlan(ctx, draft)
	require.NoError(t, err)

	// Push the active plan under the effectiveness floor and over budget.
	err = db.Model(&MaintenancePlan{}).
		Where("id = ?", created.ID).
		Updates(map[string]any{
			"effectiveness_score": 55.0,
			"actual_cost_ytd":     1100.0,
		}).Error
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx, "tenant-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.ByStatus[StatusActive])
	require.Equal(t, int64(1), stats.ByStatus[StatusDraft])
	require.Len(t, stats.LowEffectiveness, 1)
	require.Len(t, stats.BudgetRisk, 1)
	require.Equal(t, created.ID, stats.BudgetRisk[0].ID)
}
