package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/pkg/health"
	"maintenance-engine/pkg/middleware"
	"maintenance-engine/services/alert"
	"maintenance-engine/services/checklist"
	"maintenance-engine/services/effectiveness"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
	"maintenance-engine/services/schedule"
	"maintenance-engine/services/task"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		ProvideRouter,
	),
)

// Handler exposes the engine operations over HTTP. It does no business
// logic; every route binds the request, resolves the tenant and delegates.
type Handler struct {
	plans     *plan.Service
	tasks     *task.Service
	execs     *execution.Service
	checklist *checklist.Service
	schedule  *schedule.Service
	alerts    *alert.Service
	reports   *effectiveness.Service
	health    health.HealthService
	logger    *zap.Logger
}

type HandlerParams struct {
	fx.In

	Plans     *plan.Service
	Tasks     *task.Service
	Execs     *execution.Service
	Checklist *checklist.Service
	Schedule  *schedule.Service
	Alerts    *alert.Service
	Reports   *effectiveness.Service
	Health    health.HealthService
	Logger    *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		plans:     p.Plans,
		tasks:     p.Tasks,
		execs:     p.Execs,
		checklist: p.Checklist,
		schedule:  p.Schedule,
		alerts:    p.Alerts,
		reports:   p.Reports,
		health:    p.Health,
		logger:    logger,
	}
}

// ProvideRouter builds the gin engine with all engine routes mounted.
func ProvideRouter(h *Handler) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	v1 := r.Group("/v1")
	{
		v1.POST("/plans", h.createPlan)
		v1.GET("/plans", h.listPlans)
		v1.GET("/plans/statistics", h.planStatistics)
		v1.GET("/plans/:id", h.getPlan)
		v1.PATCH("/plans/:id", h.updatePlan)
		v1.POST("/plans/:id/approve", h.approvePlan)
		v1.POST("/plans/:id/retire", h.retirePlan)
		v1.POST("/plans/:id/review/start", h.startReview)
		v1.POST("/plans/:id/review/finish", h.finishReview)
		v1.GET("/plans/:id/audit", h.planAudit)
		v1.GET("/plans/:id/effectiveness", h.planEffectiveness)
		v1.POST("/plans/:id/tasks", h.addTask)
		v1.GET("/plans/:id/tasks", h.listTasks)

		v1.GET("/tasks/:id", h.getTask)
		v1.PATCH("/tasks/:id", h.updateTask)
		v1.POST("/tasks/:id/deactivate", h.deactivateTask)

		v1.POST("/maintenance/generate", h.generate)
		v1.GET("/maintenance/next", h.nextSchedules)

		v1.GET("/executions", h.listExecutions)
		v1.GET("/executions/statistics", h.executionStatistics)
		v1.GET("/executions/:id", h.getExecution)
		v1.POST("/executions/:id/schedule", h.scheduleExecution)
		v1.POST("/executions/:id/start", h.startExecution)
		v1.POST("/executions/:id/complete", h.completeExecution)
		v1.POST("/executions/:id/cancel", h.cancelExecution)
		v1.POST("/executions/:id/review", h.reviewExecution)
		v1.GET("/executions/:id/checklist", h.listChecklist)
		v1.GET("/executions/:id/progress", h.checklistProgress)

		v1.POST("/checklist/:id/begin", h.beginChecklistItem)
		v1.POST("/checklist/:id/outcome", h.recordChecklistOutcome)

		v1.GET("/alerts", h.listAlerts)
		v1.POST("/alerts/dispatch", h.dispatchAlerts)
	}

	return r
}

// tenantID resolves the tenant from the X-Tenant-ID header, falling back to
// the tenant_id query parameter for scripted callers.
func tenantID(c *gin.Context) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	return c.Query("tenant_id")
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func parseDate(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		fail(c, errutil.ValidationFailed("invalid date parameter",
			errutil.WithDetails(errutil.Detail{Field: name, Message: "expected YYYY-MM-DD"})))
		return time.Time{}, false
	}
	return t, true
}

// ---- plans ----

type planRequest struct {
	AssetID            string     `json:"asset_id"`
	Code               string     `json:"code"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Strategy           string     `json:"strategy"`
	Approach           string     `json:"approach"`
	FrequencyType      string     `json:"frequency_type"`
	FrequencyInterval  int        `json:"frequency_interval"`
	FrequencyUnit      string     `json:"frequency_unit"`
	EstimatedHours     float64    `json:"estimated_hours"`
	EstimatedCost      float64    `json:"estimated_cost"`
	DowntimeHours      float64    `json:"downtime_hours"`
	SafetyRequirements string     `json:"safety_requirements"`
	RequiredTools      []string   `json:"required_tools"`
	RequiredParts      []string   `json:"required_parts"`
	TargetAvailability float64    `json:"target_availability"`
	TargetReliability  float64    `json:"target_reliability"`
	TargetCostPerYear  float64    `json:"target_cost_per_year"`
	EffectiveDate      time.Time  `json:"effective_date"`
	ReviewDate         *time.Time `json:"review_date"`
	Actor              string     `json:"actor"`
}

func (h *Handler) createPlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	created, err := h.plans.CreatePlan(c.Request.Context(), plan.CreatePlanInput{
		TenantID:           tenantID(c),
		AssetID:            req.AssetID,
		Code:               req.Code,
		Name:               req.Name,
		Description:        req.Description,
		Strategy:           plan.Strategy(req.Strategy),
		Approach:           plan.Approach(req.Approach),
		FrequencyType:      plan.FrequencyType(req.FrequencyType),
		FrequencyInterval:  req.FrequencyInterval,
		FrequencyUnit:      plan.FrequencyUnit(req.FrequencyUnit),
		EstimatedHours:     req.EstimatedHours,
		EstimatedCost:      req.EstimatedCost,
		DowntimeHours:      req.DowntimeHours,
		SafetyRequirements: req.SafetyRequirements,
		RequiredTools:      req.RequiredTools,
		RequiredParts:      req.RequiredParts,
		TargetAvailability: req.TargetAvailability,
		TargetReliability:  req.TargetReliability,
		TargetCostPerYear:  req.TargetCostPerYear,
		EffectiveDate:      req.EffectiveDate,
		ReviewDate:         req.ReviewDate,
		Actor:              req.Actor,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	updated, err := h.plans.UpdatePlan(c.Request.Context(), plan.UpdatePlanInput{
		TenantID:           tenantID(c),
		PlanID:             c.Param("id"),
		Name:               req.Name,
		Description:        req.Description,
		Strategy:           plan.Strategy(req.Strategy),
		Approach:           plan.Approach(req.Approach),
		FrequencyType:      plan.FrequencyType(req.FrequencyType),
		FrequencyInterval:  req.FrequencyInterval,
		FrequencyUnit:      plan.FrequencyUnit(req.FrequencyUnit),
		EstimatedHours:     req.EstimatedHours,
		EstimatedCost:      req.EstimatedCost,
		DowntimeHours:      req.DowntimeHours,
		SafetyRequirements: req.SafetyRequirements,
		RequiredTools:      req.RequiredTools,
		RequiredParts:      req.RequiredParts,
		TargetAvailability: req.TargetAvailability,
		TargetReliability:  req.TargetReliability,
		TargetCostPerYear:  req.TargetCostPerYear,
		EffectiveDate:      req.EffectiveDate,
		ReviewDate:         req.ReviewDate,
		Actor:              req.Actor,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) getPlan(c *gin.Context) {
	p, err := h.plans.GetPlan(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listPlans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	plans, err := h.plans.ListPlans(c.Request.Context(), tenantID(c), plan.ListParams{
		Status:  plan.PlanStatus(c.Query("status")),
		AssetID: c.Query("asset_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type approveRequest struct {
	Approver string `json:"approver"`
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

func (h *Handler) approvePlan(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	p, err := h.plans.Approve(c.Request.Context(), plan.ApproveInput{
		TenantID: tenantID(c),
		PlanID:   c.Param("id"),
		Approver: req.Approver,
		Comment:  req.Comment,
		Approved: req.Approved,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type actorRequest struct {
	Actor   string `json:"actor"`
	Comment string `json:"comment"`
}

func (h *Handler) retirePlan(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	p, err := h.plans.Retire(c.Request.Context(), tenantID(c), c.Param("id"), req.Actor, req.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) startReview(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	p, err := h.plans.StartReview(c.Request.Context(), tenantID(c), c.Param("id"), req.Actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type finishReviewRequest struct {
	Actor      string     `json:"actor"`
	NextReview *time.Time `json:"next_review"`
}

func (h *Handler) finishReview(c *gin.Context) {
	var req finishReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	p, err := h.plans.FinishReview(c.Request.Context(), tenantID(c), c.Param("id"), req.Actor, req.NextReview)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) planAudit(c *gin.Context) {
	events, err := h.plans.ListAudit(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) planStatistics(c *gin.Context) {
	stats, err := h.plans.GetStatistics(c.Request.Context(), tenantID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) planEffectiveness(c *gin.Context) {
	from, ok := parseDate(c, "from")
	if !ok {
		return
	}
	to, ok := parseDate(c, "to")
	if !ok {
		return
	}

	report, err := h.reports.Analyze(c.Request.Context(), tenantID(c), c.Param("id"), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ---- tasks ----

type taskRequest struct {
	Sequence            int    `json:"sequence"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	Type                string `json:"type"`
	Instructions        string `json:"instructions"`
	EstimatedMinutes    int    `json:"estimated_minutes"`
	RequiredSkill       string `json:"required_skill"`
	Critical            bool   `json:"critical"`
	InspectionRequired  bool   `json:"inspection_required"`
	MeasurementRequired bool   `json:"measurement_required"`
	PhotoRequired       bool   `json:"photo_required"`
}

func (h *Handler) addTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	created, err := h.tasks.AddTask(c.Request.Context(), task.AddTaskInput{
		TenantID:            tenantID(c),
		PlanID:              c.Param("id"),
		Sequence:            req.Sequence,
		Name:                req.Name,
		Description:         req.Description,
		Type:                task.TaskType(req.Type),
		Instructions:        req.Instructions,
		EstimatedMinutes:    req.EstimatedMinutes,
		RequiredSkill:       task.SkillLevel(req.RequiredSkill),
		Critical:            req.Critical,
		InspectionRequired:  req.InspectionRequired,
		MeasurementRequired: req.MeasurementRequired,
		PhotoRequired:       req.PhotoRequired,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	updated, err := h.tasks.UpdateTask(c.Request.Context(), task.UpdateTaskInput{
		TenantID:            tenantID(c),
		TaskID:              c.Param("id"),
		Name:                req.Name,
		Description:         req.Description,
		Type:                task.TaskType(req.Type),
		Instructions:        req.Instructions,
		EstimatedMinutes:    req.EstimatedMinutes,
		RequiredSkill:       task.SkillLevel(req.RequiredSkill),
		Critical:            req.Critical,
		InspectionRequired:  req.InspectionRequired,
		MeasurementRequired: req.MeasurementRequired,
		PhotoRequired:       req.PhotoRequired,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) getTask(c *gin.Context) {
	t, err := h.tasks.GetTask(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) listTasks(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	tasks, err := h.tasks.ListTasks(c.Request.Context(), tenantID(c), c.Param("id"), activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) deactivateTask(c *gin.Context) {
	t, err := h.tasks.DeactivateTask(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ---- generation ----

func (h *Handler) generate(c *gin.Context) {
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	lookahead, _ := strconv.Atoi(c.Query("lookahead_days"))

	created, err := h.schedule.GenerateDue(c.Request.Context(), tenantID(c), asOf, lookahead)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "count": len(created)})
}

func (h *Handler) nextSchedules(c *gin.Context) {
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	schedules, err := h.schedule.NextSchedules(c.Request.Context(), tenantID(c), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// ---- executions ----

func (h *Handler) getExecution(c *gin.Context) {
	e, err := h.execs.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) listExecutions(c *gin.Context) {
	from, ok := parseDate(c, "from")
	if !ok {
		return
	}
	to, ok := parseDate(c, "to")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	execs, err := h.execs.List(c.Request.Context(), tenantID(c), execution.ListParams{
		Status: execution.Status(c.Query("status")),
		PlanID: c.Query("plan_id"),
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs})
}

func (h *Handler) executionStatistics(c *gin.Context) {
	from, ok := parseDate(c, "from")
	if !ok {
		return
	}
	to, ok := parseDate(c, "to")
	if !ok {
		return
	}

	stats, err := h.execs.GetStatistics(c.Request.Context(), tenantID(c), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type scheduleRequest struct {
	PlannedStart     *time.Time `json:"planned_start"`
	PlannedEnd       *time.Time `json:"planned_end"`
	LeadTechnicianID string     `json:"lead_technician_id"`
}

func (h *Handler) scheduleExecution(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	e, err := h.execs.Schedule(c.Request.Context(), tenantID(c), c.Param("id"), execution.ScheduleInput{
		PlannedStart:     req.PlannedStart,
		PlannedEnd:       req.PlannedEnd,
		LeadTechnicianID: req.LeadTechnicianID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type startRequest struct {
	TechnicianID         string     `json:"technician_id"`
	ActualStart          *time.Time `json:"actual_start"`
	ConditionBefore      string     `json:"condition_before"`
	SafetyBriefingDone   bool       `json:"safety_briefing_done"`
	LockoutTagoutApplied bool       `json:"lockout_tagout_applied"`
}

func (h *Handler) startExecution(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	e, err := h.execs.Start(c.Request.Context(), tenantID(c), c.Param("id"), execution.StartInput{
		TechnicianID:         req.TechnicianID,
		ActualStart:          req.ActualStart,
		ConditionBefore:      execution.AssetCondition(req.ConditionBefore),
		SafetyBriefingDone:   req.SafetyBriefingDone,
		LockoutTagoutApplied: req.LockoutTagoutApplied,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type completeRequest struct {
	CompletedBy         string     `json:"completed_by"`
	ActualEnd           *time.Time `json:"actual_end"`
	ActualDurationHours float64    `json:"actual_duration_hours"`
	DowntimeHours       float64    `json:"downtime_hours"`
	LaborCost           float64    `json:"labor_cost"`
	MaterialCost        float64    `json:"material_cost"`
	ContractorCost      float64    `json:"contractor_cost"`
	ActualCost          float64    `json:"actual_cost"`
	QualityRating       *float64   `json:"quality_rating"`
	ConditionAfter      string     `json:"condition_after"`
	IssuesEncountered   []string   `json:"issues_encountered"`
	RequiresFollowUp    bool       `json:"requires_follow_up"`
}

func (h *Handler) completeExecution(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	e, err := h.execs.Complete(c.Request.Context(), tenantID(c), c.Param("id"), execution.CompleteInput{
		CompletedBy:         req.CompletedBy,
		ActualEnd:           req.ActualEnd,
		ActualDurationHours: req.ActualDurationHours,
		DowntimeHours:       req.DowntimeHours,
		LaborCost:           req.LaborCost,
		MaterialCost:        req.MaterialCost,
		ContractorCost:      req.ContractorCost,
		ActualCost:          req.ActualCost,
		QualityRating:       req.QualityRating,
		ConditionAfter:      execution.AssetCondition(req.ConditionAfter),
		IssuesEncountered:   req.IssuesEncountered,
		RequiresFollowUp:    req.RequiresFollowUp,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelExecution(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	e, err := h.execs.Cancel(c.Request.Context(), tenantID(c), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	ApprovedBy string `json:"approved_by"`
}

func (h *Handler) reviewExecution(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	e, err := h.execs.Review(c.Request.Context(), tenantID(c), c.Param("id"), execution.ReviewInput{
		ReviewedBy: req.ReviewedBy,
		ApprovedBy: req.ApprovedBy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// ---- checklist ----

func (h *Handler) listChecklist(c *gin.Context) {
	items, err := h.checklist.List(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) checklistProgress(c *gin.Context) {
	progress, err := h.checklist.Progress(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

type beginItemRequest struct {
	ExecutedBy string `json:"executed_by"`
}

func (h *Handler) beginChecklistItem(c *gin.Context) {
	var req beginItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	item, err := h.checklist.BeginItem(c.Request.Context(), tenantID(c), c.Param("id"), req.ExecutedBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type outcomeRequest struct {
	Status          string   `json:"status"`
	ExecutedBy      string   `json:"executed_by"`
	DurationMinutes int      `json:"duration_minutes"`
	Notes           string   `json:"notes"`
	QualityPassed   *bool    `json:"quality_passed"`
	QualityNotes    string   `json:"quality_notes"`
	IssuesFound     []string `json:"issues_found"`
	Cost            float64  `json:"cost"`
	LaborHours      float64  `json:"labor_hours"`
}

func (h *Handler) recordChecklistOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	item, err := h.checklist.RecordOutcome(c.Request.Context(), tenantID(c), c.Param("id"), checklist.OutcomeInput{
		Status:          checklist.ItemStatus(req.Status),
		ExecutedBy:      req.ExecutedBy,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		QualityPassed:   req.QualityPassed,
		QualityNotes:    req.QualityNotes,
		IssuesFound:     req.IssuesFound,
		Cost:            req.Cost,
		LaborHours:      req.LaborHours,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ---- alerts ----

func (h *Handler) listAlerts(c *gin.Context) {
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	horizon, _ := strconv.Atoi(c.Query("horizon_days"))

	alerts, err := h.alerts.Derive(c.Request.Context(), tenantID(c), asOf, horizon)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *Handler) dispatchAlerts(c *gin.Context) {
	asOf, ok := parseDate(c, "as_of")
	if !ok {
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	horizon, _ := strconv.Atoi(c.Query("horizon_days"))

	alerts, err := h.alerts.Derive(c.Request.Context(), tenantID(c), asOf, horizon)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.alerts.Dispatch(c.Request.Context(), alerts); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": len(alerts)})
}
