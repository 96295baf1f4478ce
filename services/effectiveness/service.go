package effectiveness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"maintenance-engine/pkg/config"
	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/execution"
	"maintenance-engine/services/plan"
)

// Service computes per-plan effectiveness reports from completed execution
// history and writes the resulting score back to the plan.
type Service struct {
	plans    plan.Repository
	execs    execution.Repository
	analyzer config.Analyzer
	logger   *zap.Logger
}

// ServiceParams defines dependencies for Service construction.
type ServiceParams struct {
	fx.In

	Plans      plan.Repository
	Executions execution.Repository
	Config     *config.Config `optional:"true"`
	Logger     *zap.Logger
}

// NewService constructs a new Service instance.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Plans == nil {
		panic("effectiveness service requires plan repository dependency")
	}
	if p.Executions == nil {
		panic("effectiveness service requires execution repository dependency")
	}
	analyzer := config.DefaultAnalyzer()
	if p.Config != nil {
		analyzer = p.Config.Analyzer
	}
	return &Service{
		plans:    p.Plans,
		execs:    p.Executions,
		analyzer: analyzer,
		logger:   logger,
	}
}

// Analyze builds the effectiveness report for one plan over [from, to]. The
// composite score and period completion rate are persisted on the plan so
// registry statistics can filter on them without recomputation.
func (s *Service) Analyze(ctx context.Context, tenantID, planID string, from, to time.Time) (*Report, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errutil.ValidationFailed("tenant_id is required",
			errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"}))
	}
	if strings.TrimSpace(planID) == "" {
		return nil, errutil.ValidationFailed("plan_id is required",
			errutil.WithDetails(errutil.Detail{Field: "plan_id", Message: "required"}))
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, errutil.ValidationFailed("period end precedes period start",
			errutil.WithDetails(errutil.Detail{Field: "to", Message: "must not precede from"}))
	}

	p, err := s.plans.GetByID(ctx, tenantID, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound(fmt.Sprintf("plan %s not found", planID))
		}
		return nil, errutil.Internal("failed to load plan", errutil.WithErr(err))
	}

	all, err := s.execs.List(ctx, tenantID, execution.ListParams{
		PlanID: planID,
		From:   from,
		To:     to,
	})
	if err != nil {
		return nil, errutil.Internal("failed to list executions", errutil.WithErr(err))
	}

	completed, err := s.execs.ListCompletedByPlan(ctx, tenantID, planID, from, to)
	if err != nil {
		return nil, errutil.Internal("failed to list completed executions", errutil.WithErr(err))
	}

	report := &Report{
		TenantID:            tenantID,
		PlanID:              planID,
		PlanCode:            p.Code,
		PeriodStart:         from,
		PeriodEnd:           to,
		TotalExecutions:     len(all),
		CompletedExecutions: len(completed),
		CostTrend:           TrendStable,
		QualityTrend:        TrendStable,
		GeneratedAt:         time.Now().UTC(),
	}
	for _, e := range all {
		if e.Status == execution.StatusCancelled {
			report.CancelledExecutions++
		}
	}

	if report.TotalExecutions > 0 {
		report.CompletionRate = float64(report.CompletedExecutions) / float64(report.TotalExecutions) * 100
	}

	costs := make([]float64, 0, len(completed))
	qualities := make([]float64, 0, len(completed))
	var durationSum float64
	for _, e := range completed {
		costs = append(costs, e.ActualCost)
		durationSum += e.ActualDurationHours
		if e.QualityRating != nil {
			qualities = append(qualities, *e.QualityRating)
		}
	}
	if len(completed) > 0 {
		report.AverageCost = mean(costs)
		report.AverageDurationHours = durationSum / float64(len(completed))
	}
	if len(qualities) > 0 {
		report.AverageQuality = mean(qualities)
	}

	report.CostTrend = s.trendOf(costs)
	report.QualityTrend = s.trendOf(qualities)

	report.EffectivenessScore = s.score(report, costs, len(qualities) > 0)
	report.RecommendedActions = s.recommend(p, report)

	if err := s.plans.SetEffectiveness(ctx, tenantID, planID, report.CompletionRate, report.EffectivenessScore); err != nil {
		// The report is still valid; registry statistics stay stale until
		// the next run.
		s.logger.Warn("failed to persist effectiveness score",
			zap.String("plan_id", planID),
			zap.Error(err))
	}

	return report, nil
}

// trendOf compares the first-half average against the second-half average.
// Movement inside the stability band counts as stable; the label reports the
// direction of the raw movement.
func (s *Service) trendOf(values []float64) Trend {
	if len(values) < 2 {
		return TrendStable
	}

	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])

	if first == 0 {
		if second == 0 {
			return TrendStable
		}
		return TrendIncreasing
	}

	ratio := second / first
	switch {
	case ratio > 1+s.analyzer.StabilityBand:
		return TrendIncreasing
	case ratio < 1-s.analyzer.StabilityBand:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// score combines completion rate, normalised quality, and inverse cost
// variance into one 0..100 value. Components without data drop out and the
// remaining weights are renormalised, so a plan with no quality ratings is
// not penalised for them.
func (s *Service) score(r *Report, costs []float64, hasQuality bool) float64 {
	if r.TotalExecutions == 0 {
		return 0
	}

	type component struct {
		weight float64
		value  float64
	}
	components := []component{
		{s.analyzer.CompletionWeight, r.CompletionRate},
	}

	if hasQuality && s.analyzer.MaxQualityRating > 0 {
		components = append(components, component{
			s.analyzer.QualityWeight,
			r.AverageQuality / s.analyzer.MaxQualityRating * 100,
		})
	}

	if len(costs) > 0 {
		// Inverse coefficient of variation: identical costs score 100,
		// spread of one mean or more scores 0.
		cv := 0.0
		if m := mean(costs); m > 0 {
			cv = stddev(costs) / m
		}
		components = append(components, component{
			s.analyzer.CostWeight,
			math.Max(0, 1-cv) * 100,
		})
	}

	var weightSum, total float64
	for _, c := range components {
		weightSum += c.weight
		total += c.weight * c.value
	}
	if weightSum == 0 {
		return 0
	}

	return math.Min(100, math.Max(0, total/weightSum))
}

func (s *Service) recommend(p *plan.MaintenancePlan, r *Report) []string {
	var actions []string

	if r.EffectivenessScore < s.analyzer.LowEffectivenessScore {
		actions = append(actions, "review plan: effectiveness below threshold")
	}
	if r.CostTrend == TrendIncreasing {
		actions = append(actions, "investigate rising maintenance cost")
	}
	if r.QualityTrend == TrendDecreasing {
		actions = append(actions, "review task instructions and required skill levels")
	}
	if r.CancelledExecutions > 0 && r.TotalExecutions > 0 &&
		float64(r.CancelledExecutions)/float64(r.TotalExecutions) > 0.25 {
		actions = append(actions, "high cancellation rate: revisit scheduling assumptions")
	}
	if p.TargetCostPerYear > 0 && p.ActualCostYTD > p.TargetCostPerYear*s.analyzer.BudgetRiskRatio {
		actions = append(actions, "actual cost approaching yearly target")
	}

	return actions
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}
