package schedule

import (
	"fmt"
	"time"

	"maintenance-engine/pkg/errutil"
	"maintenance-engine/services/plan"
)

// NextDue computes the next occurrence of a plan from a baseline date. Month
// and year steps clamp the day-of-month to the last day of the target month,
// so a Jan 31 baseline steps to Feb 29 and from there to Mar 29.
func NextDue(p *plan.MaintenancePlan, baseline time.Time) (time.Time, error) {
	if p == nil {
		return time.Time{}, errutil.ValidationFailed("plan is required")
	}
	interval := p.FrequencyInterval
	if interval < 1 {
		return time.Time{}, errutil.ValidationFailed("frequency interval must be at least 1",
			errutil.WithDetails(errutil.Detail{Field: "frequency_interval", Message: fmt.Sprintf("%d", interval)}))
	}

	switch p.FrequencyType {
	case plan.FrequencyDaily:
		return baseline.AddDate(0, 0, interval), nil
	case plan.FrequencyWeekly:
		return baseline.AddDate(0, 0, 7*interval), nil
	case plan.FrequencyMonthly:
		return addMonthsClamped(baseline, interval), nil
	case plan.FrequencyQuarterly:
		return addMonthsClamped(baseline, 3*interval), nil
	case plan.FrequencySemiAnnual:
		return addMonthsClamped(baseline, 6*interval), nil
	case plan.FrequencyAnnual:
		return addMonthsClamped(baseline, 12*interval), nil
	case plan.FrequencyCustom:
		return addCustom(baseline, interval, p.FrequencyUnit)
	default:
		return time.Time{}, errutil.ValidationFailed("unknown frequency type",
			errutil.WithDetails(errutil.Detail{Field: "frequency_type", Message: string(p.FrequencyType)}))
	}
}

func addCustom(baseline time.Time, interval int, unit plan.FrequencyUnit) (time.Time, error) {
	switch unit {
	case plan.UnitDays:
		return baseline.AddDate(0, 0, interval), nil
	case plan.UnitWeeks:
		return baseline.AddDate(0, 0, 7*interval), nil
	case plan.UnitMonths:
		return addMonthsClamped(baseline, interval), nil
	case plan.UnitYears:
		return addMonthsClamped(baseline, 12*interval), nil
	default:
		return time.Time{}, errutil.ValidationFailed("custom frequency requires a unit",
			errutil.WithDetails(errutil.Detail{Field: "frequency_unit", Message: string(unit)}))
	}
}

// addMonthsClamped steps whole months without the normalization overflow of
// time.AddDate (Jan 31 + 1 month must not land on Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	first = first.AddDate(0, months, 0)

	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
