package consumption

import (
	"fmt"
	"time"
)

// Named periods a consumption query understands.
const (
	PeriodLast30Min = "last_30min"
	PeriodToday     = "today"
	PeriodThisWeek  = "this_week"
	PeriodThisMonth = "this_month"
	PeriodLastMonth = "last_month"
	PeriodCustom    = "custom"
)

// Period is a query window, either one of the named periods or a custom
// [From, To] range.
type Period struct {
	Name string
	From time.Time
	To   time.Time
}

// NamedPeriod builds one of the predefined periods.
func NamedPeriod(name string) (Period, error) {
	switch name {
	case PeriodLast30Min, PeriodToday, PeriodThisWeek, PeriodThisMonth, PeriodLastMonth:
		return Period{Name: name}, nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, name)
	}
}

// CustomPeriod builds an explicit range. From must not be after To.
func CustomPeriod(from, to time.Time) (Period, error) {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return Period{}, fmt.Errorf("%w: custom range ends before it starts", ErrInvalidPeriod)
	}
	return Period{Name: PeriodCustom, From: from, To: to}, nil
}

// Resolve turns the period into a concrete [from, to] range relative to
// now. Now is first clamped back onto the half-hour grid so that a query
// at 10:17 reads up to the 10:00 slot, not into the future half hour.
func (p Period) Resolve(now time.Time) (from, to time.Time, err error) {
	if p.Name == PeriodCustom {
		return p.From, p.To, nil
	}

	now = clampToGrid(now.UTC())
	switch p.Name {
	case PeriodLast30Min:
		return now.Add(-30 * time.Minute), now, nil
	case PeriodToday:
		return dayStart(now), now, nil
	case PeriodThisWeek:
		return dayStart(now).AddDate(0, 0, -weekdayOffset(now)), now, nil
	case PeriodThisMonth:
		return monthStart(now), now, nil
	case PeriodLastMonth:
		thisMonth := monthStart(now)
		return thisMonth.AddDate(0, -1, 0), thisMonth, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, p.Name)
	}
}

// clampToGrid rounds now down to the latest half-hour slot.
func clampToGrid(now time.Time) time.Time {
	switch {
	case now.Minute() > 30:
		return now.Truncate(time.Hour).Add(30 * time.Minute)
	case now.Minute() > 0:
		return now.Truncate(time.Hour)
	default:
		return now.Truncate(time.Minute)
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// weekdayOffset returns days elapsed since Monday.
func weekdayOffset(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 6
	}
	return wd - 1
}
