// Package calendar computes the archive partitions that cover a symbol's
// trading history.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"klinevault/internal/model"
)

// ErrInvalidRange is returned when the start of a range is after its end.
var ErrInvalidRange = errors.New("calendar: from is after to")

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month at midnight UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Yesterday returns the most recent fully elapsed UTC day relative to now.
func Yesterday(now time.Time) time.Time {
	return DayStart(now).AddDate(0, 0, -1)
}

// PartitionsBetween lists the period starts of every partition between
// from and to, both ends inclusive.
func PartitionsBetween(from, to time.Time, g model.Granularity) ([]time.Time, error) {
	switch g {
	case model.Monthly:
		from, to = MonthStart(from), MonthStart(to)
		if from.After(to) {
			return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format("2006-01"), to.Format("2006-01"))
		}
		count := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
		out := make([]time.Time, 0, count+1)
		for i := 0; i <= count; i++ {
			out = append(out, from.AddDate(0, i, 0))
		}
		return out, nil
	case model.Daily:
		from, to = DayStart(from), DayStart(to)
		if from.After(to) {
			return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from.Format("2006-01-02"), to.Format("2006-01-02"))
		}
		count := int(to.Sub(from).Hours() / 24)
		out := make([]time.Time, 0, count+1)
		for i := 0; i <= count; i++ {
			out = append(out, from.AddDate(0, 0, i))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("calendar: unknown granularity %q", g)
	}
}

// SyncPlan holds the partitions a full sync must cover.
type SyncPlan struct {
	Monthly []time.Time
	Daily   []time.Time
}

// Len returns the total number of partitions in the plan.
func (p SyncPlan) Len() int { return len(p.Monthly) + len(p.Daily) }

// Partitions returns the plan's periods for g.
func (p SyncPlan) Partitions(g model.Granularity) []time.Time {
	if g == model.Monthly {
		return p.Monthly
	}
	return p.Daily
}

// Plan splits the history from onboard up to yesterday into monthly
// partitions for every month before yesterday's month and daily partitions
// for yesterday's month. Either set may be empty.
func Plan(onboard, now time.Time) (SyncPlan, error) {
	var plan SyncPlan

	yesterday := Yesterday(now)
	currentMonth := MonthStart(yesterday)

	lastMonthly := currentMonth.AddDate(0, -1, 0)
	if firstMonthly := MonthStart(onboard); !firstMonthly.After(lastMonthly) {
		monthly, err := PartitionsBetween(firstMonthly, lastMonthly, model.Monthly)
		if err != nil {
			return SyncPlan{}, err
		}
		plan.Monthly = monthly
	}

	firstDaily := currentMonth
	if day := DayStart(onboard); day.After(firstDaily) {
		firstDaily = day
	}
	if !firstDaily.After(yesterday) {
		daily, err := PartitionsBetween(firstDaily, yesterday, model.Daily)
		if err != nil {
			return SyncPlan{}, err
		}
		plan.Daily = daily
	}

	return plan, nil
}
