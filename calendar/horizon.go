package calendar

import (
	"time"

	"github.com/mecaplan/mecaplan/structs"
)

const (
	// DefaultMinHorizon is the floor on the horizon, in slots.
	DefaultMinHorizon = 60

	// DefaultHorizonMargin is the slack added past the last planned task,
	// in slots.
	DefaultHorizonMargin = 14
)

// Horizon computes the exclusive upper bound on slot indices for a planning.
// It is the maximum of the configured floor, twice the days until the
// planning end date, and twice the day span covered by the tasks plus the
// margin. Every accepted placement must fit in [0, horizon).
func (c Calendar) Horizon(endDate *time.Time, tasks []*structs.Task, minHorizon, margin int) int {
	horizon := minHorizon

	if endDate != nil {
		y, m, d := endDate.Date()
		end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		days := int(end.Sub(c.start).Hours() / 24)
		if h := 2 * days; h > horizon {
			horizon = h
		}
	}

	lastDay := -1
	for _, t := range tasks {
		endSlot := c.SlotOf(t.StartDate) + c.HoursToSlots(t.DurationHours) - 1
		if day := c.DayIndex(endSlot); day > lastDay {
			lastDay = day
		}
	}
	if lastDay >= 0 {
		if h := 2*(lastDay+1) + margin; h > horizon {
			horizon = h
		}
	}

	return horizon
}
