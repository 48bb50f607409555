// Package calendar maps between absolute instants and the linear index of
// half-day slots a planning is laid out on. Slot 2d is the AM half of day d
// after the planning start date, slot 2d+1 the PM half. The calendar is
// purely functional; it depends only on the immutable start date and the
// half-day working hours.
package calendar

import (
	"math"
	"time"
)

const (
	// AMHour anchors the morning half-day when a slot is converted back to
	// an instant.
	AMHour = 8

	// PMHour anchors the afternoon half-day. The legacy system wavered
	// between 14:00 and 15:00; both land in slot 2d+1 under the hour>=12
	// rule, we standardize on 14:00.
	PMHour = 14
)

// Calendar converts between instants and slot indices.
type Calendar struct {
	// start is the planning start date at midnight, display timezone,
	// location stripped.
	start time.Time

	// halfDayHours is the working hours carried by one slot.
	halfDayHours float64
}

// New returns a calendar anchored at the date of start. The time component
// of start is ignored.
func New(start time.Time, halfDayHours float64) Calendar {
	y, m, d := start.Date()
	return Calendar{
		start:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		halfDayHours: halfDayHours,
	}
}

// Start returns the planning start date at midnight.
func (c Calendar) Start() time.Time {
	return c.start
}

// HalfDayHours returns the working hours carried by one slot.
func (c Calendar) HalfDayHours() float64 {
	return c.halfDayHours
}

// SlotOf returns the slot index holding the instant. Instants before noon
// map to the AM slot, noon and later to the PM slot. Instants before the
// planning start yield negative indices.
func (c Calendar) SlotOf(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(c.start).Hours() / 24)
	slot := days * 2
	if t.Hour() >= 12 {
		slot++
	}
	return slot
}

// InstantOf returns the anchor instant of a slot: 08:00 for AM slots, 14:00
// for PM slots, naive local time.
func (c Calendar) InstantOf(slot int) time.Time {
	day := c.start.AddDate(0, 0, slot/2)
	hour := AMHour
	if slot%2 == 1 {
		hour = PMHour
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
}

// HoursToSlots converts a duration in hours to slots, rounding up. Any
// positive duration occupies at least one slot.
func (c Calendar) HoursToSlots(hours float64) int {
	slots := int(math.Ceil(hours / c.halfDayHours))
	if slots < 1 {
		slots = 1
	}
	return slots
}

// SlotsToHours converts a slot count back to working hours.
func (c Calendar) SlotsToHours(slots int) float64 {
	return float64(slots) * c.halfDayHours
}

// DayIndex returns the day offset of a slot from the planning start.
func (c Calendar) DayIndex(slot int) int {
	return slot / 2
}
