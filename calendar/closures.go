package calendar

import (
	"github.com/mecaplan/mecaplan/structs"
)

// ClosureSet answers whether a slot is marked closed for a row. Closures are
// day-granular; a closure without a row id applies to every row. Closed
// slots are advisory markings for the projection, they never constrain
// placement.
type ClosureSet struct {
	cal Calendar

	// global holds day indices closed for all rows.
	global map[int]struct{}

	// byRow holds day indices closed per row id.
	byRow map[int64]map[int]struct{}
}

// NewClosureSet indexes closures by day offset from the planning start.
// Closures dated before the start are dropped.
func NewClosureSet(cal Calendar, closures []*structs.Closure) *ClosureSet {
	cs := &ClosureSet{
		cal:    cal,
		global: make(map[int]struct{}),
		byRow:  make(map[int64]map[int]struct{}),
	}
	for _, c := range closures {
		day := cal.DayIndex(cal.SlotOf(c.Date))
		if day < 0 {
			continue
		}
		if c.RowID == 0 {
			cs.global[day] = struct{}{}
			continue
		}
		days, ok := cs.byRow[c.RowID]
		if !ok {
			days = make(map[int]struct{})
			cs.byRow[c.RowID] = days
		}
		days[day] = struct{}{}
	}
	return cs
}

// Closed reports whether the slot is closed for the row, either by a global
// closure or by a closure scoped to the row.
func (cs *ClosureSet) Closed(rowID int64, slot int) bool {
	day := cs.cal.DayIndex(slot)
	if _, ok := cs.global[day]; ok {
		return true
	}
	if days, ok := cs.byRow[rowID]; ok {
		if _, ok := days[day]; ok {
			return true
		}
	}
	return false
}

// ClosedGlobal reports whether the slot is closed for every row.
func (cs *ClosureSet) ClosedGlobal(slot int) bool {
	_, ok := cs.global[cs.cal.DayIndex(slot)]
	return ok
}
