package projection

import (
	"testing"
	"time"

	"github.com/mecaplan/mecaplan/calendar"
	"github.com/mecaplan/mecaplan/helper/testlog"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/shoenig/test/must"
)

func testSession(t *testing.T, start time.Time) *state.Session {
	t.Helper()
	planning := &structs.Planning{ID: 1, Name: "atelier", Type: structs.PlanningTypeOperator}
	sess, err := state.NewSession(testlog.HCLogger(t), planning, calendar.New(start, 3.5))
	must.NoError(t, err)
	must.NoError(t, sess.Store().ReplaceRows([]*structs.Row{
		{ID: 1, Name: "Dupont"},
		{ID: 2, Name: "Martin"},
	}))
	return sess
}

func TestBuild_Axis(t *testing.T) {
	// 2025-08-11 is a Monday in ISO week 33.
	sess := testSession(t, time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC))

	view, err := Build(sess, 60, 14)
	must.NoError(t, err)
	must.Eq(t, 60, view.Horizon)
	must.Len(t, 60, view.Slots)

	must.Eq(t, "11/08", view.Slots[0].Date)
	must.Eq(t, "AM", view.Slots[0].Period)
	must.Eq(t, "PM", view.Slots[1].Period)
	must.Eq(t, "Mon", view.Slots[0].DayName)
	must.Eq(t, "Tue", view.Slots[2].DayName)

	// 30 days of 2 slots each.
	must.Len(t, 30, view.Days)
	for _, d := range view.Days {
		must.Eq(t, 2, d.Span)
	}

	// Week 33 starts at slot 0 and runs 7 days.
	must.Eq(t, "S33/2025", view.Weeks[0].Name)
	must.Eq(t, 0, view.Weeks[0].StartSlot)
	must.Eq(t, 14, view.Weeks[0].Span)
	must.Eq(t, "S34/2025", view.Weeks[1].Name)
	must.Eq(t, 14, view.Weeks[1].StartSlot)

	// August has 21 remaining days, September takes the rest.
	must.Len(t, 2, view.Months)
	must.Eq(t, "08/2025", view.Months[0].Name)
	must.Eq(t, 42, view.Months[0].Span)
	must.Eq(t, "09/2025", view.Months[1].Name)
	must.Eq(t, 18, view.Months[1].Span)

	// Spans cover the axis exactly.
	total := 0
	for _, w := range view.Weeks {
		total += w.Span
	}
	must.Eq(t, 60, total)
}

func TestBuild_ISOWeekAcrossYearBoundary(t *testing.T) {
	// 2025-12-29 is a Monday belonging to ISO week 1 of 2026.
	sess := testSession(t, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC))

	view, err := Build(sess, 60, 14)
	must.NoError(t, err)
	must.Eq(t, "S01/2026", view.Weeks[0].Name)
}

func TestBuild_ClosureMasks(t *testing.T) {
	sess := testSession(t, time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC))
	sess.SetClosures([]*structs.Closure{
		{ID: 1, Date: time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)},           // global
		{ID: 2, Date: time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC), RowID: 2}, // row 2
	})

	view, err := Build(sess, 60, 14)
	must.NoError(t, err)

	// Global closure on day 4 marks slots 8 and 9 everywhere.
	must.True(t, view.ClosedGlobal[8])
	must.True(t, view.ClosedGlobal[9])
	must.False(t, view.ClosedGlobal[10])
	must.True(t, view.Slots[8].Closed)
	must.True(t, view.ClosedRow[1][8])
	must.True(t, view.ClosedRow[2][8])

	// Row closure on day 1 marks slots 2 and 3 for row 2 only.
	must.True(t, view.ClosedRow[2][2])
	must.True(t, view.ClosedRow[2][3])
	must.False(t, view.ClosedRow[1][2])
	must.False(t, view.ClosedGlobal[2])
}

func TestBuild_TaskCoordinates(t *testing.T) {
	sess := testSession(t, time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC))
	cal := sess.Calendar()
	must.NoError(t, sess.Store().UpsertTasks([]*structs.Task{
		{ID: "a", RowID: 1, Name: "Analyse", StartDate: cal.InstantOf(4), DurationHours: 21},
		{ID: "b", RowID: 2, Name: "Montage", StartDate: cal.InstantOf(9), DurationHours: 10.5},
	}))

	view, err := Build(sess, 60, 14)
	must.NoError(t, err)
	must.Len(t, 2, view.Tasks)

	must.Eq(t, "a", view.Tasks[0].ID)
	must.Eq(t, 4, view.Tasks[0].StartSlot)
	must.Eq(t, 6, view.Tasks[0].DurationSlots)
	must.Eq(t, 9, view.Tasks[1].StartSlot)
	must.Eq(t, 3, view.Tasks[1].DurationSlots)
}
