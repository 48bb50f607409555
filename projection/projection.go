// Package projection composes the read-only plan view served to clients:
// the row list in display order, the slot axis with day, ISO-week and month
// headers, the closure masks and the task list in slot coordinates.
package projection

import (
	"fmt"
	"time"

	"github.com/mecaplan/mecaplan/calendar"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
)

// SlotHeader labels one half-day column.
type SlotHeader struct {
	Slot    int    `json:"slot"`
	Date    string `json:"date"`     // dd/mm
	Period  string `json:"period"`   // AM or PM
	DayName string `json:"day_name"` // Mon..Sun
	Closed  bool   `json:"closed"`
}

// SpanHeader groups consecutive slots under one label: a day, an ISO week or
// a month.
type SpanHeader struct {
	Name      string `json:"name"`
	StartSlot int    `json:"start_slot"`
	Span      int    `json:"span"`
}

// TaskView is a task with its derived slot coordinates alongside the raw
// fields.
type TaskView struct {
	*structs.Task

	StartSlot     int `json:"start_slot"`
	DurationSlots int `json:"duration"`
}

// View is the complete plan projection.
type View struct {
	Planning *structs.Planning `json:"planning"`
	Horizon  int               `json:"horizon"`

	Rows    []*structs.Row    `json:"rows"`
	Affairs []*structs.Affair `json:"affairs"`
	Tasks   []*TaskView       `json:"tasks"`

	Slots  []*SlotHeader `json:"slots"`
	Days   []*SpanHeader `json:"days"`
	Weeks  []*SpanHeader `json:"weeks"`
	Months []*SpanHeader `json:"months"`

	ClosedGlobal []bool           `json:"closed_global"`
	ClosedRow    map[int64][]bool `json:"closed_row"`
}

// Build assembles the view under the session's shared lock.
func Build(sess *state.Session, minHorizon, margin int) (*View, error) {
	sess.RLock()
	defer sess.RUnlock()

	cal := sess.Calendar()
	planning := sess.Planning()

	rows, err := sess.Store().Rows()
	if err != nil {
		return nil, err
	}
	affairs, err := sess.Store().Affairs()
	if err != nil {
		return nil, err
	}
	tasks, err := sess.Store().Tasks()
	if err != nil {
		return nil, err
	}

	horizon := cal.Horizon(planning.EndDate, tasks, minHorizon, margin)
	closures := sess.Closures()

	view := &View{
		Planning:     planning,
		Horizon:      horizon,
		Rows:         rows,
		Affairs:      affairs,
		Slots:        make([]*SlotHeader, 0, horizon),
		ClosedGlobal: make([]bool, horizon),
		ClosedRow:    make(map[int64][]bool, len(rows)),
	}

	buildAxis(view, cal, closures, horizon)

	for _, row := range rows {
		mask := make([]bool, horizon)
		for s := 0; s < horizon; s++ {
			mask[s] = closures.Closed(row.ID, s)
		}
		view.ClosedRow[row.ID] = mask
	}

	view.Tasks = make([]*TaskView, 0, len(tasks))
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, &TaskView{
			Task:          t,
			StartSlot:     cal.SlotOf(t.StartDate),
			DurationSlots: cal.HoursToSlots(t.DurationHours),
		})
	}

	return view, nil
}

// buildAxis fills the slot headers and the day/week/month groupings. Week
// identifiers follow ISO 8601: Monday first, week-of-year per ISO rules,
// formatted "S{ww}/{YYYY}" with the ISO year.
func buildAxis(view *View, cal calendar.Calendar, closures *calendar.ClosureSet, horizon int) {
	var curWeek, curMonth string

	for s := 0; s < horizon; s++ {
		day := cal.InstantOf(s)
		am := s%2 == 0

		period := "PM"
		if am {
			period = "AM"
		}
		closed := closures.ClosedGlobal(s)
		view.ClosedGlobal[s] = closed
		view.Slots = append(view.Slots, &SlotHeader{
			Slot:    s,
			Date:    day.Format("02/01"),
			Period:  period,
			DayName: day.Format("Mon"),
			Closed:  closed,
		})

		if am {
			view.Days = append(view.Days, &SpanHeader{
				Name:      fmt.Sprintf("%s %s", day.Format("Mon"), day.Format("02/01")),
				StartSlot: s,
				Span:      0,
			})
		}
		if n := len(view.Days); n > 0 {
			view.Days[n-1].Span++
		}

		week := ISOWeekLabel(day)
		if week != curWeek {
			curWeek = week
			view.Weeks = append(view.Weeks, &SpanHeader{
				Name:      week,
				StartSlot: s,
			})
		}
		view.Weeks[len(view.Weeks)-1].Span++

		month := day.Format("01/2006")
		if month != curMonth {
			curMonth = month
			view.Months = append(view.Months, &SpanHeader{
				Name:      month,
				StartSlot: s,
			})
		}
		view.Months[len(view.Months)-1].Span++
	}
}

// ISOWeekLabel formats the ISO week holding t as S{ww}/{year}.
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("S%02d/%d", week, year)
}
