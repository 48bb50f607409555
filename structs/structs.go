// Package structs holds the domain types shared by the planning engine, the
// HTTP layer and the upstream adapters.
package structs

import (
	"sort"
	"time"
)

// PlanningType selects which kind of resource the rows of a planning
// represent. It also decides which column of the upstream task table receives
// the row id on persist.
type PlanningType string

const (
	// PlanningTypeOperator means each row is a human operator.
	PlanningTypeOperator PlanningType = "operator"

	// PlanningTypeWorkcenter means each row is a workcenter.
	PlanningTypeWorkcenter PlanningType = "workcenter"
)

// Planning identifies one plan view and the set of rows, tasks, affairs and
// closures bound to it.
type Planning struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Type PlanningType `json:"type"`

	// EndDate optionally bounds the horizon. Nil means the horizon is
	// derived from the tasks alone.
	EndDate *time.Time `json:"end_date,omitempty"`

	// Filter and Ready are consumed by the loader only; the engine carries
	// them opaquely.
	Filter string `json:"filter,omitempty"`
	Ready  bool   `json:"ready,omitempty"`
}

// Copy returns a deep copy of the planning.
func (p *Planning) Copy() *Planning {
	if p == nil {
		return nil
	}
	np := new(Planning)
	*np = *p
	if p.EndDate != nil {
		end := *p.EndDate
		np.EndDate = &end
	}
	return np
}

// Row is one horizontal lane of the planning: an operator or a workcenter,
// depending on the planning type.
type Row struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Rank is the display position assigned by the loader. Rows render in
	// ascending rank; keyboard up/down moves along this order.
	Rank int `json:"rank"`
}

// Copy returns a copy of the row.
func (r *Row) Copy() *Row {
	if r == nil {
		return nil
	}
	nr := new(Row)
	*nr = *r
	return nr
}

// Task is one plannable block. StartDate is naive local time in the display
// timezone at minute precision; slot coordinates are derived through the
// calendar.
type Task struct {
	ID       string `json:"id"`
	RowID    int64  `json:"row_id"`
	AffairID int64  `json:"affair_id,omitempty"`
	Name     string `json:"name"`

	StartDate     time.Time `json:"start_date"`
	DurationHours float64   `json:"duration_hours"`

	// Back-pointers into the upstream work-order model. Zero values mean
	// the task is not bound to the corresponding entity.
	OrderID         int64      `json:"order_id,omitempty"`
	ProductionID    int64      `json:"production_id,omitempty"`
	WorkOrderID     int64      `json:"work_order_id,omitempty"`
	OperationLineID int64      `json:"operation_line_id,omitempty"`
	RemainingQty    float64    `json:"remaining_qty,omitempty"`
	LastRequired    *time.Time `json:"last_required,omitempty"`
}

// Copy returns a deep copy of the task.
func (t *Task) Copy() *Task {
	if t == nil {
		return nil
	}
	nt := new(Task)
	*nt = *t
	if t.LastRequired != nil {
		lr := *t.LastRequired
		nt.LastRequired = &lr
	}
	return nt
}

// SortTasks orders tasks by ascending start date, ties broken by id. Start
// dates are slot-anchored, so this is the deterministic ascending-slot order
// the collision engine iterates in.
func SortTasks(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StartDate.Equal(tasks[j].StartDate) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].StartDate.Before(tasks[j].StartDate)
	})
}

// Affair is the business identifier (sale order / project) that tints tasks.
// Color is an opaque string; the engine never interprets it.
type Affair struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Copy returns a copy of the affair.
func (a *Affair) Copy() *Affair {
	if a == nil {
		return nil
	}
	na := new(Affair)
	*na = *a
	return na
}

// Closure marks one day as unavailable, either for every row (RowID zero) or
// for a single row. Closures are advisory: the engine surfaces them in the
// projection but never refuses a placement on a closed slot.
type Closure struct {
	ID    int64     `json:"id"`
	Date  time.Time `json:"date"`
	RowID int64     `json:"row_id,omitempty"`
}

// Copy returns a copy of the closure.
func (c *Closure) Copy() *Closure {
	if c == nil {
		return nil
	}
	nc := new(Closure)
	*nc = *c
	return nc
}
