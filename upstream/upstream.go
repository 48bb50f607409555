// Package upstream defines the capability ports the engine consumes from the
// system of record. The postgres subpackage implements them; tests supply
// fakes.
package upstream

import (
	"context"
	"time"

	"github.com/mecaplan/mecaplan/structs"
)

// TaskUpdate is one row of a persist batch. Start is naive local display
// time; the adapter converts to the storage timezone.
type TaskUpdate struct {
	ID            string
	RowID         int64
	Start         time.Time
	DurationHours float64
}

// TaskWriter applies a batch of task updates within one transaction. A
// failure on any row rolls back the whole batch.
type TaskWriter interface {
	PersistTasks(ctx context.Context, planning *structs.Planning, updates []*TaskUpdate) error
}

// PlanningSummary is one line of the planning selection list.
type PlanningSummary struct {
	Planning    *structs.Planning `json:"planning"`
	TaskCount   int               `json:"task_count"`
	AffairCount int               `json:"affair_count"`
}

// Snapshot is everything the loader produces for one planning.
type Snapshot struct {
	Planning *structs.Planning
	Rows     []*structs.Row
	Affairs  []*structs.Affair
	Closures []*structs.Closure
	Tasks    []*structs.Task
}

// Loader imports plannings from the upstream data model.
type Loader interface {
	// Plannings lists the selectable plannings with task and affair counts.
	Plannings(ctx context.Context) ([]*PlanningSummary, error)

	// Load reads the full snapshot of one planning. Returns
	// structs.ErrUnknownPlanning when the id does not exist.
	Load(ctx context.Context, planningID int64) (*Snapshot, error)

	// LoadTasks re-reads only the task set of one planning.
	LoadTasks(ctx context.Context, planningID int64) ([]*structs.Task, error)

	// LoadRows re-reads only the rows of one planning.
	LoadRows(ctx context.Context, planningID int64) ([]*structs.Row, error)

	// LoadAffairs re-reads only the affairs of one planning.
	LoadAffairs(ctx context.Context, planningID int64) ([]*structs.Affair, error)
}

// OperationLine is the propagator's view of one upstream work-order
// operation.
type OperationLine struct {
	ID          int64
	WorkOrderID int64
	Sequence    int

	WorkcenterID int64
	EmployeeID   int64

	// RemainingHours is the work left on the line.
	RemainingHours float64

	// PostTransitionHours is the settling time after this line before the
	// next one may start, measured on the next line's working calendar.
	PostTransitionHours float64

	// OverlapPct lets this line start before its predecessor finishes, as
	// a percentage of the predecessor's actual duration.
	OverlapPct float64

	Start time.Time
	End   time.Time

	// UnitDuration mirrors the planned task duration back onto the line.
	UnitDuration float64
}

// PropagationTotals summarizes a best-effort propagation pass.
type PropagationTotals struct {
	OperationsRecomputed int `json:"operations_recomputed"`
	EmployeesAssigned    int `json:"employees_assigned"`
	DurationsUpdated     int `json:"durations_updated"`
	ProductionsShifted   int `json:"productions_shifted"`
	LinesSkipped         int `json:"lines_skipped"`
}

// Operations is the port onto the upstream work-order model. The propagator
// is the only writer; the scheduler itself never touches these.
type Operations interface {
	// ProductionStart reads the currently planned start of a production.
	ProductionStart(ctx context.Context, productionID int64) (time.Time, error)

	// ShiftProductionStart moves the planned start of a production by
	// delta.
	ShiftProductionStart(ctx context.Context, productionID int64, delta time.Duration) error

	// AssignWorkOrder pushes a workcenter and duration onto the primary
	// work order of a production. Used for workcenter-typed plannings.
	AssignWorkOrder(ctx context.Context, productionID, workcenterID int64, durationHours float64) error

	// LinesForWorkOrder returns the operation lines of a work order in
	// sequence order, ties broken by line id.
	LinesForWorkOrder(ctx context.Context, workOrderID int64) ([]*OperationLine, error)

	// EarliestEnd returns when a duration starting at start completes on
	// the workcenter's availability calendar, skipping closed periods.
	EarliestEnd(ctx context.Context, workcenterID int64, durationHours float64, start time.Time) (time.Time, error)

	// AdvanceWorkingHours moves an instant forward by a number of working
	// hours on the workcenter's availability calendar.
	AdvanceWorkingHours(ctx context.Context, workcenterID int64, from time.Time, hours float64) (time.Time, error)

	// UpdateLine writes the recomputed start, end, unit duration and
	// employee assignment of one operation line.
	UpdateLine(ctx context.Context, lineID int64, start, end time.Time, unitDuration float64, employeeID int64) error
}

// Store is the full upstream capability set one database connection
// provides.
type Store interface {
	TaskWriter
	Loader
	Operations

	// Close releases the connection pool.
	Close()
}
