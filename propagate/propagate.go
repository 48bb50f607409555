// Package propagate pushes planned task dates back into the upstream
// work-order model: production start dates shift by the delta of their
// earliest task, and operation lines are recomputed along their sequence
// with transition and overlap rules.
package propagate

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

// Propagator runs the two write-back passes over the upstream operations
// port. Both passes are best effort: a failing line is logged, counted and
// skipped while the rest of the batch continues.
type Propagator struct {
	sess   *state.Session
	ops    upstream.Operations
	logger hclog.Logger
}

// New returns a propagator bound to one planning session.
func New(logger hclog.Logger, sess *state.Session, ops upstream.Operations) *Propagator {
	return &Propagator{
		sess:   sess,
		ops:    ops,
		logger: logger.Named("propagate"),
	}
}

// ProductionStarts shifts every production's planned start by the delta
// between its earliest task and its current planned start. On
// workcenter-typed plannings the task's workcenter and duration are also
// pushed onto the production's primary work order.
func (p *Propagator) ProductionStarts(ctx context.Context) (*upstream.PropagationTotals, error) {
	defer metrics.MeasureSince([]string{"mecaplan", "propagate", "production_starts"}, time.Now())

	p.sess.RLock()
	planning := p.sess.Planning()
	tasks, err := p.sess.Store().Tasks()
	p.sess.RUnlock()
	if err != nil {
		return nil, err
	}

	earliest := make(map[int64]*structs.Task)
	for _, task := range tasks {
		if task.ProductionID == 0 {
			continue
		}
		cur, ok := earliest[task.ProductionID]
		if !ok || task.StartDate.Before(cur.StartDate) {
			earliest[task.ProductionID] = task
		}
	}

	ids := make([]int64, 0, len(earliest))
	for id := range earliest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	totals := &upstream.PropagationTotals{}
	var mErr *multierror.Error
	for _, prodID := range ids {
		task := earliest[prodID]
		if err := p.shiftProduction(ctx, planning, prodID, task, totals); err != nil {
			p.logger.Warn("production propagation failed",
				"production_id", prodID, "task_id", task.ID, "error", err)
			totals.LinesSkipped++
			mErr = multierror.Append(mErr, err)
		}
	}
	if mErr != nil {
		p.logger.Info("production propagation finished with errors",
			"shifted", totals.ProductionsShifted, "skipped", totals.LinesSkipped,
			"error", mErr.ErrorOrNil())
	}
	return totals, nil
}

func (p *Propagator) shiftProduction(ctx context.Context, planning *structs.Planning, prodID int64, task *structs.Task, totals *upstream.PropagationTotals) error {
	current, err := p.ops.ProductionStart(ctx, prodID)
	if err != nil {
		return err
	}
	if delta := task.StartDate.Sub(current); delta != 0 {
		if err := p.ops.ShiftProductionStart(ctx, prodID, delta); err != nil {
			return err
		}
		totals.ProductionsShifted++
	}
	if planning.Type == structs.PlanningTypeWorkcenter {
		if err := p.ops.AssignWorkOrder(ctx, prodID, task.RowID, task.DurationHours); err != nil {
			return err
		}
	}
	return nil
}

// OperationStarts recomputes the operation lines of every work order that
// carries at least one planned task. The first carrying line anchors on its
// task's start; each later line starts at the previous end advanced by the
// transition time, minus the overlap share of the previous line's actual
// duration.
func (p *Propagator) OperationStarts(ctx context.Context) (*upstream.PropagationTotals, error) {
	defer metrics.MeasureSince([]string{"mecaplan", "propagate", "operation_starts"}, time.Now())

	p.sess.RLock()
	planning := p.sess.Planning()
	tasks, err := p.sess.Store().Tasks()
	p.sess.RUnlock()
	if err != nil {
		return nil, err
	}

	byLine := make(map[int64]*structs.Task)
	orders := make(map[int64]bool)
	for _, task := range tasks {
		if task.WorkOrderID == 0 || task.OperationLineID == 0 {
			continue
		}
		byLine[task.OperationLineID] = task
		orders[task.WorkOrderID] = true
	}

	orderIDs := make([]int64, 0, len(orders))
	for id := range orders {
		orderIDs = append(orderIDs, id)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	totals := &upstream.PropagationTotals{}
	for _, woID := range orderIDs {
		if err := p.recomputeOrder(ctx, planning, woID, byLine, totals); err != nil {
			p.logger.Warn("work order propagation failed", "work_order_id", woID, "error", err)
			totals.LinesSkipped++
		}
	}
	return totals, nil
}

// recomputeOrder walks one work order's lines in sequence order. Errors on a
// single line are swallowed; the walk continues from the line's stored dates.
func (p *Propagator) recomputeOrder(ctx context.Context, planning *structs.Planning, woID int64, byLine map[int64]*structs.Task, totals *upstream.PropagationTotals) error {
	lines, err := p.ops.LinesForWorkOrder(ctx, woID)
	if err != nil {
		return err
	}

	first := -1
	for i, line := range lines {
		if byLine[line.ID] != nil {
			first = i
			break
		}
	}
	if first < 0 {
		return nil
	}

	var prev *upstream.OperationLine
	prevStart, prevEnd := time.Time{}, time.Time{}

	for i := first; i < len(lines); i++ {
		line := lines[i]
		task := byLine[line.ID]

		var start time.Time
		if prev == nil {
			start = task.StartDate
		} else {
			start = prevEnd
			if prev.PostTransitionHours > 0 {
				advanced, err := p.ops.AdvanceWorkingHours(ctx, line.WorkcenterID, start, prev.PostTransitionHours)
				if err != nil {
					p.skipLine(line, err, totals)
					prev, prevStart, prevEnd = line, line.Start, line.End
					continue
				}
				start = advanced
			}
			// Overlap is raw wall-clock subtraction against the previous
			// line's actual duration, not calendar-aware.
			if line.OverlapPct > 0 {
				actual := prevEnd.Sub(prevStart).Hours()
				overlap := actual * line.OverlapPct / 100
				start = start.Add(-time.Duration(overlap * float64(time.Hour)))
			}
		}

		end, err := p.ops.EarliestEnd(ctx, line.WorkcenterID, line.RemainingHours, start)
		if err != nil {
			p.skipLine(line, err, totals)
			prev, prevStart, prevEnd = line, line.Start, line.End
			continue
		}

		unitDuration := line.UnitDuration
		employeeID := line.EmployeeID
		if task != nil {
			unitDuration = task.DurationHours
			if planning.Type == structs.PlanningTypeOperator {
				employeeID = task.RowID
			}
		}

		if err := p.ops.UpdateLine(ctx, line.ID, start, end, unitDuration, employeeID); err != nil {
			p.skipLine(line, err, totals)
			prev, prevStart, prevEnd = line, line.Start, line.End
			continue
		}

		totals.OperationsRecomputed++
		if employeeID != line.EmployeeID {
			totals.EmployeesAssigned++
		}
		if unitDuration != line.UnitDuration {
			totals.DurationsUpdated++
		}
		prev, prevStart, prevEnd = line, start, end
	}
	return nil
}

func (p *Propagator) skipLine(line *upstream.OperationLine, err error, totals *upstream.PropagationTotals) {
	p.logger.Warn("operation line skipped", "line_id", line.ID,
		"work_order_id", line.WorkOrderID, "error", err)
	totals.LinesSkipped++
	metrics.IncrCounter([]string{"mecaplan", "propagate", "line_skipped"}, 1)
}
