package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

// Config carries the caps and horizon parameters of the edit coordinator.
type Config struct {
	// ChainCap bounds keyboard push chains.
	ChainCap int

	// SweepCap bounds the row sweep restart loop.
	SweepCap int

	// MinHorizon and HorizonMargin parameterize the horizon computation.
	MinHorizon    int
	HorizonMargin int
}

// DefaultConfig returns the stock caps.
func DefaultConfig() Config {
	return Config{
		ChainCap:      20,
		SweepCap:      50,
		MinHorizon:    60,
		HorizonMargin: 14,
	}
}

// Coordinator validates edit requests, runs the collision engine over
// working copies, persists the affected row in one upstream transaction and
// only then commits the copies to the store. A persistence failure therefore
// leaves the store untouched. All four operations hold the session's
// exclusive lock from validation through commit.
type Coordinator struct {
	sess   *state.Session
	writer upstream.TaskWriter
	cfg    Config
	logger hclog.Logger
}

// NewCoordinator builds a coordinator for one planning session.
func NewCoordinator(logger hclog.Logger, sess *state.Session, writer upstream.TaskWriter, cfg Config) *Coordinator {
	return &Coordinator{
		sess:   sess,
		writer: writer,
		cfg:    cfg,
		logger: logger.Named("coordinator"),
	}
}

// horizon computes the current planning horizon, substituting the working
// copy of the task being edited so a resize or move that extends the plan is
// measured against its own result.
func (c *Coordinator) horizon(edited *structs.Task) (int, error) {
	tasks, err := c.sess.Store().Tasks()
	if err != nil {
		return 0, err
	}
	if edited != nil {
		for i, t := range tasks {
			if t.ID == edited.ID {
				tasks[i] = edited
			}
		}
	}
	cal := c.sess.Calendar()
	return cal.Horizon(c.sess.Planning().EndDate, tasks, c.cfg.MinHorizon, c.cfg.HorizonMargin), nil
}

// rowCells fetches the working copies of a row's tasks, excluding one id.
func (c *Coordinator) rowCells(rowID int64, exclID string) ([]*cell, error) {
	tasks, err := c.sess.Store().TasksByRow(rowID)
	if err != nil {
		return nil, err
	}
	return newCells(c.sess.Calendar(), tasks, exclID), nil
}

// commit persists the given cells in one upstream transaction and, on
// success, writes them back to the store. The slot coordinates of each cell
// are folded into its task copy first.
func (c *Coordinator) commit(ctx context.Context, cells []*cell) error {
	cal := c.sess.Calendar()

	updates := make([]*upstream.TaskUpdate, 0, len(cells))
	tasks := make([]*structs.Task, 0, len(cells))
	for _, cl := range cells {
		cl.task.StartDate = cal.InstantOf(cl.start)
		updates = append(updates, &upstream.TaskUpdate{
			ID:            cl.task.ID,
			RowID:         cl.task.RowID,
			Start:         cl.task.StartDate,
			DurationHours: cl.task.DurationHours,
		})
		tasks = append(tasks, cl.task)
	}

	if err := c.writer.PersistTasks(ctx, c.sess.Planning(), updates); err != nil {
		metrics.IncrCounter([]string{"mecaplan", "edit", "persist_failed"}, 1)
		return fmt.Errorf("persist failed: %w", err)
	}
	return c.sess.Store().UpsertTasks(tasks)
}

// Move places a task on a row at a start slot, pushing colliding tasks
// right. The whole new row is persisted in one batch.
func (c *Coordinator) Move(ctx context.Context, req *structs.TaskMoveRequest) *structs.EditResult {
	defer metrics.MeasureSince([]string{"mecaplan", "edit", "move"}, time.Now())
	c.sess.Lock()
	defer c.sess.Unlock()

	t, err := c.sess.Store().TaskByID(req.TaskID)
	if err != nil {
		return structs.Errorf(err)
	}
	if t == nil {
		return structs.Errorf(structs.ErrTaskNotFound)
	}
	if row, err := c.sess.Store().RowByID(req.RowID); err != nil {
		return structs.Errorf(err)
	} else if row == nil {
		return structs.Errorf(structs.ErrRowNotFound)
	}

	cal := c.sess.Calendar()
	prevRow := t.RowID
	prevSlot := cal.SlotOf(t.StartDate)
	dur := cal.HoursToSlots(t.DurationHours)

	work := t.Copy()
	work.RowID = req.RowID
	work.StartDate = cal.InstantOf(req.StartSlot)
	horizon, err := c.horizon(work)
	if err != nil {
		return structs.Errorf(err)
	}
	if req.StartSlot < 0 || req.StartSlot+dur > horizon {
		metrics.IncrCounter([]string{"mecaplan", "edit", "no_space"}, 1)
		return structs.Errorf(structs.ErrNoSpace)
	}

	cells, err := c.rowCells(req.RowID, t.ID)
	if err != nil {
		return structs.Errorf(err)
	}
	if !pushRight(cells, req.StartSlot, dur, horizon) {
		metrics.IncrCounter([]string{"mecaplan", "edit", "no_space"}, 1)
		return structs.Errorf(structs.ErrNoSpace)
	}

	main := &cell{task: work, start: req.StartSlot, dur: dur}

	// A row change can leave residual overlaps the cascade never saw;
	// sweep them out before persisting.
	if prevRow != req.RowID {
		if firstCollision(cells, req.StartSlot, dur, nil) != nil {
			sweep(append(cells, main), horizon, c.cfg.SweepCap)
		}
	}

	if err := c.commit(ctx, append(cells, main)); err != nil {
		c.logger.Error("move not committed", "task_id", req.TaskID, "error", err)
		return structs.Errorf(err)
	}

	c.logger.Debug("task moved", "task_id", req.TaskID,
		"row", req.RowID, "slot", main.start, "prev_row", prevRow, "prev_slot", prevSlot)
	return &structs.EditResult{
		Success:      true,
		TaskID:       t.ID,
		PrevRowID:    prevRow,
		NewRowID:     req.RowID,
		PrevSlot:     prevSlot,
		NewSlot:      main.start,
		PrevDuration: dur,
		NewDuration:  dur,
	}
}

// Resize sets a task duration in slots, sweeping out any overlap the growth
// created. The row is persisted in one batch.
func (c *Coordinator) Resize(ctx context.Context, req *structs.TaskResizeRequest) *structs.EditResult {
	defer metrics.MeasureSince([]string{"mecaplan", "edit", "resize"}, time.Now())
	c.sess.Lock()
	defer c.sess.Unlock()

	if req.Duration < 1 {
		return &structs.EditResult{Success: false, Error: "duration must be at least one slot"}
	}

	t, err := c.sess.Store().TaskByID(req.TaskID)
	if err != nil {
		return structs.Errorf(err)
	}
	if t == nil {
		return structs.Errorf(structs.ErrTaskNotFound)
	}

	cal := c.sess.Calendar()
	start := cal.SlotOf(t.StartDate)
	prevDur := cal.HoursToSlots(t.DurationHours)

	work := t.Copy()
	work.DurationHours = cal.SlotsToHours(req.Duration)
	horizon, err := c.horizon(work)
	if err != nil {
		return structs.Errorf(err)
	}

	cells, err := c.rowCells(t.RowID, t.ID)
	if err != nil {
		return structs.Errorf(err)
	}
	main := &cell{task: work, start: start, dur: req.Duration}
	if firstCollision(cells, start, req.Duration, nil) != nil {
		sweep(append(cells, main), horizon, c.cfg.SweepCap)
	}

	if err := c.commit(ctx, append(cells, main)); err != nil {
		c.logger.Error("resize not committed", "task_id", req.TaskID, "error", err)
		return structs.Errorf(err)
	}

	c.logger.Debug("task resized", "task_id", req.TaskID,
		"duration", req.Duration, "prev_duration", prevDur)
	return &structs.EditResult{
		Success:      true,
		TaskID:       t.ID,
		PrevRowID:    t.RowID,
		NewRowID:     t.RowID,
		PrevSlot:     start,
		NewSlot:      main.start,
		PrevDuration: prevDur,
		NewDuration:  req.Duration,
	}
}

// ResizeAndMove is the combined left-handle edit: row, start slot and
// duration change together. Both the new and the old row are swept; the new
// row is persisted in one batch.
func (c *Coordinator) ResizeAndMove(ctx context.Context, req *structs.TaskResizeMoveRequest) *structs.EditResult {
	defer metrics.MeasureSince([]string{"mecaplan", "edit", "resize_and_move"}, time.Now())
	c.sess.Lock()
	defer c.sess.Unlock()

	if req.Duration < 1 {
		return &structs.EditResult{Success: false, Error: "duration must be at least one slot"}
	}
	if req.StartSlot < 0 {
		return &structs.EditResult{Success: false, Error: "start slot must not be negative"}
	}

	t, err := c.sess.Store().TaskByID(req.TaskID)
	if err != nil {
		return structs.Errorf(err)
	}
	if t == nil {
		return structs.Errorf(structs.ErrTaskNotFound)
	}
	if row, err := c.sess.Store().RowByID(req.RowID); err != nil {
		return structs.Errorf(err)
	} else if row == nil {
		return structs.Errorf(structs.ErrRowNotFound)
	}

	cal := c.sess.Calendar()
	prevRow := t.RowID
	prevSlot := cal.SlotOf(t.StartDate)
	prevDur := cal.HoursToSlots(t.DurationHours)

	work := t.Copy()
	work.RowID = req.RowID
	work.StartDate = cal.InstantOf(req.StartSlot)
	work.DurationHours = cal.SlotsToHours(req.Duration)
	horizon, err := c.horizon(work)
	if err != nil {
		return structs.Errorf(err)
	}

	cells, err := c.rowCells(req.RowID, t.ID)
	if err != nil {
		return structs.Errorf(err)
	}
	main := &cell{task: work, start: req.StartSlot, dur: req.Duration}
	newRow := append(cells, main)
	sweep(newRow, horizon, c.cfg.SweepCap)

	if prevRow != req.RowID {
		oldCells, err := c.rowCells(prevRow, t.ID)
		if err != nil {
			return structs.Errorf(err)
		}
		sweep(oldCells, horizon, c.cfg.SweepCap)

		// Old-row sweep results are committed in memory only; the
		// upstream batch covers the new row.
		if err := c.commit(ctx, newRow); err != nil {
			c.logger.Error("resize-and-move not committed", "task_id", req.TaskID, "error", err)
			return structs.Errorf(err)
		}
		cal := c.sess.Calendar()
		oldTasks := make([]*structs.Task, 0, len(oldCells))
		for _, cl := range oldCells {
			cl.task.StartDate = cal.InstantOf(cl.start)
			oldTasks = append(oldTasks, cl.task)
		}
		if err := c.sess.Store().UpsertTasks(oldTasks); err != nil {
			return structs.Errorf(err)
		}
	} else if err := c.commit(ctx, newRow); err != nil {
		c.logger.Error("resize-and-move not committed", "task_id", req.TaskID, "error", err)
		return structs.Errorf(err)
	}

	c.logger.Debug("task resized and moved", "task_id", req.TaskID,
		"row", req.RowID, "slot", main.start, "duration", main.dur)
	return &structs.EditResult{
		Success:      true,
		TaskID:       t.ID,
		PrevRowID:    prevRow,
		NewRowID:     req.RowID,
		PrevSlot:     prevSlot,
		NewSlot:      main.start,
		PrevDuration: prevDur,
		NewDuration:  main.dur,
	}
}

// KeyboardNudge moves a task one slot left or right, or one row up or down.
// Horizontal nudges push a colliding chain in the same direction; a chain
// that cannot move reports blocked without touching anything.
func (c *Coordinator) KeyboardNudge(ctx context.Context, req *structs.KeyboardMoveRequest) *structs.EditResult {
	defer metrics.MeasureSince([]string{"mecaplan", "edit", "nudge"}, time.Now())
	c.sess.Lock()
	defer c.sess.Unlock()

	if !req.Direction.Valid() {
		return structs.Errorf(structs.ErrInvalidDirection)
	}

	t, err := c.sess.Store().TaskByID(req.TaskID)
	if err != nil {
		return structs.Errorf(err)
	}
	if t == nil {
		return structs.Errorf(structs.ErrTaskNotFound)
	}

	if req.Direction.Horizontal() {
		return c.nudgeHorizontal(ctx, t, req.Direction)
	}
	return c.nudgeVertical(ctx, t, req.Direction)
}

func (c *Coordinator) nudgeHorizontal(ctx context.Context, t *structs.Task, dir structs.Direction) *structs.EditResult {
	cal := c.sess.Calendar()
	s := cal.SlotOf(t.StartDate)
	dur := cal.HoursToSlots(t.DurationHours)

	horizon, err := c.horizon(nil)
	if err != nil {
		return structs.Errorf(err)
	}

	var candidate int
	if dir == structs.DirectionLeft {
		candidate = s - 1
		if candidate < 0 {
			candidate = 0
		}
	} else {
		candidate = s + 1
		if max := horizon - dur; candidate > max {
			candidate = max
		}
	}
	if candidate == s {
		// Clamped at the edge; nothing moves.
		return &structs.EditResult{
			Success: true, TaskID: t.ID,
			PrevRowID: t.RowID, NewRowID: t.RowID,
			PrevSlot: s, NewSlot: s,
			PrevDuration: dur, NewDuration: dur,
		}
	}

	cells, err := c.rowCells(t.RowID, t.ID)
	if err != nil {
		return structs.Errorf(err)
	}

	if hit := firstCollision(cells, candidate, dur, nil); hit != nil {
		boundary := candidate
		if dir == structs.DirectionRight {
			boundary = candidate + dur
		}
		if !chainPush(cells, hit, dir, boundary, horizon, c.cfg.ChainCap) {
			metrics.IncrCounter([]string{"mecaplan", "edit", "blocked"}, 1)
			return &structs.EditResult{
				Success: true, Blocked: true, TaskID: t.ID,
				PrevRowID: t.RowID, NewRowID: t.RowID,
				PrevSlot: s, NewSlot: s,
				PrevDuration: dur, NewDuration: dur,
			}
		}
	}

	work := t.Copy()
	main := &cell{task: work, start: candidate, dur: dur}
	if err := c.commit(ctx, append(cells, main)); err != nil {
		c.logger.Error("nudge not committed", "task_id", t.ID, "error", err)
		return structs.Errorf(err)
	}

	return &structs.EditResult{
		Success: true, TaskID: t.ID,
		PrevRowID: t.RowID, NewRowID: t.RowID,
		PrevSlot: s, NewSlot: candidate,
		PrevDuration: dur, NewDuration: dur,
	}
}

func (c *Coordinator) nudgeVertical(ctx context.Context, t *structs.Task, dir structs.Direction) *structs.EditResult {
	cal := c.sess.Calendar()
	s := cal.SlotOf(t.StartDate)
	dur := cal.HoursToSlots(t.DurationHours)

	rows, err := c.sess.Store().Rows()
	if err != nil {
		return structs.Errorf(err)
	}
	idx := -1
	for i, row := range rows {
		if row.ID == t.RowID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return structs.Errorf(structs.ErrRowNotFound)
	}

	if dir == structs.DirectionUp {
		idx--
	} else {
		idx++
	}
	if idx < 0 || idx >= len(rows) {
		// No adjacent row; stay put.
		return &structs.EditResult{
			Success: true, TaskID: t.ID,
			PrevRowID: t.RowID, NewRowID: t.RowID,
			PrevSlot: s, NewSlot: s,
			PrevDuration: dur, NewDuration: dur,
		}
	}
	target := rows[idx].ID

	horizon, err := c.horizon(nil)
	if err != nil {
		return structs.Errorf(err)
	}
	cells, err := c.rowCells(target, t.ID)
	if err != nil {
		return structs.Errorf(err)
	}
	if !pushRight(cells, s, dur, horizon) {
		metrics.IncrCounter([]string{"mecaplan", "edit", "no_space"}, 1)
		return structs.Errorf(structs.ErrNoSpace)
	}

	work := t.Copy()
	work.RowID = target
	main := &cell{task: work, start: s, dur: dur}
	if err := c.commit(ctx, append(cells, main)); err != nil {
		c.logger.Error("nudge not committed", "task_id", t.ID, "error", err)
		return structs.Errorf(err)
	}

	return &structs.EditResult{
		Success: true, TaskID: t.ID,
		PrevRowID: t.RowID, NewRowID: target,
		PrevSlot: s, NewSlot: s,
		PrevDuration: dur, NewDuration: dur,
	}
}
