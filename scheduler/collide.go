// Package scheduler implements the collision engine and the edit
// coordinator: overlap detection on a row, cascade pushes in both
// directions, the post-hoc row sweep, and the four edit operations that
// orchestrate them against the task store and the upstream persistence port.
package scheduler

import (
	"sort"

	"github.com/mecaplan/mecaplan/calendar"
	"github.com/mecaplan/mecaplan/structs"
)

// cell is the collision engine's working view of one task: a slot interval
// plus the task copy it came from. Cascades mutate cells freely; the
// coordinator only commits them after persistence succeeds.
type cell struct {
	task  *structs.Task
	start int
	dur   int
}

func (c *cell) end() int { return c.start + c.dur }

// newCells projects task copies into slot coordinates, excluding exclID.
func newCells(cal calendar.Calendar, tasks []*structs.Task, exclID string) []*cell {
	out := make([]*cell, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == exclID {
			continue
		}
		out = append(out, &cell{
			task:  t,
			start: cal.SlotOf(t.StartDate),
			dur:   cal.HoursToSlots(t.DurationHours),
		})
	}
	sortCells(out)
	return out
}

// sortCells orders cells by ascending start, ties by task id.
func sortCells(cells []*cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].start == cells[j].start {
			return cells[i].task.ID < cells[j].task.ID
		}
		return cells[i].start < cells[j].start
	})
}

// overlaps reports whether [start, start+dur) intersects the cell.
func overlaps(c *cell, start, dur int) bool {
	return !(start+dur <= c.start || start >= c.end())
}

// firstCollision returns the first cell overlapping [start, start+dur) in
// ascending start order, skipping the ids in excl. Nil when the interval is
// free.
func firstCollision(cells []*cell, start, dur int, excl map[string]bool) *cell {
	sortCells(cells)
	for _, c := range cells {
		if excl[c.task.ID] {
			continue
		}
		if overlaps(c, start, dur) {
			return c
		}
	}
	return nil
}

// allCollisions returns every cell overlapping [start, start+dur) in
// ascending start order.
func allCollisions(cells []*cell, start, dur int) []*cell {
	sortCells(cells)
	var out []*cell
	for _, c := range cells {
		if overlaps(c, start, dur) {
			out = append(out, c)
		}
	}
	return out
}

// pushRight makes room for a placement at [start, start+dur) by pushing
// every colliding cell right, cascading onto cells the pushed ones land on.
// Cells are mutated as the cascade walks; on failure the caller must discard
// the working set, nothing is restored. Returns false when any placement
// would leave the horizon.
func pushRight(cells []*cell, start, dur, horizon int) bool {
	toPush := allCollisions(cells, start, dur)
	if len(toPush) == 0 {
		return true
	}

	inPush := make(map[string]bool, len(toPush))
	for _, c := range toPush {
		inPush[c.task.ID] = true
	}

	// First pass: pack the directly colliding cells end to end after the
	// placement, collecting any cell a new position lands on.
	var cascade []*cell
	inCascade := make(map[string]bool)
	cursor := start + dur
	for _, c := range toPush {
		if cursor+c.dur > horizon {
			return false
		}
		excl := map[string]bool{c.task.ID: true}
		if hit := firstCollision(cells, cursor, c.dur, excl); hit != nil && !inPush[hit.task.ID] && !inCascade[hit.task.ID] {
			cascade = append(cascade, hit)
			inCascade[hit.task.ID] = true
		}
		c.start = cursor
		cursor += c.dur
	}

	// Cascade passes: keep packing until no new cell is disturbed.
	for len(cascade) > 0 {
		sortCells(cascade)
		var next []*cell
		for _, c := range cascade {
			if cursor+c.dur > horizon {
				return false
			}
			excl := map[string]bool{c.task.ID: true}
			if hit := firstCollision(cells, cursor, c.dur, excl); hit != nil && !inPush[hit.task.ID] && !inCascade[hit.task.ID] {
				next = append(next, hit)
				inCascade[hit.task.ID] = true
			}
			c.start = cursor
			cursor += c.dur
			inPush[c.task.ID] = true
		}
		cascade = next
	}

	return true
}

// chainMove is one pending move of a keyboard push chain.
type chainMove struct {
	cell     *cell
	newStart int
}

// chainPush walks a chain of colliding cells away from a moving boundary:
// for left pushes each chained cell must end at the boundary, for right
// pushes it must start there. The chain is capped; exceeding the cap or the
// horizon fails without mutating anything. On success the collected moves
// are applied.
func chainPush(cells []*cell, first *cell, dir structs.Direction, boundary, horizon, limit int) bool {
	var moves []chainMove
	inChain := map[string]bool{first.task.ID: true}

	cur := first
	for i := 0; ; i++ {
		if i >= limit {
			return false
		}

		var newStart int
		if dir == structs.DirectionLeft {
			newStart = boundary - cur.dur
			if newStart < 0 {
				return false
			}
		} else {
			newStart = boundary
			if newStart+cur.dur > horizon {
				return false
			}
		}
		moves = append(moves, chainMove{cell: cur, newStart: newStart})

		next := firstCollision(cells, newStart, cur.dur, inChain)
		if next == nil {
			break
		}
		if dir == structs.DirectionLeft {
			boundary = newStart
		} else {
			boundary = newStart + cur.dur
		}
		inChain[next.task.ID] = true
		cur = next
	}

	for _, m := range moves {
		m.cell.start = m.newStart
	}
	return true
}

// sweep resolves every residual overlap on a row by walking adjacent pairs
// in start order and moving the right cell after the left one. When the
// right cell would leave the horizon the left one is moved backwards
// instead, and when that is impossible the right cell is clamped at the
// horizon. Restarts from the beginning after each change, hard-bounded at
// cap iterations.
func sweep(cells []*cell, horizon, limit int) {
	if len(cells) < 2 {
		return
	}

	for iter := 0; iter < limit; iter++ {
		sortCells(cells)

		changed := false
		for i := 0; i < len(cells)-1; i++ {
			left, right := cells[i], cells[i+1]
			if left.end() <= right.start {
				continue
			}

			needed := left.end()
			maxStart := horizon - right.dur
			switch {
			case needed <= maxStart:
				right.start = needed
			case right.start-left.dur >= 0:
				left.start = right.start - left.dur
			default:
				right.start = maxStart
			}
			changed = true
			break
		}

		if !changed {
			return
		}
	}
}
