package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/mecaplan/mecaplan/helper/testlog"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
	"github.com/shoenig/test/must"
)

// fakeWriter records persisted batches and can be told to fail.
type fakeWriter struct {
	batches [][]*upstream.TaskUpdate
	err     error
}

func (w *fakeWriter) PersistTasks(_ context.Context, _ *structs.Planning, updates []*upstream.TaskUpdate) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, updates)
	return nil
}

func testCoordinator(t *testing.T) (*Coordinator, *state.Session, *fakeWriter) {
	t.Helper()

	logger := testlog.HCLogger(t)
	planning := &structs.Planning{ID: 1, Name: "atelier", Type: structs.PlanningTypeOperator}
	sess, err := state.NewSession(logger, planning, testCalendar())
	must.NoError(t, err)

	must.NoError(t, sess.Store().ReplaceRows([]*structs.Row{
		{ID: 1, Name: "Dupont"},
		{ID: 2, Name: "Martin"},
		{ID: 3, Name: "Durand"},
	}))

	writer := &fakeWriter{}
	return NewCoordinator(logger, sess, writer, DefaultConfig()), sess, writer
}

// seedTask inserts a slot-aligned task directly into the store.
func seedTask(t *testing.T, sess *state.Session, id string, rowID int64, slot, durSlots int) {
	t.Helper()
	cal := sess.Calendar()
	must.NoError(t, sess.Store().UpsertTasks([]*structs.Task{{
		ID:            id,
		RowID:         rowID,
		Name:          "task-" + id,
		StartDate:     cal.InstantOf(slot),
		DurationHours: cal.SlotsToHours(durSlots),
	}}))
}

// taskPos reads back (row, startSlot, durSlots) for assertions.
func taskPos(t *testing.T, sess *state.Session, id string) (int64, int, int) {
	t.Helper()
	task, err := sess.Store().TaskByID(id)
	must.NoError(t, err)
	must.NotNil(t, task)
	cal := sess.Calendar()
	return task.RowID, cal.SlotOf(task.StartDate), cal.HoursToSlots(task.DurationHours)
}

func snapshotTasks(t *testing.T, sess *state.Session) map[string]structs.Task {
	t.Helper()
	tasks, err := sess.Store().Tasks()
	must.NoError(t, err)
	out := make(map[string]structs.Task, len(tasks))
	for _, task := range tasks {
		out[task.ID] = *task
	}
	return out
}

// Scenario: moving A onto B pushes B right with a clean cascade.
func TestCoordinator_Move_CleanCascade(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 6)
	seedTask(t, sess, "B", 1, 8, 4)

	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "A", RowID: 1, StartSlot: 6})
	must.True(t, res.Success)
	must.Eq(t, 0, res.PrevSlot)
	must.Eq(t, 6, res.NewSlot)

	_, aSlot, aDur := taskPos(t, sess, "A")
	must.Eq(t, 6, aSlot)
	must.Eq(t, 6, aDur)
	_, bSlot, bDur := taskPos(t, sess, "B")
	must.Eq(t, 12, bSlot)
	must.Eq(t, 4, bDur)

	// The whole row went out in one batch.
	must.Len(t, 1, writer.batches)
	must.Len(t, 2, writer.batches[0])
}

// Scenario: a row packed to the horizon rejects the move and changes nothing.
func TestCoordinator_Move_NotEnoughSpace(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	for i := 0; i < 15; i++ {
		seedTask(t, sess, string(rune('a'+i)), 1, i*4, 4)
	}
	// 16 slots cannot fit: the cascade would need [16, 76) but the
	// horizon tops out at 74.
	seedTask(t, sess, "big", 2, 0, 16)

	before := snapshotTasks(t, sess)
	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "big", RowID: 1, StartSlot: 0})
	must.False(t, res.Success)
	must.Eq(t, "not enough space", res.Error)
	must.Eq(t, before, snapshotTasks(t, sess))
}

func TestCoordinator_Move_TaskNotFound(t *testing.T) {
	coord, _, _ := testCoordinator(t)

	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "ghost", RowID: 1, StartSlot: 0})
	must.False(t, res.Success)
	must.Eq(t, "task not found", res.Error)
}

func TestCoordinator_Move_RowNotFound(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)

	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "A", RowID: 42, StartSlot: 0})
	must.False(t, res.Success)
	must.Eq(t, "row not found", res.Error)
}

// Persistence failure rolls the edit back: the store keeps its pre-edit
// state and the error surfaces.
func TestCoordinator_Move_PersistFailure(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 6)
	seedTask(t, sess, "B", 1, 8, 4)
	writer.err = errors.New("connection reset")

	before := snapshotTasks(t, sess)
	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "A", RowID: 1, StartSlot: 6})
	must.False(t, res.Success)
	must.StrContains(t, res.Error, "connection reset")
	must.Eq(t, before, snapshotTasks(t, sess))
}

// The persisted batch equals the in-memory row after the edit.
func TestCoordinator_Move_PersistenceEquivalence(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 6)
	seedTask(t, sess, "B", 1, 8, 4)

	res := coord.Move(context.Background(), &structs.TaskMoveRequest{TaskID: "A", RowID: 1, StartSlot: 6})
	must.True(t, res.Success)

	row, err := sess.Store().TasksByRow(1)
	must.NoError(t, err)
	must.Len(t, 1, writer.batches)
	batch := map[string]*upstream.TaskUpdate{}
	for _, u := range writer.batches[0] {
		batch[u.ID] = u
	}
	must.Eq(t, len(row), len(batch))
	for _, task := range row {
		u := batch[task.ID]
		must.NotNil(t, u)
		must.Eq(t, task.RowID, u.RowID)
		must.Eq(t, task.StartDate, u.Start)
		must.Eq(t, task.DurationHours, u.DurationHours)
	}
}

// Scenario: growing A into B resolves by sweeping B right.
func TestCoordinator_Resize_SweepsOverlap(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)
	seedTask(t, sess, "B", 1, 4, 4)

	res := coord.Resize(context.Background(), &structs.TaskResizeRequest{TaskID: "A", Duration: 6})
	must.True(t, res.Success)
	must.Eq(t, 4, res.PrevDuration)
	must.Eq(t, 6, res.NewDuration)

	_, aSlot, aDur := taskPos(t, sess, "A")
	must.Eq(t, 0, aSlot)
	must.Eq(t, 6, aDur)
	_, bSlot, _ := taskPos(t, sess, "B")
	must.Eq(t, 6, bSlot)
}

func TestCoordinator_Resize_RejectsNonPositive(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)

	res := coord.Resize(context.Background(), &structs.TaskResizeRequest{TaskID: "A", Duration: 0})
	must.False(t, res.Success)

	_, _, dur := taskPos(t, sess, "A")
	must.Eq(t, 4, dur)
}

func TestCoordinator_Resize_PersistFailure(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)
	writer.err = errors.New("deadlock detected")

	before := snapshotTasks(t, sess)
	res := coord.Resize(context.Background(), &structs.TaskResizeRequest{TaskID: "A", Duration: 8})
	must.False(t, res.Success)
	must.Eq(t, before, snapshotTasks(t, sess))
}

// Scenario: combined left-resize across rows lands atomically on the empty
// row.
func TestCoordinator_ResizeAndMove_AcrossRows(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 4, 4)

	res := coord.ResizeAndMove(context.Background(), &structs.TaskResizeMoveRequest{
		TaskID: "A", RowID: 2, StartSlot: 2, Duration: 6,
	})
	must.True(t, res.Success)

	row, slot, dur := taskPos(t, sess, "A")
	must.Eq(t, int64(2), row)
	must.Eq(t, 2, slot)
	must.Eq(t, 6, dur)

	oldRow, err := sess.Store().TasksByRow(1)
	must.NoError(t, err)
	must.Len(t, 0, oldRow)

	must.Len(t, 1, writer.batches)
	must.Eq(t, "A", writer.batches[0][0].ID)
}

func TestCoordinator_ResizeAndMove_SweepsBothRows(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)
	seedTask(t, sess, "B", 2, 2, 4)

	res := coord.ResizeAndMove(context.Background(), &structs.TaskResizeMoveRequest{
		TaskID: "A", RowID: 2, StartSlot: 0, Duration: 4,
	})
	must.True(t, res.Success)

	_, aSlot, _ := taskPos(t, sess, "A")
	must.Eq(t, 0, aSlot)
	_, bSlot, _ := taskPos(t, sess, "B")
	must.Eq(t, 4, bSlot)
}

// Scenario: nudging left into an adjacent task that has room pushes it.
func TestCoordinator_Nudge_LeftWithRoom(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 10, 4)
	seedTask(t, sess, "B", 1, 4, 6)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionLeft,
	})
	must.True(t, res.Success)
	must.False(t, res.Blocked)
	must.Eq(t, 9, res.NewSlot)

	_, aSlot, _ := taskPos(t, sess, "A")
	must.Eq(t, 9, aSlot)
	_, bSlot, _ := taskPos(t, sess, "B")
	must.Eq(t, 3, bSlot)
}

// Scenario: nudging left at the edge clamps without mutating or persisting.
func TestCoordinator_Nudge_LeftEdgeClamps(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionLeft,
	})
	must.True(t, res.Success)
	must.Eq(t, 0, res.NewSlot)
	must.Len(t, 0, writer.batches)
}

// A chain that cannot move reports blocked and leaves everything in place.
func TestCoordinator_Nudge_LeftBlocked(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 4, 4)
	seedTask(t, sess, "B", 1, 0, 4)

	before := snapshotTasks(t, sess)
	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionLeft,
	})
	must.True(t, res.Success)
	must.True(t, res.Blocked)
	must.Eq(t, 4, res.NewSlot)
	must.Eq(t, before, snapshotTasks(t, sess))
	must.Len(t, 0, writer.batches)
}

func TestCoordinator_Nudge_RightPushesChain(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)
	seedTask(t, sess, "B", 1, 4, 4)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionRight,
	})
	must.True(t, res.Success)
	must.Eq(t, 1, res.NewSlot)

	_, bSlot, _ := taskPos(t, sess, "B")
	must.Eq(t, 5, bSlot)
}

func TestCoordinator_Nudge_UpAtFirstRowIsNoop(t *testing.T) {
	coord, sess, writer := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionUp,
	})
	must.True(t, res.Success)
	must.Eq(t, int64(1), res.NewRowID)
	must.Len(t, 0, writer.batches)
}

func TestCoordinator_Nudge_DownCascades(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)
	seedTask(t, sess, "B", 2, 2, 4)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: structs.DirectionDown,
	})
	must.True(t, res.Success)
	must.Eq(t, int64(2), res.NewRowID)

	row, aSlot, _ := taskPos(t, sess, "A")
	must.Eq(t, int64(2), row)
	must.Eq(t, 0, aSlot)
	_, bSlot, _ := taskPos(t, sess, "B")
	must.Eq(t, 4, bSlot)
}

func TestCoordinator_Nudge_InvalidDirection(t *testing.T) {
	coord, sess, _ := testCoordinator(t)
	seedTask(t, sess, "A", 1, 0, 4)

	res := coord.KeyboardNudge(context.Background(), &structs.KeyboardMoveRequest{
		TaskID: "A", Direction: "sideways",
	})
	must.False(t, res.Success)
	must.Eq(t, "invalid direction", res.Error)
}
