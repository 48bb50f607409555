package state

import (
	"testing"
	"time"

	"github.com/mecaplan/mecaplan/helper/testlog"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/shoenig/test/must"
)

func testStateStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := NewStateStore(testlog.HCLogger(t))
	must.NoError(t, err)
	return store
}

func mkTask(id string, rowID int64, start time.Time, hours float64) *structs.Task {
	return &structs.Task{
		ID:            id,
		RowID:         rowID,
		Name:          "task-" + id,
		StartDate:     start,
		DurationHours: hours,
	}
}

func TestStateStore_TaskByID(t *testing.T) {
	store := testStateStore(t)
	start := time.Date(2025, 8, 11, 8, 0, 0, 0, time.UTC)

	must.NoError(t, store.UpsertTasks([]*structs.Task{mkTask("a", 1, start, 7)}))

	out, err := store.TaskByID("a")
	must.NoError(t, err)
	must.NotNil(t, out)
	must.Eq(t, "a", out.ID)

	// Mutating the returned copy must not leak into the store.
	out.RowID = 99
	again, err := store.TaskByID("a")
	must.NoError(t, err)
	must.Eq(t, int64(1), again.RowID)

	missing, err := store.TaskByID("nope")
	must.NoError(t, err)
	must.Nil(t, missing)
}

func TestStateStore_TasksByRow_Order(t *testing.T) {
	store := testStateStore(t)
	day := time.Date(2025, 8, 11, 8, 0, 0, 0, time.UTC)

	must.NoError(t, store.UpsertTasks([]*structs.Task{
		mkTask("c", 1, day.AddDate(0, 0, 3), 7),
		mkTask("a", 1, day, 7),
		mkTask("b", 1, day.AddDate(0, 0, 1), 7),
		mkTask("z", 1, day, 7), // same start as "a", id breaks the tie
		mkTask("x", 2, day, 7), // other row
	}))

	out, err := store.TasksByRow(1)
	must.NoError(t, err)
	must.Len(t, 4, out)
	must.Eq(t, []string{"a", "z", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
}

func TestStateStore_ReplaceTasks(t *testing.T) {
	store := testStateStore(t)
	day := time.Date(2025, 8, 11, 8, 0, 0, 0, time.UTC)

	must.NoError(t, store.UpsertTasks([]*structs.Task{
		mkTask("a", 1, day, 7),
		mkTask("b", 2, day, 7),
	}))
	must.NoError(t, store.ReplaceTasks([]*structs.Task{
		mkTask("c", 1, day, 7),
	}))

	all, err := store.Tasks()
	must.NoError(t, err)
	must.Len(t, 1, all)
	must.Eq(t, "c", all[0].ID)

	gone, err := store.TaskByID("a")
	must.NoError(t, err)
	must.Nil(t, gone)
}

func TestStateStore_RowsDisplayOrder(t *testing.T) {
	store := testStateStore(t)

	// Loader order wins regardless of id order.
	must.NoError(t, store.ReplaceRows([]*structs.Row{
		{ID: 7, Name: "Moreau"},
		{ID: 2, Name: "Dupont"},
		{ID: 9, Name: "Lambert"},
	}))

	rows, err := store.Rows()
	must.NoError(t, err)
	must.Len(t, 3, rows)
	must.Eq(t, int64(7), rows[0].ID)
	must.Eq(t, int64(2), rows[1].ID)
	must.Eq(t, int64(9), rows[2].ID)
	must.Eq(t, 0, rows[0].Rank)
	must.Eq(t, 2, rows[2].Rank)
}
