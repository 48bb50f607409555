package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/mecaplan/mecaplan/helper/testlog"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	start := time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC)
	return NewSeeded(testlog.HCLogger(t), start)
}

func TestSeeded_Plannings(t *testing.T) {
	s := seededStore(t)

	plannings, err := s.Plannings(context.Background())
	require.NoError(t, err)
	require.Len(t, plannings, 1)
	require.Equal(t, "Atelier", plannings[0].Planning.Name)
	require.Equal(t, structs.PlanningTypeOperator, plannings[0].Planning.Type)
	require.Equal(t, 10, plannings[0].TaskCount)
	require.Equal(t, 8, plannings[0].AffairCount)
}

func TestSeeded_Load(t *testing.T) {
	s := seededStore(t)

	snap, err := s.Load(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 10)
	require.Len(t, snap.Affairs, 8)
	require.Len(t, snap.Tasks, 10)
	require.Len(t, snap.Closures, 3)

	// Rows come back in display order.
	require.Equal(t, "Jean Dupont", snap.Rows[0].Name)
	require.Equal(t, 0, snap.Rows[0].Rank)

	_, err = s.Load(context.Background(), 99)
	require.ErrorIs(t, err, structs.ErrUnknownPlanning)
}

func TestSeeded_LoadReturnsCopies(t *testing.T) {
	s := seededStore(t)

	first, err := s.Load(context.Background(), 1)
	require.NoError(t, err)
	first.Tasks[0].Name = "mutated"
	first.Rows[0].Name = "mutated"

	second, err := s.Load(context.Background(), 1)
	require.NoError(t, err)
	require.NotEqual(t, "mutated", second.Tasks[0].Name)
	require.NotEqual(t, "mutated", second.Rows[0].Name)
}

func TestPersistTasks_AppliesBatch(t *testing.T) {
	s := seededStore(t)
	snap, err := s.Load(context.Background(), 1)
	require.NoError(t, err)

	task := snap.Tasks[0]
	newStart := task.StartDate.AddDate(0, 0, 3)
	err = s.PersistTasks(context.Background(), snap.Planning, []*upstream.TaskUpdate{
		{ID: task.ID, RowID: 9, Start: newStart, DurationHours: 7},
	})
	require.NoError(t, err)

	tasks, err := s.LoadTasks(context.Background(), 1)
	require.NoError(t, err)
	for _, got := range tasks {
		if got.ID == task.ID {
			require.Equal(t, int64(9), got.RowID)
			require.Equal(t, newStart, got.StartDate)
			require.Equal(t, 7.0, got.DurationHours)
			return
		}
	}
	t.Fatal("persisted task not found")
}

func TestPersistTasks_UnknownTaskRejectsBatch(t *testing.T) {
	s := seededStore(t)
	snap, err := s.Load(context.Background(), 1)
	require.NoError(t, err)

	task := snap.Tasks[0]
	err = s.PersistTasks(context.Background(), snap.Planning, []*upstream.TaskUpdate{
		{ID: task.ID, RowID: 9, Start: task.StartDate.AddDate(0, 0, 3), DurationHours: 7},
		{ID: "ghost", RowID: 1, Start: task.StartDate, DurationHours: 7},
	})
	require.ErrorIs(t, err, structs.ErrTaskNotFound)

	// The valid row of the batch must not have been applied.
	tasks, err := s.LoadTasks(context.Background(), 1)
	require.NoError(t, err)
	for _, got := range tasks {
		if got.ID == task.ID {
			require.Equal(t, task.RowID, got.RowID)
			require.Equal(t, task.StartDate, got.StartDate)
		}
	}
}

func TestOperations_ProductionLifecycle(t *testing.T) {
	s := seededStore(t)
	start := time.Date(2025, 8, 11, 8, 0, 0, 0, time.UTC)
	s.SetProduction(7, start)

	got, err := s.ProductionStart(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, start, got)

	require.NoError(t, s.ShiftProductionStart(context.Background(), 7, 48*time.Hour))
	got, err = s.ProductionStart(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, start.Add(48*time.Hour), got)

	_, err = s.ProductionStart(context.Background(), 99)
	require.Error(t, err)
}

func TestOperations_LinesSortedAndUpdatable(t *testing.T) {
	s := seededStore(t)
	s.SetLines(10, []*upstream.OperationLine{
		{ID: 102, WorkOrderID: 10, Sequence: 20},
		{ID: 101, WorkOrderID: 10, Sequence: 10},
		{ID: 103, WorkOrderID: 10, Sequence: 20},
	})

	lines, err := s.LinesForWorkOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []int64{101, 102, 103}, []int64{lines[0].ID, lines[1].ID, lines[2].ID})

	start := time.Date(2025, 8, 11, 8, 0, 0, 0, time.UTC)
	end := start.Add(7 * time.Hour)
	require.NoError(t, s.UpdateLine(context.Background(), 102, start, end, 7, 4))

	lines, err = s.LinesForWorkOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, start, lines[1].Start)
	require.Equal(t, end, lines[1].End)
	require.Equal(t, 7.0, lines[1].UnitDuration)
	require.Equal(t, int64(4), lines[1].EmployeeID)
}
