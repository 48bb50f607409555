// Package inmem is an upstream store backed by seeded in-process data. It
// serves dev mode and tests that need a full store without a database.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

var _ upstream.Store = (*Store)(nil)

// Store holds one seeded planning and the work-order entities behind it.
type Store struct {
	mu sync.Mutex

	plannings map[int64]*structs.Planning
	rows      map[int64][]*structs.Row
	affairs   map[int64][]*structs.Affair
	closures  map[int64][]*structs.Closure
	tasks     map[int64][]*structs.Task

	productions map[int64]time.Time
	lines       map[int64][]*upstream.OperationLine

	logger hclog.Logger
}

// New returns an empty store.
func New(logger hclog.Logger) *Store {
	return &Store{
		plannings:   make(map[int64]*structs.Planning),
		rows:        make(map[int64][]*structs.Row),
		affairs:     make(map[int64][]*structs.Affair),
		closures:    make(map[int64][]*structs.Closure),
		tasks:       make(map[int64][]*structs.Task),
		productions: make(map[int64]time.Time),
		lines:       make(map[int64][]*upstream.OperationLine),
		logger:      logger.Named("inmem"),
	}
}

// NewSeeded returns a store preloaded with the demo workshop planning:
// ten operators, eight affairs and a collision-free task layout starting
// at start.
func NewSeeded(logger hclog.Logger, start time.Time) *Store {
	s := New(logger)
	s.seed(start)
	return s
}

func (s *Store) seed(start time.Time) {
	planning := &structs.Planning{
		ID:   1,
		Name: "Atelier",
		Type: structs.PlanningTypeOperator,
	}
	s.plannings[1] = planning

	names := []string{
		"Jean Dupont", "Marie Martin", "Pierre Durand", "Sophie Lambert",
		"Antoine Moreau", "Claire Rousseau", "Lucas Bernard", "Emma Lefevre",
		"Thomas Dubois", "Julie Garnier",
	}
	for i, name := range names {
		s.rows[1] = append(s.rows[1], &structs.Row{ID: int64(i + 1), Name: name, Rank: i})
	}

	affairs := []struct {
		name, color string
	}{
		{"Projet Alpha", "#FF6B6B"}, {"Projet Beta", "#4ECDC4"},
		{"Projet Gamma", "#45B7D1"}, {"Projet Delta", "#96CEB4"},
		{"Projet Epsilon", "#FFEAA7"}, {"Projet Zeta", "#DDA0DD"},
		{"Projet Eta", "#FFB347"}, {"Projet Theta", "#98D8C8"},
	}
	for i, a := range affairs {
		s.affairs[1] = append(s.affairs[1], &structs.Affair{
			ID: int64(i + 1), Name: a.name, Color: a.color,
		})
	}

	day := func(d int, pm bool) time.Time {
		hour := 8
		if pm {
			hour = 14
		}
		return start.AddDate(0, 0, d).Add(time.Duration(hour) * time.Hour)
	}

	seedTasks := []struct {
		row, affair int64
		start       time.Time
		hours       float64
		name        string
	}{
		{1, 1, day(0, false), 21, "Analyse Alpha"},
		{1, 2, day(4, false), 14, "Dev Beta"},
		{2, 3, day(1, false), 17.5, "Tests Gamma"},
		{2, 4, day(5, false), 21, "Review Delta"},
		{3, 5, day(2, false), 10.5, "Config Epsilon"},
		{3, 1, day(4, true), 14, "Deploiement Alpha"},
		{4, 6, day(0, true), 17.5, "Etude Zeta"},
		{5, 7, day(3, false), 10.5, "Prototype Eta"},
		{6, 8, day(6, false), 14, "Usinage Theta"},
		{7, 2, day(2, true), 7, "Controle Beta"},
	}
	for _, st := range seedTasks {
		id, _ := uuid.GenerateUUID()
		s.tasks[1] = append(s.tasks[1], &structs.Task{
			ID:            id,
			RowID:         st.row,
			AffairID:      st.affair,
			Name:          st.name,
			StartDate:     st.start,
			DurationHours: st.hours,
		})
	}

	// Company-wide closures and one personal absence.
	s.closures[1] = []*structs.Closure{
		{ID: 1, Date: start.AddDate(0, 0, 4)},
		{ID: 2, Date: start.AddDate(0, 0, 14)},
		{ID: 3, Date: start.AddDate(0, 0, 1), RowID: 1},
	}
}

// Close implements upstream.Store. Nothing to release.
func (s *Store) Close() {}

// Plannings lists the seeded plannings with counts.
func (s *Store) Plannings(context.Context) ([]*upstream.PlanningSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*upstream.PlanningSummary
	for id, p := range s.plannings {
		out = append(out, &upstream.PlanningSummary{
			Planning:    p.Copy(),
			TaskCount:   len(s.tasks[id]),
			AffairCount: len(s.affairs[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Planning.ID < out[j].Planning.ID })
	return out, nil
}

// Load reads the full snapshot of one planning.
func (s *Store) Load(_ context.Context, planningID int64) (*upstream.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plannings[planningID]
	if !ok {
		return nil, structs.ErrUnknownPlanning
	}
	snap := &upstream.Snapshot{Planning: p.Copy()}
	for _, r := range s.rows[planningID] {
		snap.Rows = append(snap.Rows, r.Copy())
	}
	for _, a := range s.affairs[planningID] {
		snap.Affairs = append(snap.Affairs, a.Copy())
	}
	for _, c := range s.closures[planningID] {
		snap.Closures = append(snap.Closures, c.Copy())
	}
	for _, t := range s.tasks[planningID] {
		snap.Tasks = append(snap.Tasks, t.Copy())
	}
	return snap, nil
}

// LoadTasks re-reads the task set of one planning.
func (s *Store) LoadTasks(_ context.Context, planningID int64) ([]*structs.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plannings[planningID]; !ok {
		return nil, structs.ErrUnknownPlanning
	}
	var out []*structs.Task
	for _, t := range s.tasks[planningID] {
		out = append(out, t.Copy())
	}
	return out, nil
}

// LoadRows re-reads the rows of one planning.
func (s *Store) LoadRows(_ context.Context, planningID int64) ([]*structs.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plannings[planningID]; !ok {
		return nil, structs.ErrUnknownPlanning
	}
	var out []*structs.Row
	for _, r := range s.rows[planningID] {
		out = append(out, r.Copy())
	}
	return out, nil
}

// LoadAffairs re-reads the affairs of one planning.
func (s *Store) LoadAffairs(_ context.Context, planningID int64) ([]*structs.Affair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plannings[planningID]; !ok {
		return nil, structs.ErrUnknownPlanning
	}
	var out []*structs.Affair
	for _, a := range s.affairs[planningID] {
		out = append(out, a.Copy())
	}
	return out, nil
}

// PersistTasks applies a batch to the seeded task set. All rows must resolve
// or nothing is written.
func (s *Store) PersistTasks(_ context.Context, planning *structs.Planning, updates []*upstream.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.tasks[planning.ID]
	index := make(map[string]*structs.Task, len(tasks))
	for _, t := range tasks {
		index[t.ID] = t
	}
	for _, u := range updates {
		if index[u.ID] == nil {
			return structs.ErrTaskNotFound
		}
	}
	for _, u := range updates {
		t := index[u.ID]
		t.RowID = u.RowID
		t.StartDate = u.Start
		t.DurationHours = u.DurationHours
	}
	return nil
}

// SetProduction seeds a production's planned start.
func (s *Store) SetProduction(id int64, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productions[id] = start
}

// SetLines seeds the operation lines of a work order.
func (s *Store) SetLines(workOrderID int64, lines []*upstream.OperationLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[workOrderID] = lines
}

// ProductionStart reads a seeded production start.
func (s *Store) ProductionStart(_ context.Context, productionID int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, ok := s.productions[productionID]
	if !ok {
		return time.Time{}, structs.ErrUnknownPlanning
	}
	return start, nil
}

// ShiftProductionStart moves a seeded production start by delta.
func (s *Store) ShiftProductionStart(_ context.Context, productionID int64, delta time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, ok := s.productions[productionID]
	if !ok {
		return structs.ErrUnknownPlanning
	}
	s.productions[productionID] = start.Add(delta)
	return nil
}

// AssignWorkOrder is a no-op beyond validation in the seeded store.
func (s *Store) AssignWorkOrder(_ context.Context, productionID, _ int64, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productions[productionID]; !ok {
		return structs.ErrUnknownPlanning
	}
	return nil
}

// LinesForWorkOrder returns seeded lines in sequence order.
func (s *Store) LinesForWorkOrder(_ context.Context, workOrderID int64) ([]*upstream.OperationLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.lines[workOrderID]
	out := make([]*upstream.OperationLine, len(lines))
	for i, l := range lines {
		cp := *l
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence == out[j].Sequence {
			return out[i].ID < out[j].ID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// EarliestEnd uses wall-clock time: the seeded calendar never closes.
func (s *Store) EarliestEnd(_ context.Context, _ int64, durationHours float64, start time.Time) (time.Time, error) {
	return start.Add(time.Duration(durationHours * float64(time.Hour))), nil
}

// AdvanceWorkingHours uses wall-clock time.
func (s *Store) AdvanceWorkingHours(_ context.Context, _ int64, from time.Time, hours float64) (time.Time, error) {
	return from.Add(time.Duration(hours * float64(time.Hour))), nil
}

// UpdateLine writes back onto a seeded line.
func (s *Store) UpdateLine(_ context.Context, lineID int64, start, end time.Time, unitDuration float64, employeeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lines := range s.lines {
		for _, l := range lines {
			if l.ID == lineID {
				l.Start = start
				l.End = end
				l.UnitDuration = unitDuration
				l.EmployeeID = employeeID
				return nil
			}
		}
	}
	return structs.ErrTaskNotFound
}
