package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mecaplan/mecaplan/upstream"
)

// ProductionStart reads the planned start of a production in display time.
func (s *Store) ProductionStart(ctx context.Context, productionID int64) (time.Time, error) {
	var start time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT date_planned_start FROM mrp_production WHERE id = $1`,
		productionID).Scan(&start)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("production %d not found", productionID)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading production %d: %w", productionID, err)
	}
	return s.toDisplay(start), nil
}

// ShiftProductionStart moves the planned start of a production by delta.
func (s *Store) ShiftProductionStart(ctx context.Context, productionID int64, delta time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mrp_production SET date_planned_start = date_planned_start + $1 WHERE id = $2`,
		delta, productionID)
	if err != nil {
		return fmt.Errorf("shifting production %d: %w", productionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("production %d not found", productionID)
	}
	return nil
}

// AssignWorkOrder pushes a workcenter and duration onto the primary work
// order of a production.
func (s *Store) AssignWorkOrder(ctx context.Context, productionID, workcenterID int64, durationHours float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE is_ordre_travail
		SET workcenter_id = $2, duree = $3
		WHERE id = (
			SELECT id FROM is_ordre_travail
			WHERE production_id = $1
			ORDER BY id
			LIMIT 1
		)`, productionID, workcenterID, durationHours)
	if err != nil {
		return fmt.Errorf("assigning work order of production %d: %w", productionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("production %d has no work order", productionID)
	}
	return nil
}

// LinesForWorkOrder returns the operation lines of a work order in sequence
// order, ties broken by line id.
func (s *Store) LinesForWorkOrder(ctx context.Context, workOrderID int64) ([]*upstream.OperationLine, error) {
	query := `
		SELECT l.id, l.ordre_id, l.sequence, l.workcenter_id, l.employe_id,
		       COALESCE(l.reste, 0), COALESCE(l.tps_apres, 0),
		       COALESCE(l.recouvrement, 0), COALESCE(l.duree_unitaire, 0),
		       l.heure_debut, l.heure_fin
		FROM is_ordre_travail_line l
		WHERE l.ordre_id = $1
		ORDER BY l.sequence, l.id`

	rows, err := s.pool.Query(ctx, query, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("loading lines of work order %d: %w", workOrderID, err)
	}
	defer rows.Close()

	var out []*upstream.OperationLine
	for rows.Next() {
		var (
			line       upstream.OperationLine
			employeeID *int64
			start, end *time.Time
		)
		if err := rows.Scan(&line.ID, &line.WorkOrderID, &line.Sequence,
			&line.WorkcenterID, &employeeID, &line.RemainingHours,
			&line.PostTransitionHours, &line.OverlapPct, &line.UnitDuration,
			&start, &end); err != nil {
			return nil, fmt.Errorf("scanning operation line: %w", err)
		}
		if employeeID != nil {
			line.EmployeeID = *employeeID
		}
		if start != nil {
			line.Start = s.toDisplay(*start)
		}
		if end != nil {
			line.End = s.toDisplay(*end)
		}
		out = append(out, &line)
	}
	return out, rows.Err()
}

// UpdateLine writes the recomputed dates, unit duration and employee of one
// operation line.
func (s *Store) UpdateLine(ctx context.Context, lineID int64, start, end time.Time, unitDuration float64, employeeID int64) error {
	var employee any
	if employeeID != 0 {
		employee = employeeID
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE is_ordre_travail_line
		SET heure_debut = $1, heure_fin = $2, duree_unitaire = $3, employe_id = $4
		WHERE id = $5`,
		s.toStorage(start), s.toStorage(end), unitDuration, employee, lineID)
	if err != nil {
		return fmt.Errorf("updating line %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %d not found", lineID)
	}
	return nil
}

// EarliestEnd returns when a duration starting at start completes on the
// workcenter's availability calendar.
func (s *Store) EarliestEnd(ctx context.Context, workcenterID int64, durationHours float64, start time.Time) (time.Time, error) {
	ww, err := s.workweekOf(ctx, workcenterID)
	if err != nil {
		return time.Time{}, err
	}
	return ww.advance(start, durationHours)
}

// AdvanceWorkingHours moves an instant forward by a number of working hours
// on the workcenter's availability calendar.
func (s *Store) AdvanceWorkingHours(ctx context.Context, workcenterID int64, from time.Time, hours float64) (time.Time, error) {
	ww, err := s.workweekOf(ctx, workcenterID)
	if err != nil {
		return time.Time{}, err
	}
	return ww.advance(from, hours)
}

// workweekOf loads the weekly attendance intervals of a workcenter's resource
// calendar. Day indices follow the upstream convention: 0 is Monday.
func (s *Store) workweekOf(ctx context.Context, workcenterID int64) (*workweek, error) {
	query := `
		SELECT a.dayofweek, a.hour_from, a.hour_to
		FROM resource_calendar_attendance a
		JOIN mrp_workcenter w ON w.resource_calendar_id = a.calendar_id
		WHERE w.id = $1
		ORDER BY a.dayofweek, a.hour_from`

	rows, err := s.pool.Query(ctx, query, workcenterID)
	if err != nil {
		return nil, fmt.Errorf("loading calendar of workcenter %d: %w", workcenterID, err)
	}
	defer rows.Close()

	ww := new(workweek)
	for rows.Next() {
		var (
			day      string
			from, to float64
		)
		if err := rows.Scan(&day, &from, &to); err != nil {
			return nil, fmt.Errorf("scanning attendance: %w", err)
		}
		idx, err := strconv.Atoi(day)
		if err != nil || idx < 0 || idx > 6 {
			return nil, fmt.Errorf("attendance day %q out of range", day)
		}
		ww.days[idx] = append(ww.days[idx], interval{from: from, to: to})
	}
	return ww, rows.Err()
}

// interval is one working period within a day, in hours from midnight.
type interval struct {
	from, to float64
}

// workweek is a weekly availability pattern, indexed Monday first.
type workweek struct {
	days [7][]interval
}

func (w *workweek) empty() bool {
	for _, day := range w.days {
		if len(day) > 0 {
			return false
		}
	}
	return true
}

// advance consumes hours of working time starting at from and returns the
// resulting instant. An empty pattern degrades to wall-clock addition.
func (w *workweek) advance(from time.Time, hours float64) (time.Time, error) {
	if hours <= 0 {
		return from, nil
	}
	if w.empty() {
		return from.Add(time.Duration(hours * float64(time.Hour))), nil
	}

	remaining := hours
	cur := from
	// A year of pattern days is more than any real operation needs.
	for i := 0; i < 366; i++ {
		midnight := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, cur.Location())
		at := cur.Sub(midnight).Hours()
		idx := (int(cur.Weekday()) + 6) % 7

		for _, iv := range w.days[idx] {
			if iv.to <= at {
				continue
			}
			begin := iv.from
			if at > begin {
				begin = at
			}
			avail := iv.to - begin
			if remaining <= avail {
				end := begin + remaining
				return midnight.Add(time.Duration(end * float64(time.Hour))), nil
			}
			remaining -= avail
		}
		cur = midnight.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("no working capacity within a year of %s", from.Format(time.RFC3339))
}
