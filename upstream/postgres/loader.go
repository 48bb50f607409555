package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

// planningType maps the upstream data-type flag onto the display type.
// "of" plannings show whole manufacturing orders on workcenter rows;
// "operation" plannings show operation lines on operator rows.
func planningType(typeDonnees string) structs.PlanningType {
	if typeDonnees == "of" {
		return structs.PlanningTypeWorkcenter
	}
	return structs.PlanningTypeOperator
}

// Plannings lists the selectable plannings with task and affair counts.
func (s *Store) Plannings(ctx context.Context) ([]*upstream.PlanningSummary, error) {
	query := `
		SELECT p.id, p.name, p.type_donnees, p.date_fin,
		       (SELECT count(*) FROM is_gestion_tache t WHERE t.planning_id = p.id),
		       (SELECT count(*) FROM is_gestion_tache_affaire a WHERE a.planning_id = p.id)
		FROM is_gestion_tache_planning p
		ORDER BY p.name, p.id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing plannings: %w", err)
	}
	defer rows.Close()

	var out []*upstream.PlanningSummary
	for rows.Next() {
		var (
			p           structs.Planning
			typeDonnees string
			endDate     *time.Time
			summary     upstream.PlanningSummary
		)
		if err := rows.Scan(&p.ID, &p.Name, &typeDonnees, &endDate,
			&summary.TaskCount, &summary.AffairCount); err != nil {
			return nil, fmt.Errorf("scanning planning: %w", err)
		}
		p.Type = planningType(typeDonnees)
		if endDate != nil {
			local := s.toDisplay(*endDate)
			p.EndDate = &local
		}
		summary.Planning = &p
		out = append(out, &summary)
	}
	return out, rows.Err()
}

// Load reads the full snapshot of one planning.
func (s *Store) Load(ctx context.Context, planningID int64) (*upstream.Snapshot, error) {
	planning, err := s.loadPlanning(ctx, planningID)
	if err != nil {
		return nil, err
	}

	snap := &upstream.Snapshot{Planning: planning}
	if snap.Rows, err = s.LoadRows(ctx, planningID); err != nil {
		return nil, err
	}
	if snap.Affairs, err = s.LoadAffairs(ctx, planningID); err != nil {
		return nil, err
	}
	if snap.Tasks, err = s.LoadTasks(ctx, planningID); err != nil {
		return nil, err
	}
	if snap.Closures, err = s.loadClosures(ctx, planningID); err != nil {
		return nil, err
	}
	s.logger.Info("loaded planning", "planning_id", planningID,
		"rows", len(snap.Rows), "tasks", len(snap.Tasks), "affairs", len(snap.Affairs))
	return snap, nil
}

func (s *Store) loadPlanning(ctx context.Context, planningID int64) (*structs.Planning, error) {
	query := `
		SELECT p.id, p.name, p.type_donnees, p.date_fin
		FROM is_gestion_tache_planning p
		WHERE p.id = $1`

	var (
		p           structs.Planning
		typeDonnees string
		endDate     *time.Time
	)
	err := s.pool.QueryRow(ctx, query, planningID).Scan(&p.ID, &p.Name, &typeDonnees, &endDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, structs.ErrUnknownPlanning
	}
	if err != nil {
		return nil, fmt.Errorf("loading planning %d: %w", planningID, err)
	}
	p.Type = planningType(typeDonnees)
	if endDate != nil {
		local := s.toDisplay(*endDate)
		p.EndDate = &local
	}
	return &p, nil
}

// LoadRows reads the planning's rows in display order. Operator plannings
// draw from the operator list, workcenter plannings from the workcenters the
// tasks reference.
func (s *Store) LoadRows(ctx context.Context, planningID int64) ([]*structs.Row, error) {
	planning, err := s.loadPlanning(ctx, planningID)
	if err != nil {
		return nil, err
	}

	var query string
	if planning.Type == structs.PlanningTypeWorkcenter {
		query = `
			SELECT w.id, w.name
			FROM mrp_workcenter w
			JOIN is_gestion_tache t ON t.workcenter_id = w.id
			WHERE t.planning_id = $1
			GROUP BY w.id, w.name
			ORDER BY w.name, w.id`
	} else {
		query = `
			SELECT o.id, e.name
			FROM is_gestion_tache_operateur o
			JOIN hr_employee e ON o.operator_id = e.id
			WHERE o.planning_id = $1
			ORDER BY e.name, o.id`
	}

	rows, err := s.pool.Query(ctx, query, planningID)
	if err != nil {
		return nil, fmt.Errorf("loading rows: %w", err)
	}
	defer rows.Close()

	var out []*structs.Row
	for rows.Next() {
		r := &structs.Row{Rank: len(out)}
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadAffairs reads the planning's affairs.
func (s *Store) LoadAffairs(ctx context.Context, planningID int64) ([]*structs.Affair, error) {
	query := `
		SELECT a.id, a.name, COALESCE(a.color, '')
		FROM is_gestion_tache_affaire a
		WHERE a.planning_id = $1
		ORDER BY a.name, a.id`

	rows, err := s.pool.Query(ctx, query, planningID)
	if err != nil {
		return nil, fmt.Errorf("loading affairs: %w", err)
	}
	defer rows.Close()

	var out []*structs.Affair
	for rows.Next() {
		a := new(structs.Affair)
		if err := rows.Scan(&a.ID, &a.Name, &a.Color); err != nil {
			return nil, fmt.Errorf("scanning affair: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadTasks reads the planning's tasks with their work-order back-pointers.
func (s *Store) LoadTasks(ctx context.Context, planningID int64) ([]*structs.Task, error) {
	planning, err := s.loadPlanning(ctx, planningID)
	if err != nil {
		return nil, err
	}

	rowCol := "t.operator_id"
	if planning.Type == structs.PlanningTypeWorkcenter {
		rowCol = "t.workcenter_id"
	}
	query := fmt.Sprintf(`
		SELECT t.id, t.name, %s, t.affaire_id, t.start_date, t.duration_hours,
		       t.order_id, t.production_id, t.ordre_id, t.line_id,
		       t.reste, t.date_butoir
		FROM is_gestion_tache t
		WHERE t.planning_id = $1
		ORDER BY t.start_date, t.id`, rowCol)

	rows, err := s.pool.Query(ctx, query, planningID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	defer rows.Close()

	var out []*structs.Task
	for rows.Next() {
		var (
			t                         structs.Task
			id, rowID                 int64
			affairID, orderID, prodID *int64
			workOrderID, lineID       *int64
			remaining                 *float64
			start                     time.Time
			lastRequired              *time.Time
		)
		if err := rows.Scan(&id, &t.Name, &rowID, &affairID, &start, &t.DurationHours,
			&orderID, &prodID, &workOrderID, &lineID, &remaining, &lastRequired); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.ID = strconv.FormatInt(id, 10)
		t.RowID = rowID
		t.StartDate = s.toDisplay(start)
		if affairID != nil {
			t.AffairID = *affairID
		}
		if orderID != nil {
			t.OrderID = *orderID
		}
		if prodID != nil {
			t.ProductionID = *prodID
		}
		if workOrderID != nil {
			t.WorkOrderID = *workOrderID
		}
		if lineID != nil {
			t.OperationLineID = *lineID
		}
		if remaining != nil {
			t.RemainingQty = *remaining
		}
		if lastRequired != nil {
			local := s.toDisplay(*lastRequired)
			t.LastRequired = &local
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) loadClosures(ctx context.Context, planningID int64) ([]*structs.Closure, error) {
	query := `
		SELECT f.id, f.date, f.operator_id
		FROM is_gestion_tache_fermeture f
		WHERE f.planning_id = $1
		ORDER BY f.date, f.id`

	rows, err := s.pool.Query(ctx, query, planningID)
	if err != nil {
		return nil, fmt.Errorf("loading closures: %w", err)
	}
	defer rows.Close()

	var out []*structs.Closure
	for rows.Next() {
		var (
			c     structs.Closure
			date  time.Time
			rowID *int64
		)
		if err := rows.Scan(&c.ID, &date, &rowID); err != nil {
			return nil, fmt.Errorf("scanning closure: %w", err)
		}
		c.Date = s.toDisplay(date)
		if rowID != nil {
			c.RowID = *rowID
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
