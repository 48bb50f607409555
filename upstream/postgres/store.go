// Package postgres implements the upstream ports against the system of
// record. Task dates are stored in UTC; the engine works in naive local
// display time, so every write converts through the configured location.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
)

var _ upstream.Store = (*Store)(nil)

// Store is one connection pool onto the upstream database. It implements
// upstream.Store.
type Store struct {
	pool   *pgxpool.Pool
	loc    *time.Location
	logger hclog.Logger
}

// Connect opens a pool against dsn. The location is the display timezone of
// the planning clients; task instants cross it on every read and write.
func Connect(ctx context.Context, dsn string, loc *time.Location, logger hclog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging: %w", err)
	}
	return &Store{
		pool:   pool,
		loc:    loc,
		logger: logger.Named("postgres"),
	}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// toStorage rebinds a naive local instant into the display location and
// converts to UTC. Rebinding through time.Date resolves DST: an instant
// inside a transition maps to the location's canonical reading of that wall
// time.
func (s *Store) toStorage(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, s.loc).UTC()
}

// toDisplay converts a stored UTC instant to naive local wall time.
func (s *Store) toDisplay(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), lt.Second(), 0, time.UTC)
}

// taskUpdateSQL returns the update statement for one task row. The column
// receiving the row id follows the planning display type.
func taskUpdateSQL(typ structs.PlanningType) string {
	col := "operator_id"
	if typ == structs.PlanningTypeWorkcenter {
		col = "workcenter_id"
	}
	return fmt.Sprintf(`
		UPDATE is_gestion_tache
		SET start_date = $1, duration_hours = $2, %s = $3
		WHERE id = $4`, col)
}

// PersistTasks writes a batch of task updates in one transaction. Any row
// failure rolls back the whole batch.
func (s *Store) PersistTasks(ctx context.Context, planning *structs.Planning, updates []*upstream.TaskUpdate) error {
	defer metrics.MeasureSince([]string{"mecaplan", "postgres", "persist_tasks"}, time.Now())
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := taskUpdateSQL(planning.Type)
	for _, u := range updates {
		id, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("task id %q is not an upstream id: %w", u.ID, err)
		}
		tag, err := tx.Exec(ctx, query, s.toStorage(u.Start), u.DurationHours, u.RowID, id)
		if err != nil {
			return fmt.Errorf("updating task %s: %w", u.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("updating task %s: %w", u.ID, structs.ErrTaskNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	s.logger.Debug("persisted task batch", "planning_id", planning.ID, "count", len(updates))
	return nil
}
