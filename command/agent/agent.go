package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mecaplan/mecaplan/calendar"
	"github.com/mecaplan/mecaplan/propagate"
	"github.com/mecaplan/mecaplan/scheduler"
	"github.com/mecaplan/mecaplan/state"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/upstream"
	"github.com/mecaplan/mecaplan/upstream/inmem"
	"github.com/mecaplan/mecaplan/upstream/postgres"
)

// devDatabase is the name of the seeded database in dev mode.
const devDatabase = "dev"

// Agent ties the configured databases, the active planning session and the
// HTTP server together.
type Agent struct {
	config *Config
	logger hclog.Logger
	loc    *time.Location

	mu       sync.Mutex
	stores   map[string]upstream.Store
	activeDB string

	// Active planning. Nil until SelectPlanning succeeds.
	session *state.Session
	coord   *scheduler.Coordinator
	prop    *propagate.Propagator

	httpServer *HTTPServer

	shutdown   bool
	shutdownCh chan struct{}
}

// NewAgent connects the configured databases and starts the HTTP server.
func NewAgent(config *Config, logger hclog.Logger) (*Agent, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	a := &Agent{
		config:     config,
		logger:     logger.Named("agent"),
		loc:        loc,
		stores:     make(map[string]upstream.Store),
		shutdownCh: make(chan struct{}),
	}

	if config.Dev {
		start := time.Now().In(loc)
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		a.stores[devDatabase] = inmem.NewSeeded(logger, start)
		a.activeDB = devDatabase
		a.logger.Info("running in dev mode with a seeded database")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, db := range config.Databases {
			store, err := postgres.Connect(ctx, db.DSN, loc, logger)
			if err != nil {
				a.closeStores()
				return nil, fmt.Errorf("connecting database %q: %w", db.Name, err)
			}
			a.stores[db.Name] = store
		}
		a.activeDB = config.Databases[0].Name
	}

	srv, err := NewHTTPServer(a, config)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.httpServer = srv

	a.logger.Info("agent started", "http", srv.Addr, "databases", len(a.stores))
	return a, nil
}

func (a *Agent) closeStores() {
	for _, store := range a.stores {
		store.Close()
	}
}

// Shutdown stops the HTTP server and closes the database pools.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown {
		return
	}
	a.shutdown = true
	a.logger.Info("requesting shutdown")
	if a.httpServer != nil {
		a.httpServer.Shutdown()
	}
	a.closeStores()
	close(a.shutdownCh)
	a.logger.Info("shutdown complete")
}

// ShutdownCh closes when the agent has stopped.
func (a *Agent) ShutdownCh() <-chan struct{} {
	return a.shutdownCh
}

// Databases lists the configured database names in stable order.
func (a *Agent) Databases() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.stores))
	for name := range a.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveDatabase returns the selected database name.
func (a *Agent) ActiveDatabase() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeDB
}

// SelectDatabase switches the active database and drops the loaded planning.
func (a *Agent) SelectDatabase(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.stores[name]; !ok {
		return structs.ErrNoDatabaseSelected
	}
	if a.activeDB != name {
		a.activeDB = name
		a.session = nil
		a.coord = nil
		a.prop = nil
		a.logger.Info("selected database", "database", name)
	}
	return nil
}

func (a *Agent) activeStore() (upstream.Store, error) {
	store, ok := a.stores[a.activeDB]
	if !ok {
		return nil, structs.ErrNoDatabaseSelected
	}
	return store, nil
}

// Plannings lists the selectable plannings of the active database.
func (a *Agent) Plannings(ctx context.Context) ([]*upstream.PlanningSummary, error) {
	a.mu.Lock()
	store, err := a.activeStore()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return store.Plannings(ctx)
}

// SelectPlanning loads one planning into memory and makes it the active
// session. The previous session, if any, is discarded.
func (a *Agent) SelectPlanning(ctx context.Context, planningID int64) error {
	a.mu.Lock()
	store, err := a.activeStore()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	snap, err := store.Load(ctx, planningID)
	if err != nil {
		return err
	}

	start := time.Now().In(a.loc)
	cal := calendar.New(time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC), a.config.HalfDayHours)

	sess, err := state.NewSession(a.logger, snap.Planning, cal)
	if err != nil {
		return err
	}
	if err := sess.Store().ReplaceRows(snap.Rows); err != nil {
		return err
	}
	if err := sess.Store().ReplaceAffairs(snap.Affairs); err != nil {
		return err
	}
	if err := sess.Store().ReplaceTasks(snap.Tasks); err != nil {
		return err
	}
	sess.SetClosures(snap.Closures)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = sess
	a.coord = scheduler.NewCoordinator(a.logger, sess, store, a.config.SchedulerConfig())
	a.prop = propagate.New(a.logger, sess, store)
	a.logger.Info("selected planning", "planning_id", planningID,
		"rows", len(snap.Rows), "tasks", len(snap.Tasks))
	return nil
}

// Session returns the active planning session.
func (a *Agent) Session() (*state.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, structs.ErrNoPlanningSelected
	}
	return a.session, nil
}

// Coordinator returns the active edit coordinator.
func (a *Agent) Coordinator() (*scheduler.Coordinator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.coord == nil {
		return nil, structs.ErrNoPlanningSelected
	}
	return a.coord, nil
}

// Propagator returns the active propagator.
func (a *Agent) Propagator() (*propagate.Propagator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prop == nil {
		return nil, structs.ErrNoPlanningSelected
	}
	return a.prop, nil
}

// ReloadScope selects what the reload endpoints re-read from upstream.
type ReloadScope string

const (
	ReloadTasks     ReloadScope = "tasks"
	ReloadOperators ReloadScope = "operators"
	ReloadAffairs   ReloadScope = "affairs"
	ReloadAll       ReloadScope = "all"
)

// Reload re-reads part of the active planning from the upstream store.
func (a *Agent) Reload(ctx context.Context, scope ReloadScope) error {
	a.mu.Lock()
	store, err := a.activeStore()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	sess := a.session
	a.mu.Unlock()
	if sess == nil {
		return structs.ErrNoPlanningSelected
	}

	planningID := sess.Planning().ID
	switch scope {
	case ReloadTasks:
		tasks, err := store.LoadTasks(ctx, planningID)
		if err != nil {
			return err
		}
		sess.Lock()
		defer sess.Unlock()
		return sess.Store().ReplaceTasks(tasks)
	case ReloadOperators:
		rows, err := store.LoadRows(ctx, planningID)
		if err != nil {
			return err
		}
		sess.Lock()
		defer sess.Unlock()
		return sess.Store().ReplaceRows(rows)
	case ReloadAffairs:
		affairs, err := store.LoadAffairs(ctx, planningID)
		if err != nil {
			return err
		}
		sess.Lock()
		defer sess.Unlock()
		return sess.Store().ReplaceAffairs(affairs)
	case ReloadAll:
		return a.SelectPlanning(ctx, planningID)
	default:
		return fmt.Errorf("unknown reload scope %q", scope)
	}
}
