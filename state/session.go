package state

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mecaplan/mecaplan/calendar"
	"github.com/mecaplan/mecaplan/structs"
)

// Session is the explicit handle for one loaded planning: its store, its
// calendar and the lock serializing edits against it. Sessions for distinct
// plannings are independent; within a session edits are linearized behind
// the write lock while projections share the read lock.
type Session struct {
	mu sync.RWMutex

	planning *structs.Planning
	store    *StateStore
	cal      calendar.Calendar
	closures *calendar.ClosureSet
}

// NewSession builds a session around a freshly loaded planning.
func NewSession(logger hclog.Logger, planning *structs.Planning, cal calendar.Calendar) (*Session, error) {
	store, err := NewStateStore(logger)
	if err != nil {
		return nil, err
	}
	return &Session{
		planning: planning.Copy(),
		store:    store,
		cal:      cal,
		closures: calendar.NewClosureSet(cal, nil),
	}, nil
}

// Planning returns the planning descriptor.
func (s *Session) Planning() *structs.Planning {
	return s.planning.Copy()
}

// Store returns the underlying state store.
func (s *Session) Store() *StateStore {
	return s.store
}

// Calendar returns the slot calendar of this planning.
func (s *Session) Calendar() calendar.Calendar {
	return s.cal
}

// Closures returns the current closure mask. Callers hold the session lock.
func (s *Session) Closures() *calendar.ClosureSet {
	return s.closures
}

// SetClosures rebuilds the closure mask, typically after a reload.
func (s *Session) SetClosures(closures []*structs.Closure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closures = calendar.NewClosureSet(s.cal, closures)
}

// Lock takes the exclusive edit lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the exclusive edit lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// RLock takes the shared projection lock.
func (s *Session) RLock() { s.mu.RLock() }

// RUnlock releases the shared projection lock.
func (s *Session) RUnlock() { s.mu.RUnlock() }
