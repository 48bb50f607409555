// Package state owns the authoritative in-memory task set for the selected
// planning. All reads return copies; mutations go through the edit
// coordinator so the per-row non-overlap invariant is preserved.
package state

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-memdb"
	"github.com/mecaplan/mecaplan/structs"
)

// StateStore holds the rows, tasks, affairs and closures of one planning.
// It is rebuilt from scratch on every planning select or reload; no state
// outlives a planning switch.
type StateStore struct {
	db     *memdb.MemDB
	logger hclog.Logger
}

// NewStateStore creates an empty store.
func NewStateStore(logger hclog.Logger) (*StateStore, error) {
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %w", err)
	}
	return &StateStore{
		db:     db,
		logger: logger.Named("state_store"),
	}, nil
}

// TaskByID returns a copy of the task, or nil when the id is unknown.
func (s *StateStore) TaskByID(id string) (*structs.Task, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(TableTasks, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("task lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*structs.Task).Copy(), nil
}

// TasksByRow returns copies of the tasks on a row in ascending start order,
// ties broken by task id.
func (s *StateStore) TasksByRow(rowID int64) ([]*structs.Task, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableTasks, indexRow, rowID)
	if err != nil {
		return nil, fmt.Errorf("task row scan failed: %w", err)
	}

	var out []*structs.Task
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Task).Copy())
	}
	structs.SortTasks(out)
	return out, nil
}

// Tasks returns copies of every task in ascending start order.
func (s *StateStore) Tasks() ([]*structs.Task, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableTasks, indexID)
	if err != nil {
		return nil, fmt.Errorf("task scan failed: %w", err)
	}

	var out []*structs.Task
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Task).Copy())
	}
	structs.SortTasks(out)
	return out, nil
}

// Rows returns copies of the rows in display order.
func (s *StateStore) Rows() ([]*structs.Row, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableRows, indexRank)
	if err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}

	var out []*structs.Row
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Row).Copy())
	}
	return out, nil
}

// RowByID returns a copy of the row, or nil when the id is unknown.
func (s *StateStore) RowByID(id int64) (*structs.Row, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(TableRows, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("row lookup failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*structs.Row).Copy(), nil
}

// Affairs returns copies of every affair.
func (s *StateStore) Affairs() ([]*structs.Affair, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableAffairs, indexID)
	if err != nil {
		return nil, fmt.Errorf("affair scan failed: %w", err)
	}

	var out []*structs.Affair
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Affair).Copy())
	}
	return out, nil
}

// Closures returns copies of every closure.
func (s *StateStore) Closures() ([]*structs.Closure, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(TableClosures, indexID)
	if err != nil {
		return nil, fmt.Errorf("closure scan failed: %w", err)
	}

	var out []*structs.Closure
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Closure).Copy())
	}
	return out, nil
}

// UpsertTasks inserts or replaces a batch of tasks in one write transaction.
// Any error aborts the whole batch.
func (s *StateStore) UpsertTasks(tasks []*structs.Task) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	for _, task := range tasks {
		if err := txn.Insert(TableTasks, task.Copy()); err != nil {
			return fmt.Errorf("task insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// ReplaceTasks swaps the whole task table in one write transaction. Used by
// the loader on reload.
func (s *StateStore) ReplaceTasks(tasks []*structs.Task) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(TableTasks, indexID); err != nil {
		return fmt.Errorf("task purge failed: %w", err)
	}
	for _, task := range tasks {
		if err := txn.Insert(TableTasks, task.Copy()); err != nil {
			return fmt.Errorf("task insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// ReplaceRows swaps the row table, reassigning display ranks in the order
// given.
func (s *StateStore) ReplaceRows(rows []*structs.Row) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(TableRows, indexID); err != nil {
		return fmt.Errorf("row purge failed: %w", err)
	}
	for i, row := range rows {
		nr := row.Copy()
		nr.Rank = i
		if err := txn.Insert(TableRows, nr); err != nil {
			return fmt.Errorf("row insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// ReplaceAffairs swaps the affair table.
func (s *StateStore) ReplaceAffairs(affairs []*structs.Affair) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(TableAffairs, indexID); err != nil {
		return fmt.Errorf("affair purge failed: %w", err)
	}
	for _, affair := range affairs {
		if err := txn.Insert(TableAffairs, affair.Copy()); err != nil {
			return fmt.Errorf("affair insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}

// ReplaceClosures swaps the closure table.
func (s *StateStore) ReplaceClosures(closures []*structs.Closure) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(TableClosures, indexID); err != nil {
		return fmt.Errorf("closure purge failed: %w", err)
	}
	for _, closure := range closures {
		if err := txn.Insert(TableClosures, closure.Copy()); err != nil {
			return fmt.Errorf("closure insert failed: %w", err)
		}
	}

	txn.Commit()
	return nil
}
