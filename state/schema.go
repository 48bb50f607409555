package state

import (
	"github.com/hashicorp/go-memdb"
)

const (
	// TableTasks holds every task of the selected planning.
	TableTasks = "tasks"

	// TableRows holds the operator or workcenter rows.
	TableRows = "rows"

	// TableAffairs holds the affairs tinting the tasks.
	TableAffairs = "affairs"

	// TableClosures holds the advisory day closures.
	TableClosures = "closures"

	indexID   = "id"
	indexRow  = "row"
	indexRank = "rank"
)

// stateStoreSchema returns the memdb schema for one planning.
func stateStoreSchema() *memdb.DBSchema {
	db := &memdb.DBSchema{
		Tables: make(map[string]*memdb.TableSchema),
	}

	for _, schema := range []*memdb.TableSchema{
		taskTableSchema(),
		rowTableSchema(),
		affairTableSchema(),
		closureTableSchema(),
	} {
		db.Tables[schema.Name] = schema
	}

	return db
}

// taskTableSchema returns the memdb schema for the tasks table. Tasks are
// looked up by id on edits and scanned by row by the collision engine.
func taskTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableTasks,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexRow: {
				Name:         indexRow,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.IntFieldIndex{
					Field: "RowID",
				},
			},
		},
	}
}

// rowTableSchema returns the memdb schema for the rows table. The rank index
// yields rows in display order.
func rowTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableRows,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.IntFieldIndex{
					Field: "ID",
				},
			},
			indexRank: {
				Name:         indexRank,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.IntFieldIndex{
					Field: "Rank",
				},
			},
		},
	}
}

// affairTableSchema returns the memdb schema for the affairs table.
func affairTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAffairs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.IntFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

// closureTableSchema returns the memdb schema for the closures table.
func closureTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableClosures,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.IntFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}
