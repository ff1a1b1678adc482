package pgconv

import "github.com/convergedb/sync/pkg/utm"

// Row mirrors the shape produced by both PostgreSQL capture modes
// (trigger/audit-table polling and WAL logical decoding) before it is
// lifted into a utm.Change: schema-qualified table name, primary key
// column values, and the full column set for inserts/updates.
type Row struct {
	Schema     string
	Table      string
	PrimaryKey map[string]utm.Value
	Columns    map[string]utm.Value
}

// ActionKind enumerates the change envelope emitted by logical decoding,
// mirroring crate postgresql-wal2json-source's Action enum 1:1 (Begin
// and Commit carry no row data and are dropped by the capture loop
// before reaching the applier).
type ActionKind string

const (
	ActionInsert ActionKind = "insert"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	ActionBegin  ActionKind = "begin"
	ActionCommit ActionKind = "commit"
)

// Action is the decoded WAL/trigger event before translation to a
// utm.Change. Xid/NextLSN/Timestamp are only populated for Begin/Commit.
type Action struct {
	Kind      ActionKind
	Row       *Row
	Xid       uint32
	NextLSN   string
	Timestamp int64
}

// DefaultThing builds a utm.Thing from a row's primary key columns: a
// single-column key carries its value directly, a composite key is
// carried as an Object so key-by-key equality still decides
// same-row-ness without inventing a synthetic delimiter format.
func DefaultThing(schema, table string, pk map[string]utm.Value) utm.Thing {
	if len(pk) == 1 {
		for _, v := range pk {
			return utm.Thing{Table: table, ID: v}
		}
	}
	return utm.Thing{Table: table, ID: utm.ObjectValue(pk)}
}

// ToChange converts an Insert/Update/Delete Action into a utm.Change,
// keyed by the row's primary key columns. Delete actions carry nil Data.
func (a Action) ToChange(thing func(schema, table string, pk map[string]utm.Value) utm.Thing) (utm.Change, bool) {
	if a.Row == nil {
		return utm.Change{}, false
	}
	target := thing(a.Row.Schema, a.Row.Table, a.Row.PrimaryKey)

	switch a.Kind {
	case ActionInsert:
		return utm.Change{Op: utm.OpCreate, Target: target, Data: a.Row.Columns}, true
	case ActionUpdate:
		return utm.Change{Op: utm.OpUpdate, Target: target, Data: a.Row.Columns}, true
	case ActionDelete:
		return utm.Change{Op: utm.OpDelete, Target: target, Data: nil}, true
	default:
		return utm.Change{}, false
	}
}
