package populate

import (
	"context"
	"fmt"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target"
	"github.com/convergedb/sync/pkg/utm"
)

// StoreInserter adapts a target.Store into an Inserter by writing
// generated rows directly through Upsert, bypassing any source
// database. It is the populate-side analogue of memstore.Store used by
// verify/fullsync tests: a reference implementation that exercises the
// same row-shape contract a SQL or document populator would, without
// requiring a live source to run load-test scenarios end to end.
type StoreInserter struct {
	Store    target.Store
	Registry *schema.Registry
}

// CreateTable is a no-op: target.Store has no schema to declare.
func (s StoreInserter) CreateTable(ctx context.Context, table string, ts schema.TableSchema) error {
	return nil
}

// InsertBatch upserts each row keyed by its schema-declared PK column(s).
func (s StoreInserter) InsertBatch(ctx context.Context, table string, rows []map[string]utm.Value) (int, error) {
	ts, ok := s.Registry.GetTable(table)
	if !ok {
		return 0, fmt.Errorf("populate: unknown table %q", table)
	}
	pkCols := ts.PKColumns()
	if len(pkCols) == 0 {
		return 0, fmt.Errorf("populate: table %q declares no primary key", table)
	}

	for i, row := range rows {
		id, err := thingID(pkCols, row)
		if err != nil {
			return i, fmt.Errorf("table %q: %w", table, err)
		}
		data := make(map[string]utm.Value, len(row))
		for k, v := range row {
			data[k] = v
		}
		for _, pk := range pkCols {
			delete(data, pk)
		}
		record := utm.Record{ID: utm.Thing{Table: table, ID: id}, Data: data}
		if err := s.Store.Upsert(ctx, record); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

// thingID builds a Thing.ID from a row's PK column(s): the bare value
// for a single-column key, or a utm.ObjectValue keyed by column name for
// a composite key, matching fullsync.buildThing's convention so rows
// populated here and rows applied via the incremental/full-sync path
// land under the same Thing identity.
func thingID(pkCols []string, row map[string]utm.Value) (utm.Value, error) {
	if len(pkCols) == 1 {
		v, ok := row[pkCols[0]]
		if !ok {
			return utm.Value{}, fmt.Errorf("missing primary key column %q", pkCols[0])
		}
		return v, nil
	}
	fields := make(map[string]utm.Value, len(pkCols))
	for _, col := range pkCols {
		v, ok := row[col]
		if !ok {
			return utm.Value{}, fmt.Errorf("missing primary key column %q", col)
		}
		fields[col] = v
	}
	return utm.ObjectValue(fields), nil
}
