// Package fullsync implements the full-sync executor: a batched,
// ordered read of every configured table, converting each row to a
// Record and applying it as an idempotent upsert, with composite-PK
// audit-row reconciliation and a Neo4j-specific two-pass variant.
package fullsync

import (
	"context"
	"fmt"

	"github.com/convergedb/sync/pkg/applier"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

// Row is a single already-converted source row: every column (including
// primary-key columns) as a TypedValue, keyed by column name. AuditRowID
// is only set when the row was read alongside its trigger-recorded
// row_id array; when present its elements are checked position-wise
// against the row's own PK columns.
type Row struct {
	Values     map[string]utm.Value
	AuditRowID []utm.Value
}

// Source streams a table's rows in batches of batchSize, invoking yield
// once per row. Source implementations are expected to use an
// isolation level adequate for a consistent snapshot for their backing
// store; that choice is made by the Source, not by Executor.
type Source interface {
	ReadTable(ctx context.Context, table string, batchSize int, yield func(Row) error) error
}

// Executor runs a single full-sync pass over a set of tables.
type Executor struct {
	Source    Source
	Registry  *schema.Registry
	Applier   *applier.Applier
	BatchSize int
	DryRun    bool
	Log       *logger.Logger

	rowsProcessed int
}

// RowsProcessed returns the number of rows converted and applied (or,
// in dry-run mode, only converted) across the most recent Run call.
func (e *Executor) RowsProcessed() int { return e.rowsProcessed }

// Run streams and applies every table in tables, or every table in the
// registry when tables is empty.
func (e *Executor) Run(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		tables = e.Registry.TableNames()
	}
	batchSize := e.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}
	e.rowsProcessed = 0

	for _, table := range tables {
		ts, ok := e.Registry.GetTable(table)
		if !ok {
			return errs.NewConfigError(table, "unknown table in full sync", nil)
		}
		pkCols := ts.PKColumns()
		if err := e.Source.ReadTable(ctx, table, batchSize, func(row Row) error {
			return e.applyRow(ctx, table, pkCols, row)
		}); err != nil {
			return fmt.Errorf("full sync of table %q: %w", table, err)
		}
	}
	return nil
}

func (e *Executor) applyRow(ctx context.Context, table string, pkCols []string, row Row) error {
	if len(row.AuditRowID) > 0 {
		if err := verifyCompositeRowID(pkCols, row.Values, row.AuditRowID); err != nil {
			return err
		}
	}

	thing, err := buildThing(table, pkCols, row.Values)
	if err != nil {
		return err
	}

	data := make(map[string]utm.Value, len(row.Values))
	for col, v := range row.Values {
		if isPKColumn(col, pkCols) {
			continue
		}
		data[col] = v
	}

	e.rowsProcessed++
	if e.DryRun {
		if e.Log != nil {
			e.Log.Debug("dry run: would upsert %s", thing.String())
		}
		return nil
	}

	return e.Applier.Apply(ctx, utm.Change{Op: utm.OpCreate, Target: thing, Data: data})
}

func buildThing(table string, pkCols []string, values map[string]utm.Value) (utm.Thing, error) {
	if len(pkCols) == 1 {
		v, ok := values[pkCols[0]]
		if !ok {
			return utm.Thing{}, errs.NewConversionError(errs.MissingColumnValue, "", pkCols[0], "row missing primary key column")
		}
		return utm.Thing{Table: table, ID: v}, nil
	}
	fields := make(map[string]utm.Value, len(pkCols))
	for _, col := range pkCols {
		v, ok := values[col]
		if !ok {
			return utm.Thing{}, errs.NewConversionError(errs.MissingColumnValue, "", col, "row missing composite primary key column")
		}
		fields[col] = v
	}
	return utm.Thing{Table: table, ID: utm.ObjectValue(fields)}, nil
}

func isPKColumn(col string, pkCols []string) bool {
	for _, p := range pkCols {
		if p == col {
			return true
		}
	}
	return false
}

// verifyCompositeRowID checks that the row's own PK column values match
// the audit-recorded row_id array position-wise, in PK column order.
// Disagreement is an error rather than a silent overwrite, since it
// would otherwise mask a schema/trigger mismatch.
func verifyCompositeRowID(pkCols []string, values map[string]utm.Value, auditRowID []utm.Value) error {
	if len(auditRowID) != len(pkCols) {
		return errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%d elements", len(auditRowID)), fmt.Sprintf("%d elements", len(pkCols)), "audit row_id arity does not match primary key column count")
	}
	for i, col := range pkCols {
		v, ok := values[col]
		if !ok {
			return errs.NewConversionError(errs.MissingColumnValue, "", col, "row missing primary key column during audit reconciliation")
		}
		if !v.Equal(auditRowID[i]) {
			return errs.NewConversionError(errs.TypeMismatch, fmt.Sprintf("%v", auditRowID[i]), fmt.Sprintf("%v", v), fmt.Sprintf("audit row_id[%d] disagrees with column %q", i, col))
		}
	}
	return nil
}
