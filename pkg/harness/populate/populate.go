// Package populate implements the load harness's populate workers: for
// each table, a fresh harness/generator.Generator derives batch_size
// rows at a time, an Inserter writes them to the source database, and a
// final aggregator.Report is produced.
//
// Each table gets its own Generator instance so its row index always
// restarts at 0 — a Generator shared across tables would offset later
// tables' generated primary keys and make populate and verify disagree
// on row identity. CreateTable is skipped in "data only" mode, and
// rows_processed/batch_count/duration_ms metrics accumulate across every
// table in one worker's run.
package populate

import (
	"context"
	"fmt"
	"time"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/harness/aggregator"
	"github.com/convergedb/sync/pkg/harness/generator"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

// Inserter is the source-specific write surface a populate Worker
// drives. Two realizations exist: SQLInserter for MySQL/PostgreSQL, and
// StoreInserter for the in-process reference target used by tests.
type Inserter interface {
	// CreateTable ensures table exists, matching ts's column set. Only
	// called when Config.DataOnly is false.
	CreateTable(ctx context.Context, table string, ts schema.TableSchema) error

	// InsertBatch writes rows (each a column-name-keyed row as Generator
	// produces) to table and returns the number of rows written.
	InsertBatch(ctx context.Context, table string, rows []map[string]utm.Value) (int, error)
}

// Config parameterizes one populate Worker run.
type Config struct {
	Inserter  Inserter
	Registry  *schema.Registry
	Seed      int64
	RowCount  int64
	BatchSize int
	FKRange   int64 // 0 means generator.DefaultFKRange

	DataOnly bool // skip CreateTable: tables must already exist
	DryRun   bool

	ContainerID string
	Log         *logger.Logger
}

// Worker runs populate across a set of tables and produces one
// aggregator.Report per run.
type Worker struct {
	cfg Config
}

// New returns a Worker.
func New(cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Worker{cfg: cfg}
}

// Run populates every table in tables (or the whole registry when
// tables is empty) and returns the consolidated report.
func (w *Worker) Run(ctx context.Context, tables []string) aggregator.Report {
	if len(tables) == 0 {
		tables = w.cfg.Registry.TableNames()
	}

	startedAt := time.Now()
	var totalRows int64
	var totalBatches int
	var errs []string

	if w.cfg.DryRun {
		if w.cfg.Log != nil {
			w.cfg.Log.Info("dry run: would populate %d row(s) across %d table(s)", w.cfg.RowCount, len(tables))
		}
		return aggregator.Report{
			ContainerID: w.cfg.ContainerID,
			Operation:   aggregator.OperationPopulate,
			Tables:      tables,
			StartedAt:   startedAt,
			FinishedAt:  startedAt,
			Success:     true,
		}
	}

	for _, table := range tables {
		rows, batches, err := w.populateTable(ctx, table)
		totalRows += rows
		totalBatches += batches
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(startedAt).Milliseconds()
	rowsPerSecond := 0.0
	if durationMs > 0 {
		rowsPerSecond = float64(totalRows) / (float64(durationMs) / 1000.0)
	}

	return aggregator.Report{
		ContainerID: w.cfg.ContainerID,
		Operation:   aggregator.OperationPopulate,
		Tables:      tables,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Success:     len(errs) == 0,
		Errors:      errs,
		Populate: &aggregator.PopulateMetrics{
			RowsProcessed: totalRows,
			DurationMs:    durationMs,
			BatchCount:    totalBatches,
			RowsPerSecond: rowsPerSecond,
		},
	}
}

func (w *Worker) populateTable(ctx context.Context, table string) (int64, int, error) {
	ts, ok := w.cfg.Registry.GetTable(table)
	if !ok {
		return 0, 0, errs.NewConfigError(table, "unknown table in populate run", nil)
	}

	if !w.cfg.DataOnly {
		if err := w.cfg.Inserter.CreateTable(ctx, table, ts); err != nil {
			return 0, 0, fmt.Errorf("creating table %q: %w", table, err)
		}
	}

	// A fresh Generator per table: its row index always starts at
	// ordinal 0, so this table's generated primary keys never shift
	// because an earlier table consumed part of the ordinal space.
	gen := generator.New(w.cfg.Seed, table)
	if w.cfg.FKRange > 0 {
		gen = gen.WithFKRange(w.cfg.FKRange)
	}

	var rowsWritten int64
	var batches int
	batch := make([]map[string]utm.Value, 0, w.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := w.cfg.Inserter.InsertBatch(ctx, table, batch)
		rowsWritten += int64(n)
		batches++
		batch = batch[:0]
		return err
	}

	for ordinal := int64(0); ordinal < w.cfg.RowCount; ordinal++ {
		select {
		case <-ctx.Done():
			return rowsWritten, batches, ctx.Err()
		default:
		}
		batch = append(batch, gen.Row(ordinal, ts))
		if len(batch) >= w.cfg.BatchSize {
			if err := flush(); err != nil {
				return rowsWritten, batches, fmt.Errorf("inserting batch into %q: %w", table, err)
			}
		}
	}
	if err := flush(); err != nil {
		return rowsWritten, batches, fmt.Errorf("inserting final batch into %q: %w", table, err)
	}

	if w.cfg.Log != nil {
		w.cfg.Log.Info("populated %s: %d rows", table, rowsWritten)
	}
	return rowsWritten, batches, nil
}
