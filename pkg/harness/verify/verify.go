// Package verify implements the load harness's verify workers: the
// convergence barrier that waits for a table's row count to catch up,
// then re-derives every row the matching populate worker should have
// written and compares it against what actually landed in the target.
//
// verify never talks to the source database — it recomputes the
// expected row with harness/generator under the identical (seed, table,
// ordinal) and reads back through target.Store, the same boundary
// contract applier/fullsync write through.
package verify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/harness/aggregator"
	"github.com/convergedb/sync/pkg/harness/generator"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target"
	"github.com/convergedb/sync/pkg/utm"
)

// Config parameterizes one verify Worker run.
type Config struct {
	Store    target.Store
	Registry *schema.Registry

	Seed     int64
	RowCount int64 // rows expected per table, matching the populate run's row_count
	FKRange  int64 // 0 means generator.DefaultFKRange

	// Convergence barrier: how often to poll a table's row count and how
	// long to wait before giving up on that table.
	PollInterval time.Duration
	Timeout      time.Duration

	Comparator Comparator

	ContainerID string
	Log         *logger.Logger
}

// Worker verifies populated tables against the target store.
type Worker struct {
	cfg Config
}

// New returns a Worker.
func New(cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Worker{cfg: cfg}
}

// Run verifies every table in tables (or the whole registry when tables
// is empty) and returns the consolidated report.
func (w *Worker) Run(ctx context.Context, tables []string) aggregator.Report {
	if len(tables) == 0 {
		tables = w.cfg.Registry.TableNames()
	}

	startedAt := time.Now()
	var totalMatched, totalMismatches int64
	var failures []string

	for _, table := range tables {
		matched, mismatches, tableErrs := w.verifyTable(ctx, table)
		totalMatched += matched
		totalMismatches += mismatches
		failures = append(failures, tableErrs...)
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(startedAt).Milliseconds()

	const maxReportedErrors = 20
	reportErrors := failures
	if len(reportErrors) > maxReportedErrors {
		overflow := len(reportErrors) - maxReportedErrors
		reportErrors = append(append([]string{}, reportErrors[:maxReportedErrors]...),
			fmt.Sprintf("... %d more mismatch(es) omitted", overflow))
	}

	return aggregator.Report{
		ContainerID: w.cfg.ContainerID,
		Operation:   aggregator.OperationVerify,
		Tables:      tables,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Success:     totalMismatches == 0 && len(failures) == 0,
		Errors:      reportErrors,
		Verify: &aggregator.VerifyMetrics{
			RowsMatched: totalMatched,
			Mismatches:  totalMismatches,
			DurationMs:  durationMs,
		},
	}
}

func (w *Worker) verifyTable(ctx context.Context, table string) (matched, mismatches int64, failures []string) {
	ts, ok := w.cfg.Registry.GetTable(table)
	if !ok {
		return 0, 0, []string{errs.NewConfigError(table, "unknown table in verify run", nil).Error()}
	}
	pkCols := ts.PKColumns()
	if len(pkCols) == 0 {
		return 0, 0, []string{fmt.Sprintf("table %q declares no primary key", table)}
	}

	if err := w.awaitRowCount(ctx, table, w.cfg.RowCount); err != nil {
		return 0, 0, []string{fmt.Sprintf("table %q: %v", table, err)}
	}

	gen := generator.New(w.cfg.Seed, table)
	if w.cfg.FKRange > 0 {
		gen = gen.WithFKRange(w.cfg.FKRange)
	}
	comparator := w.cfg.Comparator

	for ordinal := int64(0); ordinal < w.cfg.RowCount; ordinal++ {
		select {
		case <-ctx.Done():
			failures = append(failures, fmt.Sprintf("table %q: %v", table, ctx.Err()))
			return matched, mismatches, failures
		default:
		}

		expected := gen.Row(ordinal, ts)
		id, err := thingID(pkCols, expected)
		if err != nil {
			mismatches++
			failures = append(failures, fmt.Sprintf("table %q row %d: %v", table, ordinal, err))
			continue
		}

		record, found, err := w.cfg.Store.Get(ctx, utm.Thing{Table: table, ID: id})
		if err != nil {
			mismatches++
			failures = append(failures, fmt.Sprintf("table %q row %d: reading target: %v", table, ordinal, err))
			continue
		}
		if !found {
			mismatches++
			failures = append(failures, fmt.Sprintf("table %q row %d: missing from target", table, ordinal))
			continue
		}

		actual := mergePK(record, pkCols, id)
		if diff := comparator.Diff(stripPK(expected, pkCols), stripPK(actual, pkCols)); len(diff) > 0 {
			sort.Strings(diff)
			mismatches++
			failures = append(failures, fmt.Sprintf("table %q row %d: columns disagree: %v", table, ordinal, diff))
			continue
		}

		matched++
	}

	if w.cfg.Log != nil {
		w.cfg.Log.Info("verified %s: %d matched, %d mismatched", table, matched, mismatches)
	}
	return matched, mismatches, failures
}

// awaitRowCount polls the target's row count for table until it reaches
// want or Timeout elapses: the convergence barrier.
func (w *Worker) awaitRowCount(ctx context.Context, table string, want int64) error {
	deadline := time.Now().Add(w.cfg.Timeout)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := w.cfg.Store.RowCount(ctx, table)
		if err != nil {
			return fmt.Errorf("polling row count: %w", err)
		}
		if int64(n) >= want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("convergence timeout: want %d rows, have %d after %s", want, n, w.cfg.Timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// thingID mirrors populate.StoreInserter's Thing.ID derivation so
// verify's lookups hit the exact identity populate wrote under.
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

// mergePK reconstitutes a full row (PK columns included) from a target
// Record, whose Data never carries its own PK columns — the PK values
// come back out of id instead.
func mergePK(record utm.Record, pkCols []string, id utm.Value) map[string]utm.Value {
	out := make(map[string]utm.Value, len(record.Data)+len(pkCols))
	for k, v := range record.Data {
		out[k] = v
	}
	if len(pkCols) == 1 {
		out[pkCols[0]] = id
		return out
	}
	if fields, ok := id.AsObject(); ok {
		for k, v := range fields {
			out[k] = v
		}
	}
	return out
}

func stripPK(row map[string]utm.Value, pkCols []string) map[string]utm.Value {
	out := make(map[string]utm.Value, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, pk := range pkCols {
		delete(out, pk)
	}
	return out
}
