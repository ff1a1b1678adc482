// Package mysqltrigger realizes capture.Source for MySQL by the
// trigger/audit-table strategy: AFTER INSERT/UPDATE/DELETE triggers on
// each tracked table append a
// JSON row snapshot to a shared audit table, polled here in
// auto-incrementing change_id order, the MySQL analogue of
// capture/pgtrigger.
package mysqltrigger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/convert/jsonconv"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

const auditTable = "_convergedb_sync_changes"

// Config parameterizes a Source.
type Config struct {
	DB            *sql.DB
	Registry      *schema.Registry
	BatchSize     int
	MaxEmptyPolls int
	Log           *logger.Logger
}

// Source is the trigger/audit-table capture.Source for MySQL.
type Source struct {
	cfg    Config
	tables []string
	last   int64
}

func New(cfg Config) *Source {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Source{cfg: cfg}
}

func (s *Source) Initialize(ctx context.Context) error {
	_, err := s.cfg.DB.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			change_id  BIGINT AUTO_INCREMENT PRIMARY KEY,
			table_name VARCHAR(255) NOT NULL,
			op         VARCHAR(16) NOT NULL,
			row_data   JSON,
			changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, auditTable))
	if err != nil {
		return errs.NewSourceError("mysql", "failed to create audit table", err, false)
	}
	return nil
}

func (s *Source) SetupTracking(ctx context.Context, tables []string) error {
	s.tables = tables
	for _, table := range tables {
		for _, op := range []string{"INSERT", "UPDATE", "DELETE"} {
			triggerName := fmt.Sprintf("_convergedb_sync_trg_%s_%s", table, strings.ToLower(op))
			row := "NEW"
			if op == "DELETE" {
				row = "OLD"
			}
			cols, err := s.columnList(table)
			if err != nil {
				return err
			}
			jsonObject := jsonObjectExpr(cols, row)
			stmt := fmt.Sprintf(`
				DROP TRIGGER IF EXISTS %s;
				CREATE TRIGGER %s AFTER %s ON %s
				FOR EACH ROW
				INSERT INTO %s (table_name, op, row_data) VALUES ('%s', '%s', %s)`,
				triggerName, triggerName, op, table, auditTable, table, strings.ToLower(op), jsonObject)
			if _, err := s.cfg.DB.ExecContext(ctx, stmt); err != nil {
				return errs.NewSourceError("mysql", fmt.Sprintf("failed to install %s trigger on %q", op, table), err, false)
			}
		}
	}
	return nil
}

func (s *Source) columnList(table string) ([]string, error) {
	t, ok := s.cfg.Registry.GetTable(table)
	if !ok {
		return nil, errs.NewSourceError("mysql", fmt.Sprintf("unknown table %q in tracking request", table), nil, false)
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	return cols, nil
}

func jsonObjectExpr(cols []string, row string) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("'%s', %s.%s", c, row, c))
	}
	return "JSON_OBJECT(" + strings.Join(parts, ", ") + ")"
}

func (s *Source) Changes(ctx context.Context, from utm.Checkpoint) (capture.Stream, error) {
	if from.Kind == utm.CheckpointMySQLBinlog {
		s.last = int64(from.BinlogPos)
	}
	return capture.NewPollStream(s.poll, s.cfg.MaxEmptyPolls, nil), nil
}

func (s *Source) Checkpoint() utm.Checkpoint {
	return utm.Checkpoint{Kind: utm.CheckpointMySQLBinlog, BinlogPos: uint32(s.last)}
}

func (s *Source) Cleanup(ctx context.Context) error {
	for _, table := range s.tables {
		for _, op := range []string{"insert", "update", "delete"} {
			triggerName := fmt.Sprintf("_convergedb_sync_trg_%s_%s", table, op)
			if _, err := s.cfg.DB.ExecContext(ctx, fmt.Sprintf("DROP TRIGGER IF EXISTS %s", triggerName)); err != nil {
				s.logf("cleanup: failed to drop trigger %q: %v", triggerName, err)
			}
		}
	}
	return nil
}

func (s *Source) poll(ctx context.Context) ([]utm.Change, utm.Checkpoint, error) {
	if len(s.tables) == 0 {
		return nil, utm.Checkpoint{}, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(s.tables)), ",")
	args := []any{s.last}
	for _, t := range s.tables {
		args = append(args, t)
	}
	args = append(args, s.cfg.BatchSize)

	query := fmt.Sprintf(`
		SELECT change_id, table_name, op, row_data
		FROM %s
		WHERE change_id > ? AND table_name IN (%s)
		ORDER BY change_id
		LIMIT ?`, auditTable, placeholders)

	rows, err := s.cfg.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utm.Checkpoint{}, errs.NewSourceError("mysql", "failed to poll audit table", err, true)
	}
	defer rows.Close()

	var changes []utm.Change
	maxID := s.last
	for rows.Next() {
		var changeID int64
		var table, op string
		var rowData []byte
		if err := rows.Scan(&changeID, &table, &op, &rowData); err != nil {
			return nil, utm.Checkpoint{}, errs.NewSourceError("mysql", "failed to scan audit row", err, true)
		}
		if changeID > maxID {
			maxID = changeID
		}
		change, ok, err := s.toChange(table, op, rowData)
		if err != nil {
			return nil, utm.Checkpoint{}, err
		}
		if ok {
			changes = append(changes, change)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, utm.Checkpoint{}, errs.NewSourceError("mysql", "error iterating audit rows", err, true)
	}
	s.last = maxID
	return changes, utm.Checkpoint{Kind: utm.CheckpointMySQLBinlog, BinlogPos: uint32(maxID)}, nil
}

func (s *Source) toChange(table, op string, rowData []byte) (utm.Change, bool, error) {
	tv, err := jsonconv.ParseDocument(rowData, jsonconv.Config{})
	if err != nil {
		return utm.Change{}, false, errs.NewConversionError(errs.UnsupportedType, string(rowData), "object", fmt.Sprintf("malformed row_data for table %q", table))
	}
	fields, _ := tv.Value.AsObject()

	pkCols := s.cfg.Registry.PKColumns(table)
	pk := make(map[string]utm.Value, len(pkCols))
	for _, col := range pkCols {
		if v, ok := fields[col]; ok {
			pk[col] = v
		}
	}
	var target utm.Thing
	if len(pk) == 1 {
		for _, v := range pk {
			target = utm.Thing{Table: table, ID: v}
		}
	} else {
		target = utm.Thing{Table: table, ID: utm.ObjectValue(pk)}
	}

	switch op {
	case "insert":
		return utm.Change{Op: utm.OpCreate, Target: target, Data: stripPK(fields, pkCols)}, true, nil
	case "update":
		return utm.Change{Op: utm.OpUpdate, Target: target, Data: stripPK(fields, pkCols)}, true, nil
	case "delete":
		return utm.Change{Op: utm.OpDelete, Target: target}, true, nil
	default:
		return utm.Change{}, false, nil
	}
}

func stripPK(fields map[string]utm.Value, pkCols []string) map[string]utm.Value {
	out := make(map[string]utm.Value, len(fields))
	pkSet := make(map[string]struct{}, len(pkCols))
	for _, c := range pkCols {
		pkSet[c] = struct{}{}
	}
	for k, v := range fields {
		if _, isPK := pkSet[k]; isPK {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Source) logf(format string, args ...any) {
	if s.cfg.Log != nil {
		s.cfg.Log.Warn(format, args...)
	}
}
