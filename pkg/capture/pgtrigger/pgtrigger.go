// Package pgtrigger realizes capture.Source for PostgreSQL by the
// trigger/audit-table strategy: an AFTER INSERT/UPDATE/DELETE trigger on
// each tracked table appends a row_to_json snapshot to a shared audit
// table, and this source polls that table in change_id order. It is the
// fallback when logical decoding (capture/pgwal) is unavailable
// (insufficient replication privilege, a managed Postgres that disallows
// wal_level=logical).
package pgtrigger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

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
	Pool          *pgxpool.Pool
	Registry      *schema.Registry
	BatchSize     int
	MaxEmptyPolls int // 0 means poll forever
	Log           *logger.Logger
}

// Source is the trigger/audit-table capture.Source for PostgreSQL.
type Source struct {
	cfg    Config
	tables []string
	last   int64
}

// New returns a Source. Call Initialize then SetupTracking before Changes.
func New(cfg Config) *Source {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Source{cfg: cfg}
}

func (s *Source) Initialize(ctx context.Context) error {
	_, err := s.cfg.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			change_id   BIGSERIAL PRIMARY KEY,
			table_name  TEXT NOT NULL,
			op          TEXT NOT NULL,
			row_data    JSONB,
			changed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, auditTable))
	if err != nil {
		return errs.NewSourceError("postgresql", "failed to create audit table", err, false)
	}
	return nil
}

func (s *Source) SetupTracking(ctx context.Context, tables []string) error {
	s.tables = tables
	if _, err := s.cfg.Pool.Exec(ctx, triggerFunctionSQL); err != nil {
		return errs.NewSourceError("postgresql", "failed to install trigger function", err, false)
	}
	for _, table := range tables {
		triggerName := fmt.Sprintf("_convergedb_sync_trg_%s", table)
		stmt := fmt.Sprintf(`
			DROP TRIGGER IF EXISTS %s ON %s;
			CREATE TRIGGER %s
				AFTER INSERT OR UPDATE OR DELETE ON %s
				FOR EACH ROW EXECUTE FUNCTION _convergedb_sync_record_change()`,
			triggerName, table, triggerName, table)
		if _, err := s.cfg.Pool.Exec(ctx, stmt); err != nil {
			return errs.NewSourceError("postgresql", fmt.Sprintf("failed to install trigger on %q", table), err, false)
		}
	}
	return nil
}

const triggerFunctionSQL = `
CREATE OR REPLACE FUNCTION _convergedb_sync_record_change() RETURNS TRIGGER AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		INSERT INTO ` + auditTable + ` (table_name, op, row_data) VALUES (TG_TABLE_NAME, 'delete', row_to_json(OLD));
		RETURN OLD;
	ELSE
		INSERT INTO ` + auditTable + ` (table_name, op, row_data) VALUES (TG_TABLE_NAME, lower(TG_OP), row_to_json(NEW));
		RETURN NEW;
	END IF;
END;
$$ LANGUAGE plpgsql;
`

func (s *Source) Changes(ctx context.Context, from utm.Checkpoint) (capture.Stream, error) {
	if from.Kind == utm.CheckpointPostgresSeq {
		s.last = from.SequenceID
	}
	stream := capture.NewPollStream(s.poll, s.cfg.MaxEmptyPolls, nil)
	return stream, nil
}

func (s *Source) Checkpoint() utm.Checkpoint {
	return utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: s.last}
}

func (s *Source) Cleanup(ctx context.Context) error {
	for _, table := range s.tables {
		triggerName := fmt.Sprintf("_convergedb_sync_trg_%s", table)
		stmt := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, triggerName, table)
		if _, err := s.cfg.Pool.Exec(ctx, stmt); err != nil {
			s.logf("cleanup: failed to drop trigger on %q: %v", table, err)
		}
	}
	return nil
}

func (s *Source) poll(ctx context.Context) ([]utm.Change, utm.Checkpoint, error) {
	placeholders := make([]string, 0, len(s.tables))
	args := []any{s.last, s.cfg.BatchSize}
	for i, table := range s.tables {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, table)
	}
	inClause := ""
	if len(placeholders) > 0 {
		inClause = " AND table_name IN (" + strings.Join(placeholders, ",") + ")"
	}
	query := fmt.Sprintf(`
		SELECT change_id, table_name, op, row_data
		FROM %s
		WHERE change_id > $1%s
		ORDER BY change_id
		LIMIT $2`, auditTable, inClause)

	rows, err := s.cfg.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, utm.Checkpoint{}, errs.NewSourceError("postgresql", "failed to poll audit table", err, true)
	}
	defer rows.Close()

	var changes []utm.Change
	var maxID int64 = s.last
	for rows.Next() {
		var changeID int64
		var table, op string
		var rowData []byte
		if err := rows.Scan(&changeID, &table, &op, &rowData); err != nil {
			return nil, utm.Checkpoint{}, errs.NewSourceError("postgresql", "failed to scan audit row", err, true)
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
		return nil, utm.Checkpoint{}, errs.NewSourceError("postgresql", "error iterating audit rows", err, true)
	}
	s.last = maxID
	return changes, utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: maxID}, nil
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
