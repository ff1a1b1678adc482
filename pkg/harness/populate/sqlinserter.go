package populate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

// Dialect names a SQL source's identifier-quoting and placeholder
// conventions, one of MySQL or PostgreSQL.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SQLInserter populates a MySQL or PostgreSQL source over database/sql:
// a per-table CREATE TABLE IF NOT EXISTS from the declared schema
// followed by batched prepared-statement inserts, one transaction per
// batch.
type SQLInserter struct {
	DB       *sql.DB
	Dialect  Dialect
	Registry *schema.Registry
}

// CreateTable issues a CREATE TABLE IF NOT EXISTS matching ts's columns
// and primary key.
func (s SQLInserter) CreateTable(ctx context.Context, table string, ts schema.TableSchema) error {
	defs := make([]string, 0, len(ts.Columns)+1)
	for _, col := range ts.Columns {
		def := quoteIdent(s.Dialect, col.Name) + " " + sqlType(s.Dialect, col.Type)
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if pk := ts.PKColumns(); len(pk) > 0 {
		quoted := make([]string, len(pk))
		for i, p := range pk {
			quoted[i] = quoteIdent(s.Dialect, p)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(s.Dialect, table), strings.Join(defs, ", "))
	_, err := s.DB.ExecContext(ctx, stmt)
	return err
}

// InsertBatch inserts rows in one transaction via a prepared statement,
// column order taken from the table's registered schema.
func (s SQLInserter) InsertBatch(ctx context.Context, table string, rows []map[string]utm.Value) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ts, ok := s.Registry.GetTable(table)
	if !ok {
		return 0, fmt.Errorf("populate: unknown table %q", table)
	}
	colNames := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		colNames[i] = c.Name
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insertStatement(table, colNames))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range rows {
		args := make([]any, len(colNames))
		for j, name := range colNames {
			args[j] = nativeValue(row[name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return i, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s SQLInserter) insertStatement(table string, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(s.Dialect, c)
		placeholders[i] = s.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.Dialect, table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

func (s SQLInserter) placeholder(n int) string {
	if s.Dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func quoteIdent(d Dialect, name string) string {
	if d == DialectMySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// sqlType maps a UniversalType to the declared column type of d. Widths
// follow the narrowest native type that round-trips the generator's
// values; this mapping only needs to support what harness/generator
// actually emits, not the full UniversalType surface.
func sqlType(d Dialect, t utm.Type) string {
	switch t.Kind {
	case utm.KindBool:
		if d == DialectMySQL {
			return "TINYINT(1)"
		}
		return "BOOLEAN"
	case utm.KindInt8:
		return "SMALLINT"
	case utm.KindInt16:
		return "SMALLINT"
	case utm.KindInt32:
		return "INTEGER"
	case utm.KindInt64:
		return "BIGINT"
	case utm.KindFloat32:
		if d == DialectMySQL {
			return "FLOAT"
		}
		return "REAL"
	case utm.KindFloat64:
		return "DOUBLE PRECISION"
	case utm.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case utm.KindChar:
		return fmt.Sprintf("CHAR(%d)", t.Length)
	case utm.KindVarChar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case utm.KindText:
		return "TEXT"
	case utm.KindBytes, utm.KindBlob:
		if d == DialectMySQL {
			return "BLOB"
		}
		return "BYTEA"
	case utm.KindUuid:
		if d == DialectMySQL {
			return "CHAR(36)"
		}
		return "UUID"
	case utm.KindDate:
		return "DATE"
	case utm.KindLocalDateTime, utm.KindLocalDateTimeNano:
		return "TIMESTAMP"
	case utm.KindZonedDateTime:
		if d == DialectMySQL {
			return "TIMESTAMP"
		}
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// nativeValue converts a generated utm.Value into an argument
// database/sql can bind directly.
func nativeValue(v utm.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case utm.KindBool:
		b, _ := v.AsBool()
		return b
	case utm.KindInt8, utm.KindInt16, utm.KindInt32, utm.KindInt64:
		n, _ := v.AsInt()
		return n
	case utm.KindFloat32:
		f, _ := v.AsFloat32()
		return f
	case utm.KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case utm.KindDecimal:
		d, _ := v.AsDecimal()
		return d.Text
	case utm.KindUuid:
		id, _ := v.AsUUID()
		return id.String()
	case utm.KindDate:
		d, _ := v.AsDate()
		return d.String()
	case utm.KindLocalDateTime, utm.KindLocalDateTimeNano, utm.KindZonedDateTime:
		t, _ := v.AsDateTime()
		return t
	default:
		s, _ := v.AsString()
		return s
	}
}
