// Package schema implements the schema registry: a stateless, read-only
// directory of table/column/index declarations loaded once at process
// start from a declarative YAML description, and the per-column
// generator hints the load/verify harness uses for deterministic row
// generation.
package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
)

// ColumnSchema describes one column's declared type and role.
type ColumnSchema struct {
	Name      string
	Type      utm.Type
	Nullable  bool
	PK        bool
	// GeneratorSeedRole documents which role this column plays in
	// deterministic row generation (e.g. "pk", "fk:orders", "value"),
	// consumed by harness/generator.
	GeneratorSeedRole string
}

// IndexSchema describes a secondary index.
type IndexSchema struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableSchema is one table/collection/label's declaration.
type TableSchema struct {
	Name         string
	Columns      []ColumnSchema
	Indexes      []IndexSchema
	CompositePK  []string // ordered PK column names; len==1 for a simple PK
}

// PKColumns returns the primary-key column names in declared order,
// whether declared as a single string or a list.
func (t TableSchema) PKColumns() []string {
	if len(t.CompositePK) > 0 {
		return t.CompositePK
	}
	var pks []string
	for _, c := range t.Columns {
		if c.PK {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// Column looks up a column by name.
func (t TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// Registry is the immutable, shared table directory for one run.
type Registry struct {
	tables map[string]TableSchema
	order  []string
}

// TableNames returns table names in declaration order.
func (r *Registry) TableNames() []string {
	return append([]string(nil), r.order...)
}

// GetTable looks up a table by name.
func (r *Registry) GetTable(name string) (TableSchema, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// PKColumns returns the primary-key column names for a table, or nil if
// the table is unknown.
func (r *Registry) PKColumns(table string) []string {
	t, ok := r.tables[table]
	if !ok {
		return nil
	}
	return t.PKColumns()
}

// InferIDType chooses between a numeric and string target id type for the
// given table/column.
// Integer-kinded PK columns map to the same integer type; everything else
// (including composite keys and UUID/ULID columns) maps to Text, which is
// what a trigger-mode audit row's JSONB row_id entries decode to before
// being re-typed.
func (r *Registry) InferIDType(table, column string) utm.Type {
	t, ok := r.tables[table]
	if !ok {
		return utm.Text()
	}
	col, ok := t.Column(column)
	if !ok {
		return utm.Text()
	}
	switch col.Type.Kind {
	case utm.KindInt8, utm.KindInt16, utm.KindInt32, utm.KindInt64:
		return col.Type
	default:
		return utm.Text()
	}
}

// rawDescription mirrors the on-disk YAML shape.
type rawDescription struct {
	Tables []rawTable `yaml:"tables"`
}

type rawTable struct {
	Name       string          `yaml:"name"`
	Columns    []rawColumn     `yaml:"columns"`
	PrimaryKey yaml.Node       `yaml:"primary_key"`
	Indexes    []rawIndex      `yaml:"indexes"`
}

type rawColumn struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Nullable  bool     `yaml:"nullable"`
	Width     int      `yaml:"width"`
	Length    int      `yaml:"length"`
	Precision int      `yaml:"precision"`
	Scale     int      `yaml:"scale"`
	Values    []string `yaml:"values"`
	Element   string   `yaml:"element"`
	Geometry  string   `yaml:"geometry"`
	SeedRole  string   `yaml:"seed_role"`
}

type rawIndex struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Load reads and parses a schema description file from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfigError(path, "failed to read schema file", err)
	}
	return Parse(data)
}

// Parse parses a schema description document already read into memory.
func Parse(data []byte) (*Registry, error) {
	var raw rawDescription
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.NewConfigError("", "failed to parse schema document", err)
	}

	reg := &Registry{tables: make(map[string]TableSchema)}
	for _, rt := range raw.Tables {
		table, err := parseTable(rt)
		if err != nil {
			return nil, err
		}
		reg.tables[table.Name] = table
		reg.order = append(reg.order, table.Name)
	}
	return reg, nil
}

func parseTable(rt rawTable) (TableSchema, error) {
	table := TableSchema{Name: rt.Name}

	for _, rc := range rt.Columns {
		t, err := ParseTypeName(rc)
		if err != nil {
			return TableSchema{}, errs.NewConfigError(fmt.Sprintf("%s.%s", rt.Name, rc.Name), err.Error(), err)
		}
		table.Columns = append(table.Columns, ColumnSchema{
			Name:              rc.Name,
			Type:              t,
			Nullable:          rc.Nullable,
			GeneratorSeedRole: rc.SeedRole,
		})
	}

	pk, err := parsePrimaryKey(rt.PrimaryKey)
	if err != nil {
		return TableSchema{}, errs.NewConfigError(rt.Name+".primary_key", err.Error(), err)
	}
	table.CompositePK = pk
	for i := range table.Columns {
		for _, p := range pk {
			if table.Columns[i].Name == p {
				table.Columns[i].PK = true
			}
		}
	}

	for _, ri := range rt.Indexes {
		table.Indexes = append(table.Indexes, IndexSchema{Name: ri.Name, Columns: ri.Columns, Unique: ri.Unique})
	}

	return table, nil
}

func parsePrimaryKey(node yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		return []string{s}, nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("primary_key must be a string or list of strings")
	}
}

// ParseTypeName resolves a column descriptor's spelled type name plus its
// modifier fields into a utm.Type.
func ParseTypeName(rc rawColumn) (utm.Type, error) {
	name := strings.ToLower(strings.TrimSpace(rc.Type))
	switch name {
	case "bool", "boolean":
		return utm.Bool(), nil
	case "int8", "tinyint":
		width := rc.Width
		if width == 0 {
			width = 8
		}
		return utm.Type{Kind: utm.KindInt8, Width: width}, nil
	case "int16", "smallint":
		return utm.Int16(), nil
	case "int32", "int", "integer":
		return utm.Int32(), nil
	case "int64", "bigint":
		return utm.Int64(), nil
	case "float32", "float":
		return utm.Float32(), nil
	case "float64", "double":
		return utm.Float64(), nil
	case "decimal", "numeric":
		return utm.Decimal(rc.Precision, rc.Scale), nil
	case "char":
		return utm.Char(rc.Length), nil
	case "varchar":
		return utm.VarChar(rc.Length), nil
	case "text":
		return utm.Text(), nil
	case "blob":
		return utm.Blob(), nil
	case "bytes":
		return utm.Bytes(), nil
	case "uuid":
		return utm.Uuid(), nil
	case "ulid":
		return utm.Ulid(), nil
	case "date":
		return utm.Date(), nil
	case "time":
		return utm.Time(), nil
	case "localdatetime", "local_date_time":
		return utm.LocalDateTime(), nil
	case "localdatetimenano", "local_date_time_nano":
		return utm.LocalDateTimeNano(), nil
	case "zoneddatetime", "zoned_date_time":
		return utm.ZonedDateTime(), nil
	case "duration":
		return utm.Duration(), nil
	case "json":
		return utm.JSON(), nil
	case "jsonb":
		return utm.JSONB(), nil
	case "object":
		return utm.Object(), nil
	case "thing":
		return utm.ThingType(), nil
	case "set":
		return utm.Set(rc.Values), nil
	case "enum":
		return utm.Enum(rc.Values), nil
	case "array":
		elemCol := rc
		elemCol.Type = rc.Element
		elemCol.Element = ""
		if rc.Element == "" {
			return utm.Type{}, fmt.Errorf("array column %q missing element type", rc.Name)
		}
		elem, err := ParseTypeName(elemCol)
		if err != nil {
			return utm.Type{}, err
		}
		return utm.Array(elem), nil
	case "geometry":
		gt := utm.GeometryType(rc.Geometry)
		if gt == "" {
			gt = utm.GeometryPoint
		}
		return utm.Geometry(gt), nil
	default:
		return utm.Type{}, fmt.Errorf("unknown universal type %q", rc.Type)
	}
}
