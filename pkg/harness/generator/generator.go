// Package generator implements the load/verify harness's deterministic
// row generation: given the same (seed, table, ordinal), populate and
// verify workers must derive byte-identical rows, run as independent
// processes with no shared state beyond the seed and schema.
//
// A fresh Generator per table keeps each table's row index starting at
// 0 regardless of how many rows a previous table generated, and the
// same seed reproduces the same database across runs.
package generator

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

// DefaultFKRange bounds the deterministic foreign-key values Row
// produces for "fk:<table>" generator roles when the caller does not
// override it via WithFKRange.
const DefaultFKRange = 1000

// Generator produces deterministic rows for one (seed, table) pair. A
// fresh Generator must be used per table: its row index always starts
// at ordinal 0 regardless of how many rows a previous table generated.
type Generator struct {
	seed    int64
	table   string
	fkRange int64
}

// New returns a Generator for table under seed.
func New(seed int64, table string) *Generator {
	return &Generator{seed: seed, table: table, fkRange: DefaultFKRange}
}

// WithFKRange overrides the range foreign-key values are drawn from.
func (g *Generator) WithFKRange(n int64) *Generator {
	g.fkRange = n
	return g
}

// Row deterministically derives the ordinal-th row (0-based) of table
// under ts's schema. Calling Row(ordinal, ts) twice with the same
// arguments — in the same process, a different process, or a different
// run entirely — always returns an Equal-by-value row, so verify can
// re-derive what populate should have written and compare.
func (g *Generator) Row(ordinal int64, ts schema.TableSchema) map[string]utm.Value {
	out := make(map[string]utm.Value, len(ts.Columns))
	for _, col := range ts.Columns {
		out[col.Name] = g.columnValue(col, ordinal)
	}
	return out
}

func (g *Generator) columnValue(col schema.ColumnSchema, ordinal int64) utm.Value {
	switch {
	case col.PK || col.GeneratorSeedRole == "pk":
		return g.pkValue(col.Type, ordinal)
	case len(col.GeneratorSeedRole) > 3 && col.GeneratorSeedRole[:3] == "fk:":
		return g.fkValue(col.Type, col.GeneratorSeedRole[3:], ordinal)
	default:
		return g.valueFor(col, ordinal)
	}
}

// pkValue derives a primary-key value directly from ordinal, so row N
// of a table is always reachable at the same key across runs — the
// property the verifier's "SELECT by generated ID" lookup depends on.
func (g *Generator) pkValue(t utm.Type, ordinal int64) utm.Value {
	switch t.Kind {
	case utm.KindInt8, utm.KindInt16, utm.KindInt32, utm.KindInt64:
		return utm.IntValue(t.Kind, ordinal+1)
	case utm.KindUuid:
		return utm.UuidValue(deterministicUUID(g.seed, g.table, "pk", ordinal))
	default:
		return utm.TextValue(fmt.Sprintf("%s-%d", g.table, ordinal+1))
	}
}

// fkValue derives a value in [1, fkRange] referencing refTable's
// deterministic key space, so a generated foreign key always resolves
// to a row that populate also generated for refTable (assuming refTable
// was populated with row_count >= fkRange).
func (g *Generator) fkValue(t utm.Type, refTable string, ordinal int64) utm.Value {
	h := g.hashFor(refTable, "fk", ordinal)
	ref := int64(h%uint64(g.fkRange)) + 1
	switch t.Kind {
	case utm.KindInt8, utm.KindInt16, utm.KindInt32, utm.KindInt64:
		return utm.IntValue(t.Kind, ref)
	default:
		return utm.TextValue(fmt.Sprintf("%s-%d", refTable, ref))
	}
}

func (g *Generator) valueFor(col schema.ColumnSchema, ordinal int64) utm.Value {
	rng := rand.New(rand.NewSource(int64(g.hashFor(col.Name, "value", ordinal))))
	t := col.Type

	switch t.Kind {
	case utm.KindBool:
		return utm.BoolValue(rng.Intn(2) == 1)
	case utm.KindInt8, utm.KindInt16, utm.KindInt32, utm.KindInt64:
		return utm.IntValue(t.Kind, rng.Int63n(1_000_000))
	case utm.KindFloat32:
		return utm.Float32Value(float32(rng.Float64() * 1000))
	case utm.KindFloat64:
		return utm.Float64Value(rng.Float64() * 1_000_000)
	case utm.KindDecimal:
		literal := fmt.Sprintf("%d.%02d", rng.Int63n(10_000), rng.Intn(100))
		return utm.DecimalValue(literal)
	case utm.KindChar, utm.KindVarChar, utm.KindText:
		return utm.StringValue(t.Kind, fmt.Sprintf("%s_%d_%d", col.Name, ordinal, rng.Intn(1_000_000)))
	case utm.KindUuid:
		return utm.UuidValue(deterministicUUID(g.seed, g.table+"."+col.Name, "value", ordinal))
	case utm.KindDate:
		days := rng.Intn(365 * 30)
		d := time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
		return utm.DateValue(utm.CivilDate{Year: d.Year(), Month: d.Month(), Day: d.Day()})
	case utm.KindLocalDateTime, utm.KindLocalDateTimeNano:
		secs := rng.Int63n(int64(365 * 24 * time.Hour / time.Second) * 30)
		ts := time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(secs) * time.Second)
		return utm.LocalDateTimeValue(t.Kind, ts)
	case utm.KindZonedDateTime:
		secs := rng.Int63n(int64(365 * 24 * time.Hour / time.Second) * 30)
		ts := time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(secs) * time.Second)
		return utm.ZonedDateTimeValue(ts)
	default:
		return utm.TextValue(fmt.Sprintf("%s_%d", col.Name, ordinal))
	}
}

// hashFor mixes the generator's seed, table, a role-specific salt, and
// the row ordinal into a single deterministic 64-bit value.
func (g *Generator) hashFor(salt, role string, ordinal int64) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%s|%d", g.seed, g.table, role, salt, ordinal)
	return h.Sum64()
}

// deterministicUUID derives a version-4-shaped uuid.UUID from the same
// hash inputs as every other generated value, rather than drawing from
// google/uuid's random source (which is not seedable).
func deterministicUUID(seed int64, salt, role string, ordinal int64) uuid.UUID {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%d", seed, salt, role, ordinal)
	a := h.Sum64()
	h.Reset()
	fmt.Fprintf(h, "%d|%s|%s|%d|2", seed, salt, role, ordinal)
	b := h.Sum64()

	var id uuid.UUID
	for i := 0; i < 8; i++ {
		id[i] = byte(a >> (8 * (7 - i)))
		id[i+8] = byte(b >> (8 * (7 - i)))
	}
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id
}
