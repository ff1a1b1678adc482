package generator

import (
	"testing"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

func ordersSchema() schema.TableSchema {
	return schema.TableSchema{
		Name: "orders",
		Columns: []schema.ColumnSchema{
			{Name: "id", Type: utm.Int64(), PK: true},
			{Name: "customer_id", Type: utm.Int64(), GeneratorSeedRole: "fk:customers"},
			{Name: "total", Type: utm.Float64()},
			{Name: "note", Type: utm.Text()},
			{Name: "external_ref", Type: utm.Uuid()},
			{Name: "placed_on", Type: utm.Date()},
			{Name: "created_at", Type: utm.LocalDateTime()},
			{Name: "active", Type: utm.Bool()},
			{Name: "price", Type: utm.Decimal(10, 2)},
		},
	}
}

func TestRowIsDeterministicAcrossGeneratorInstances(t *testing.T) {
	ts := ordersSchema()
	a := New(42, "orders").Row(7, ts)
	b := New(42, "orders").Row(7, ts)

	for _, col := range ts.Columns {
		if !a[col.Name].Equal(b[col.Name]) {
			t.Fatalf("column %q not equal across instances: %v vs %v", col.Name, a[col.Name], b[col.Name])
		}
	}
}

func TestRowDiffersByOrdinal(t *testing.T) {
	ts := ordersSchema()
	g := New(42, "orders")
	r0 := g.Row(0, ts)
	r1 := g.Row(1, ts)

	if r0["id"].Equal(r1["id"]) {
		t.Fatalf("expected different PKs for different ordinals")
	}
}

func TestRowDiffersBySeed(t *testing.T) {
	ts := ordersSchema()
	a := New(1, "orders").Row(0, ts)
	b := New(2, "orders").Row(0, ts)

	if a["total"].Equal(b["total"]) {
		t.Fatalf("expected different values under different seeds")
	}
}

func TestPKValueIsOneIndexedFromOrdinal(t *testing.T) {
	ts := ordersSchema()
	row := New(1, "orders").Row(0, ts)

	n, ok := row["id"].AsInt()
	if !ok {
		t.Fatalf("expected int PK, got %v", row["id"])
	}
	if n != 1 {
		t.Fatalf("expected ordinal 0 to produce PK 1, got %d", n)
	}
}

func TestFKValueWithinConfiguredRange(t *testing.T) {
	ts := ordersSchema()
	g := New(1, "orders").WithFKRange(10)

	for ordinal := int64(0); ordinal < 50; ordinal++ {
		row := g.Row(ordinal, ts)
		n, ok := row["customer_id"].AsInt()
		if !ok {
			t.Fatalf("expected int FK, got %v", row["customer_id"])
		}
		if n < 1 || n > 10 {
			t.Fatalf("FK value %d outside configured range [1,10]", n)
		}
	}
}

func TestFreshGeneratorRestartsOrdinalSpace(t *testing.T) {
	ts := ordersSchema()
	first := New(9, "orders").Row(0, ts)
	second := New(9, "orders").Row(0, ts)

	if !first["id"].Equal(second["id"]) {
		t.Fatalf("expected a fresh generator for the same table to restart at the same ordinal-0 row")
	}
}

func TestUuidColumnProducesVersion4Uuid(t *testing.T) {
	ts := ordersSchema()
	row := New(1, "orders").Row(3, ts)

	id, ok := row["external_ref"].AsUUID()
	if !ok {
		t.Fatalf("expected uuid value, got %v", row["external_ref"])
	}
	if id.Version() != 4 {
		t.Fatalf("expected version 4 uuid, got version %d", id.Version())
	}
}

func TestRowCoversEveryColumn(t *testing.T) {
	ts := ordersSchema()
	row := New(1, "orders").Row(0, ts)

	if len(row) != len(ts.Columns) {
		t.Fatalf("expected %d columns, got %d", len(ts.Columns), len(row))
	}
	for _, col := range ts.Columns {
		if _, ok := row[col.Name]; !ok {
			t.Fatalf("missing generated value for column %q", col.Name)
		}
	}
}
