package fullsync

import (
	"context"
	"testing"

	"github.com/convergedb/sync/pkg/applier"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target/memstore"
	"github.com/convergedb/sync/pkg/utm"
)

type fakeSource struct {
	rows map[string][]Row
}

func (f *fakeSource) ReadTable(ctx context.Context, table string, batchSize int, yield func(Row) error) error {
	for _, row := range f.rows[table] {
		if err := yield(row); err != nil {
			return err
		}
	}
	return nil
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(`
tables:
  - name: order_items
    primary_key: [order_id, line_no]
    columns:
      - {name: order_id, type: int64}
      - {name: line_no, type: int32}
      - {name: sku, type: text}
  - name: users
    primary_key: id
    columns:
      - {name: id, type: int64}
      - {name: name, type: text}
`))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestFullSyncStripsPKFromData(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	a := applier.New(store, nil)
	src := &fakeSource{rows: map[string][]Row{
		"users": {
			{Values: map[string]utm.Value{
				"id":   utm.IntValue(utm.KindInt64, 1),
				"name": utm.TextValue("Ada"),
			}},
		},
	}}
	exec := &Executor{Source: src, Registry: reg, Applier: a}
	if err := exec.Run(context.Background(), []string{"users"}); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.ListTable(context.Background(), "users")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0].Data["id"]; ok {
		t.Fatal("expected PK column stripped from data")
	}
	if _, ok := rows[0].Data["name"]; !ok {
		t.Fatal("expected non-PK column preserved")
	}
}

func TestCompositePKAuditRowIDMismatchErrors(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	a := applier.New(store, nil)
	src := &fakeSource{rows: map[string][]Row{
		"order_items": {
			{
				Values: map[string]utm.Value{
					"order_id": utm.IntValue(utm.KindInt64, 7),
					"line_no":  utm.IntValue(utm.KindInt32, 3),
					"sku":      utm.TextValue("WIDGET"),
				},
				AuditRowID: []utm.Value{
					utm.IntValue(utm.KindInt64, 7),
					utm.IntValue(utm.KindInt32, 99), // mismatch
				},
			},
		},
	}}
	exec := &Executor{Source: src, Registry: reg, Applier: a}
	if err := exec.Run(context.Background(), []string{"order_items"}); err == nil {
		t.Fatal("expected audit row_id mismatch error")
	}
}

func TestCompositePKAuditRowIDAgreementSucceeds(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	a := applier.New(store, nil)
	src := &fakeSource{rows: map[string][]Row{
		"order_items": {
			{
				Values: map[string]utm.Value{
					"order_id": utm.IntValue(utm.KindInt64, 7),
					"line_no":  utm.IntValue(utm.KindInt32, 3),
					"sku":      utm.TextValue("WIDGET"),
				},
				AuditRowID: []utm.Value{
					utm.IntValue(utm.KindInt64, 7),
					utm.IntValue(utm.KindInt32, 3),
				},
			},
		},
	}}
	exec := &Executor{Source: src, Registry: reg, Applier: a}
	if err := exec.Run(context.Background(), []string{"order_items"}); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.ListTable(context.Background(), "order_items")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestDryRunSkipsTargetWrites(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	a := applier.New(store, nil)
	src := &fakeSource{rows: map[string][]Row{
		"users": {{Values: map[string]utm.Value{"id": utm.IntValue(utm.KindInt64, 1), "name": utm.TextValue("Ada")}}},
	}}
	exec := &Executor{Source: src, Registry: reg, Applier: a, DryRun: true}
	if err := exec.Run(context.Background(), []string{"users"}); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.ListTable(context.Background(), "users")
	if len(rows) != 0 {
		t.Fatalf("expected no rows written in dry run, got %d", len(rows))
	}
	if exec.RowsProcessed() != 1 {
		t.Fatalf("expected 1 row processed even in dry run, got %d", exec.RowsProcessed())
	}
}
