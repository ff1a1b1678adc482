package pgconv

import (
	"testing"

	"github.com/convergedb/sync/pkg/utm"
)

func TestNumericPreservesTextualForm(t *testing.T) {
	col := ColumnDescriptor{NativeType: "numeric", Precision: 12, Scale: 2}
	tv, err := Convert("99.90", col, Config{})
	if err != nil {
		t.Fatal(err)
	}
	lit, ok := tv.Value.AsDecimal()
	if !ok || lit.Text != "99.90" {
		t.Fatalf("expected literal preserved, got %+v", lit)
	}
}

func TestByteaHexDecode(t *testing.T) {
	col := ColumnDescriptor{NativeType: "bytea"}
	tv, err := Convert(`\x0102ff`, col, Config{})
	if err != nil {
		t.Fatal(err)
	}
	b, ok := tv.Value.AsBytes()
	if !ok || len(b) != 3 || b[2] != 0xff {
		t.Fatalf("unexpected bytes: %+v", b)
	}
}

// TestCompositePKRowBecomesObjectKeyedThing checks that a trigger-
// captured row with a composite primary key round-trips into a
// utm.Change targeting an Object-keyed Thing.
func TestCompositePKRowBecomesObjectKeyedThing(t *testing.T) {
	row := &Row{
		Schema: "public",
		Table:  "order_items",
		PrimaryKey: map[string]utm.Value{
			"order_id": utm.IntValue(utm.KindInt64, 7),
			"line_no":  utm.IntValue(utm.KindInt32, 3),
		},
		Columns: map[string]utm.Value{
			"order_id": utm.IntValue(utm.KindInt64, 7),
			"line_no":  utm.IntValue(utm.KindInt32, 3),
			"sku":      utm.TextValue("WIDGET-1"),
		},
	}
	action := Action{Kind: ActionInsert, Row: row}
	change, ok := action.ToChange(DefaultThing)
	if !ok {
		t.Fatal("expected change")
	}
	if change.Op != utm.OpCreate {
		t.Fatalf("expected OpCreate, got %v", change.Op)
	}
	obj, ok := change.Target.ID.AsObject()
	if !ok || len(obj) != 2 {
		t.Fatalf("expected composite-key object ID, got %+v", change.Target.ID)
	}
}

// TestWALDeleteCarriesNilData checks that a WAL DELETE action carries
// only the old tuple's primary key, with no column data attached to the
// resulting change.
func TestWALDeleteCarriesNilData(t *testing.T) {
	row := &Row{
		Schema:     "public",
		Table:      "accounts",
		PrimaryKey: map[string]utm.Value{"id": utm.IntValue(utm.KindInt64, 42)},
	}
	action := Action{Kind: ActionDelete, Row: row}
	change, ok := action.ToChange(DefaultThing)
	if !ok {
		t.Fatal("expected change")
	}
	if change.Op != utm.OpDelete {
		t.Fatalf("expected OpDelete, got %v", change.Op)
	}
	if change.Data != nil {
		t.Fatalf("expected nil data on delete, got %+v", change.Data)
	}
	id, _ := change.Target.ID.AsInt()
	if id != 42 {
		t.Fatalf("expected pk id 42, got %d", id)
	}
}

func TestBeginCommitActionsProduceNoChange(t *testing.T) {
	for _, kind := range []ActionKind{ActionBegin, ActionCommit} {
		if _, ok := (Action{Kind: kind}).ToChange(DefaultThing); ok {
			t.Fatalf("expected no change for %v", kind)
		}
	}
}
