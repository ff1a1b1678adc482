package pgtrigger

import (
	"testing"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(`
tables:
  - name: orders
    primary_key: id
    columns:
      - {name: id, type: int64}
      - {name: total, type: float64}
`))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestToChangeUpdateKeepsNonPKColumns(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	change, ok, err := s.toChange("orders", "update", []byte(`{"id": 3, "total": 19.99}`))
	if err != nil || !ok {
		t.Fatalf("unexpected ok=%v err=%v", ok, err)
	}
	if change.Op != utm.OpUpdate {
		t.Fatalf("expected OpUpdate, got %v", change.Op)
	}
	if _, present := change.Data["id"]; present {
		t.Fatal("expected id stripped from Data")
	}
	if _, present := change.Data["total"]; !present {
		t.Fatal("expected total retained in Data")
	}
}

func TestToChangeMalformedRowDataErrors(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	_, _, err := s.toChange("orders", "insert", []byte(`not json`))
	if err == nil {
		t.Fatal("expected malformed row_data to error")
	}
}

func TestCheckpointReflectsLastPolledID(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	s.last = 99
	cp := s.Checkpoint()
	if cp.Kind != utm.CheckpointPostgresSeq || cp.SequenceID != 99 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
}
