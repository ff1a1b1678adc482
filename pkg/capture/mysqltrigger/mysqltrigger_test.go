package mysqltrigger

import (
	"testing"

	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/utm"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(`
tables:
  - name: users
    primary_key: id
    columns:
      - name: id
        type: int64
      - name: email
        type: text
`))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestToChangeInsertStripsPKFromData(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	change, ok, err := s.toChange("users", "insert", []byte(`{"id": 7, "email": "a@example.com"}`))
	if err != nil || !ok {
		t.Fatalf("unexpected ok=%v err=%v", ok, err)
	}
	if change.Op != utm.OpCreate {
		t.Fatalf("expected OpCreate, got %v", change.Op)
	}
	if _, present := change.Data["id"]; present {
		t.Fatal("expected id stripped from Data")
	}
	if !change.Target.ID.Equal(utm.IntValue(utm.KindInt64, 7)) {
		t.Fatalf("unexpected target id: %+v", change.Target.ID)
	}
}

func TestToChangeDeleteCarriesNoData(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	change, ok, err := s.toChange("users", "delete", []byte(`{"id": 7, "email": "a@example.com"}`))
	if err != nil || !ok {
		t.Fatalf("unexpected ok=%v err=%v", ok, err)
	}
	if change.Op != utm.OpDelete {
		t.Fatalf("expected OpDelete, got %v", change.Op)
	}
	if change.Data != nil {
		t.Fatalf("expected nil Data for a delete, got %+v", change.Data)
	}
}

func TestToChangeUnknownOpIsIgnored(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	_, ok, err := s.toChange("users", "truncate", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected unrecognized op to be ignored")
	}
}

func TestCheckpointRoundTripsThroughBinlogPos(t *testing.T) {
	s := New(Config{Registry: testRegistry(t)})
	s.last = 42
	cp := s.Checkpoint()
	if cp.Kind != utm.CheckpointMySQLBinlog || cp.BinlogPos != 42 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
}
