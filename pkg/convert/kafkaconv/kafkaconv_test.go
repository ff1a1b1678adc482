package kafkaconv

import (
	"testing"

	"github.com/convergedb/sync/pkg/utm"
)

func TestConvertUpsertMessage(t *testing.T) {
	msg := Message{Topic: "orders", Partition: 0, Offset: 42, Value: []byte(`{"id":"o1","total":19.99}`)}
	change, err := Convert(msg, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if change.Op != utm.OpUpdate {
		t.Fatalf("expected OpUpdate, got %v", change.Op)
	}
	if change.Target.Table != "orders" {
		t.Fatalf("expected table orders, got %s", change.Target.Table)
	}
}

func TestConvertTombstoneIsDelete(t *testing.T) {
	msg := Message{Topic: "orders", Key: []byte("o1")}
	change, err := Convert(msg, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if change.Op != utm.OpDelete || change.Data != nil {
		t.Fatalf("expected tombstone delete, got %+v", change)
	}
}

func TestConvertDeletionFlag(t *testing.T) {
	msg := Message{Topic: "orders", Value: []byte(`{"id":"o1","deleted":true}`)}
	change, err := Convert(msg, Config{DeletionFlag: "deleted"})
	if err != nil {
		t.Fatal(err)
	}
	if change.Op != utm.OpDelete {
		t.Fatalf("expected OpDelete via deletion flag, got %v", change.Op)
	}
}

func TestCheckpointFormat(t *testing.T) {
	got := Checkpoint(Message{Topic: "orders", Partition: 2, Offset: 100})
	if got != "orders/2:100" {
		t.Fatalf("unexpected checkpoint: %s", got)
	}
}
