package applier

import (
	"context"
	"testing"

	"github.com/convergedb/sync/pkg/target/memstore"
	"github.com/convergedb/sync/pkg/utm"
)

func TestApplyCreateThenRedeliveredCreateIsIdempotent(t *testing.T) {
	store := memstore.New()
	a := New(store, nil)
	ctx := context.Background()
	thing := utm.Thing{Table: "users", ID: utm.TextValue("u1")}
	change := utm.Change{Op: utm.OpCreate, Target: thing, Data: map[string]utm.Value{"name": utm.TextValue("Ada")}}

	if err := a.Apply(ctx, change); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(ctx, change); err != nil {
		t.Fatalf("redelivered create must not error: %v", err)
	}
	rows, _ := store.ListTable(ctx, "users")
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(rows))
	}
}

func TestApplyDeleteOfUnknownRecordIsTolerant(t *testing.T) {
	store := memstore.New()
	a := New(store, nil)
	change := utm.Change{Op: utm.OpDelete, Target: utm.Thing{Table: "users", ID: utm.TextValue("ghost")}}
	if err := a.Apply(context.Background(), change); err != nil {
		t.Fatalf("delete of unknown record must not error: %v", err)
	}
}

func TestApplyBatchStopsOnFirstError(t *testing.T) {
	store := memstore.New()
	a := New(store, nil)
	changes := []utm.Change{
		{Op: utm.OpCreate, Target: utm.Thing{Table: "users", ID: utm.TextValue("u1")}},
		{Op: "bogus", Target: utm.Thing{Table: "users", ID: utm.TextValue("u2")}},
		{Op: utm.OpCreate, Target: utm.Thing{Table: "users", ID: utm.TextValue("u3")}},
	}
	if err := a.ApplyBatch(context.Background(), changes); err == nil {
		t.Fatal("expected error from unknown operation")
	}
	rows, _ := store.ListTable(context.Background(), "users")
	if len(rows) != 1 {
		t.Fatalf("expected only the first change applied, got %d rows", len(rows))
	}
}
