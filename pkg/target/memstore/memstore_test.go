package memstore

import (
	"context"
	"testing"

	"github.com/convergedb/sync/pkg/utm"
)

func TestUpsertThenGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	thing := utm.Thing{Table: "users", ID: utm.TextValue("u1")}
	record := utm.Record{ID: thing, Data: map[string]utm.Value{"name": utm.TextValue("Ada")}}

	if err := s.Upsert(ctx, record); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, thing)
	if err != nil || !ok {
		t.Fatalf("expected record present, got ok=%v err=%v", ok, err)
	}
	if !got.Data["name"].Equal(utm.TextValue("Ada")) {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
}

func TestUpsertReplacesContent(t *testing.T) {
	s := New()
	ctx := context.Background()
	thing := utm.Thing{Table: "users", ID: utm.TextValue("u1")}
	_ = s.Upsert(ctx, utm.Record{ID: thing, Data: map[string]utm.Value{"name": utm.TextValue("Ada")}})
	_ = s.Upsert(ctx, utm.Record{ID: thing, Data: map[string]utm.Value{"name": utm.TextValue("Grace")}})

	got, _, _ := s.Get(ctx, thing)
	if !got.Data["name"].Equal(utm.TextValue("Grace")) {
		t.Fatalf("expected replaced content, got %+v", got.Data)
	}
	n, _ := s.RowCount(ctx, "users")
	if n != 1 {
		t.Fatalf("expected exactly 1 row after replace, got %d", n)
	}
}

func TestDeleteOfUnknownRecordDoesNotError(t *testing.T) {
	s := New()
	if err := s.Delete(context.Background(), utm.Thing{Table: "users", ID: utm.TextValue("ghost")}); err != nil {
		t.Fatalf("delete of unknown record must not error: %v", err)
	}
}

func TestListTableAndRowCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = s.Upsert(ctx, utm.Record{ID: utm.Thing{Table: "users", ID: utm.IntValue(utm.KindInt64, int64(i))}})
	}
	rows, err := s.ListTable(ctx, "users")
	if err != nil || len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d (err=%v)", len(rows), err)
	}
	n, _ := s.RowCount(ctx, "users")
	if n != 3 {
		t.Fatalf("expected row count 3, got %d", n)
	}
}

func TestUpsertRelationAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	relation := utm.Relation{
		ID:  utm.Thing{Table: "works_at", ID: utm.TextValue("r1")},
		In:  utm.Thing{Table: "person", ID: utm.TextValue("p1")},
		Out: utm.Thing{Table: "office", ID: utm.TextValue("o1")},
		Data: map[string]utm.Value{"since": utm.IntValue(utm.KindInt64, 2020)},
	}
	if err := s.UpsertRelation(ctx, relation); err != nil {
		t.Fatal(err)
	}
	rels, err := s.ListRelations(ctx, "works_at")
	if err != nil || len(rels) != 1 {
		t.Fatalf("expected 1 relation, got %d (err=%v)", len(rels), err)
	}
}
