package pgwal

import (
	"testing"

	"github.com/jackc/pglogrepl"

	"github.com/convergedb/sync/pkg/utm"
)

func TestOidNativeTypeNameKnownAndFallback(t *testing.T) {
	cases := map[uint32]string{
		16:   "boolean",
		23:   "integer",
		25:   "text",
		3802: "jsonb",
		99999: "text",
	}
	for oid, want := range cases {
		if got := oidNativeTypeName(oid); got != want {
			t.Errorf("oid %d: got %q, want %q", oid, got, want)
		}
	}
}

func TestPkValuesFallsBackToAllColumnsWhenNoKeyFlagged(t *testing.T) {
	rel := &pglogrepl.RelationMessage{
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "id", Flags: 0},
			{Name: "name", Flags: 0},
		},
	}
	cols := map[string]utm.Value{"id": utm.IntValue(utm.KindInt64, 1), "name": utm.TextValue("a")}
	pk := pkValues(rel, cols)
	if len(pk) != 2 {
		t.Fatalf("expected fallback to all columns, got %d", len(pk))
	}
}

func TestPkValuesSelectsFlaggedKeyColumns(t *testing.T) {
	rel := &pglogrepl.RelationMessage{
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "id", Flags: 1},
			{Name: "name", Flags: 0},
		},
	}
	cols := map[string]utm.Value{"id": utm.IntValue(utm.KindInt64, 1), "name": utm.TextValue("a")}
	pk := pkValues(rel, cols)
	if len(pk) != 1 {
		t.Fatalf("expected only the flagged key column, got %d", len(pk))
	}
	if _, ok := pk["id"]; !ok {
		t.Fatal("expected id to be selected as the key column")
	}
}
