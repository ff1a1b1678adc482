package jsonconv

import (
	"testing"

	"github.com/convergedb/sync/pkg/utm"
)

func TestConvertPrefersInt64(t *testing.T) {
	tv, err := ParseDocument([]byte(`{"count": 3, "ratio": 1.5, "active": 1}`), Config{
		BooleanPaths: map[string]struct{}{"active": {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := tv.Value.AsObject()
	if !ok {
		t.Fatal("expected object")
	}
	if obj["count"].Kind() != utm.KindInt64 {
		t.Fatalf("expected count to be int64, got %v", obj["count"].Kind())
	}
	if obj["ratio"].Kind() != utm.KindFloat64 {
		t.Fatalf("expected ratio to be float64, got %v", obj["ratio"].Kind())
	}
	if obj["active"].Kind() != utm.KindBool {
		t.Fatalf("expected active to be bool via boolean_paths, got %v", obj["active"].Kind())
	}
	b, _ := obj["active"].AsBool()
	if !b {
		t.Fatal("expected active=true")
	}
}

func TestConvertSetPath(t *testing.T) {
	tv, err := ParseDocument([]byte(`{"roles": "admin,editor"}`), Config{
		SetPaths: map[string]struct{}{"roles": {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	obj, _ := tv.Value.AsObject()
	arr, ok := obj["roles"].AsArray()
	if !ok || len(arr) != 2 {
		t.Fatalf("expected 2-element array, got %+v", obj["roles"])
	}
}

func TestConvertEmptyArrayDefaultsElementToText(t *testing.T) {
	tv, err := ParseDocument([]byte(`{"xs": []}`), Config{})
	if err != nil {
		t.Fatal(err)
	}
	obj, _ := tv.Value.AsObject()
	if obj["xs"].Kind() != utm.KindArray {
		t.Fatalf("expected array kind, got %v", obj["xs"].Kind())
	}
}

func TestConvertHugeNumberPreservesLiteral(t *testing.T) {
	tv, err := ParseDocument([]byte(`{"big": 1e400}`), Config{})
	if err != nil {
		t.Fatal(err)
	}
	obj, _ := tv.Value.AsObject()
	if obj["big"].Kind() != utm.KindText {
		t.Fatalf("expected huge number to fall back to text, got %v", obj["big"].Kind())
	}
}
