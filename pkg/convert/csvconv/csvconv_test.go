package csvconv

import (
	"testing"

	"github.com/convergedb/sync/pkg/utm"
)

func TestParseBoolDateAndArray(t *testing.T) {
	active, err := Parse("true", utm.Bool())
	if err != nil || active.Value.Equal(utm.BoolValue(false)) {
		t.Fatalf("active: %v %+v", err, active)
	}
	if b, _ := active.Value.AsBool(); !b {
		t.Fatal("expected active=true")
	}

	d, err := Parse("2024-06-15", utm.Date())
	if err != nil {
		t.Fatal(err)
	}
	date, _ := d.Value.AsDate()
	if date.Year != 2024 || date.Month != 6 || date.Day != 15 {
		t.Fatalf("unexpected date: %+v", date)
	}

	xs, err := Parse("[1,2,3]", utm.Array(utm.Int32()))
	if err != nil {
		t.Fatal(err)
	}
	arr, _ := xs.Value.AsArray()
	if len(arr) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr))
	}
	for i, want := range []int64{1, 2, 3} {
		got, _ := arr[i].AsInt()
		if got != want {
			t.Fatalf("element %d: want %d got %d", i, want, got)
		}
	}

	dur, err := Parse("PT90.5S", utm.Duration())
	if err != nil {
		t.Fatal(err)
	}
	dv, _ := dur.Value.AsDuration()
	if dv.Seconds() != 90.5 {
		t.Fatalf("unexpected duration: %v", dv)
	}
}

func TestEmptyInputYieldsNull(t *testing.T) {
	tv, err := Parse("", utm.Int32())
	if err != nil {
		t.Fatal(err)
	}
	if !tv.Value.IsNull() {
		t.Fatal("expected null value for empty input")
	}
}

func TestThingParse(t *testing.T) {
	tv, err := Parse("users:42", utm.ThingType())
	if err != nil {
		t.Fatal(err)
	}
	thing, ok := tv.Value.AsThing()
	if !ok || thing.Table != "users" {
		t.Fatalf("unexpected thing: %+v", thing)
	}
}

func TestInvalidBoolReturnsTypedError(t *testing.T) {
	if _, err := Parse("maybe", utm.Bool()); err == nil {
		t.Fatal("expected error for invalid bool literal")
	}
}
