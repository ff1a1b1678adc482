package neo4jconv

import (
	"testing"
	"time"

	"github.com/convergedb/sync/pkg/utm"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func TestBuildNodeWithPointProperty(t *testing.T) {
	office := dbtype.Node{
		ElementId: "4:abc:1",
		Labels:    []string{"Office"},
		Props: map[string]any{
			"id": "o1",
			"coords": dbtype.Point2D{
				X:            -122.41,
				Y:            37.77,
				SpatialRefId: 4326,
			},
		},
	}
	record, err := BuildNode(office, "office", "id", Config{})
	if err != nil {
		t.Fatal(err)
	}
	if record.ID.Table != "office" {
		t.Fatalf("unexpected table: %s", record.ID.Table)
	}
	geom, ok := record.Data["coords"].AsGeometry()
	if !ok || geom.Type != utm.GeometryPoint {
		t.Fatalf("expected Point geometry, got %+v", record.Data["coords"])
	}
	if len(geom.Coordinates) != 2 || geom.Coordinates[0] != -122.41 || geom.Coordinates[1] != 37.77 {
		t.Fatalf("unexpected coordinates: %+v", geom.Coordinates)
	}
	if geom.SRID != 4326 {
		t.Fatalf("expected srid 4326, got %d", geom.SRID)
	}

	rel := dbtype.Relationship{
		ElementId: "5:abc:1",
		Type:      "WORKS_AT",
		Props:     map[string]any{"since": int64(2020)},
	}
	person := utm.Thing{Table: "person", ID: utm.TextValue("p1")}
	relation, err := BuildRelation(rel, "works_at:1", person, utm.Thing{Table: "office", ID: utm.TextValue("o1")}, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if relation.In.Table != "person" || relation.Out.Table != "office" {
		t.Fatalf("unexpected endpoints: %+v", relation)
	}
	since, _ := relation.Data["since"].AsInt()
	if since != 2020 {
		t.Fatalf("expected since=2020, got %d", since)
	}
}

func TestNodeRelationPathAreErrors(t *testing.T) {
	if _, err := Convert("Office", "x", dbtype.Node{ElementId: "1"}, Config{}); err == nil {
		t.Fatal("expected error for Node property value")
	}
	if _, err := Convert("Office", "x", dbtype.Path{}, Config{}); err == nil {
		t.Fatal("expected error for Path property value")
	}
}

func TestNaNAndInfinityRejected(t *testing.T) {
	nan := func() float64 { var z float64; return z / z }()
	if _, err := Convert("Office", "x", nan, Config{}); err == nil {
		t.Fatal("expected NaN rejection")
	}
	inf := func() float64 { x := 1e308; return x * 10 }()
	if _, err := Convert("Office", "x", inf, Config{}); err == nil {
		t.Fatal("expected Infinity rejection")
	}
}

func TestJSONOptInOnlyAppliesToConfiguredProperty(t *testing.T) {
	cfg := Config{JSONOptIn: map[string]struct{}{"Office.meta": {}}}
	tv, err := Convert("Office", "meta", `{"floor":3}`, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tv.Type.Kind != utm.KindObject {
		t.Fatalf("expected opted-in property to parse as Object, got %v", tv.Type.Kind)
	}

	tv2, err := Convert("Office", "name", `{"floor":3}`, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tv2.Type.Kind != utm.KindText {
		t.Fatalf("expected non-opted-in property to stay Text, got %v", tv2.Type.Kind)
	}
}

func TestAmbiguousLocalDateTimeIsError(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2024-11-03 01:30 local is within the US fall-back DST fold.
	wall := time.Date(2024, 11, 3, 1, 30, 0, 0, time.UTC)
	_, err = Convert("Event", "at", dbtype.LocalDateTime(wall), Config{Zone: loc})
	if err == nil {
		t.Fatal("expected ambiguous datetime error")
	}
}
