package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/convergedb/sync/pkg/utm"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "checkpoints.json"))

	cp := utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: 42, Ts: time.Now()}
	if err := store.Save("orders_pg", cp); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Load("orders_pg")
	if err != nil || !ok {
		t.Fatalf("expected checkpoint present, got ok=%v err=%v", ok, err)
	}
	if got.Kind != cp.Kind || got.SequenceID != cp.SequenceID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cp)
	}
}

func TestFileStoreLoadMissingSourceReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "checkpoints.json"))
	_, ok, err := store.Load("nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for a source never saved")
	}
}

func TestFileStorePhaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "checkpoints.json"))

	cp := utm.Checkpoint{Kind: utm.CheckpointMongoDB, ResumeToken: "abc123"}
	phase := utm.SyncPhase{Kind: utm.PhaseIncrementalAt, Checkpoint: &cp}
	if err := store.SavePhase("mongo_users", phase); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.LoadPhase("mongo_users")
	if err != nil || !ok {
		t.Fatalf("expected phase present, got ok=%v err=%v", ok, err)
	}
	if got.Kind != utm.PhaseIncrementalAt || got.Checkpoint == nil || got.Checkpoint.ResumeToken != "abc123" {
		t.Fatalf("phase round trip mismatch: %+v", got)
	}
}

func TestFileStorePreservesOtherSourcesOnSave(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "checkpoints.json"))

	_ = store.Save("source_a", utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: 1})
	_ = store.Save("source_b", utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: 2})

	a, _, _ := store.Load("source_a")
	b, _, _ := store.Load("source_b")
	if a.SequenceID != 1 || b.SequenceID != 2 {
		t.Fatalf("expected independent per-source state, got a=%+v b=%+v", a, b)
	}
}

func TestMemStoreRoundTrip(t *testing.T) {
	store := NewMemStore()
	cp := utm.Checkpoint{Kind: utm.CheckpointNeo4j, TimestampMS: 123}
	if err := store.Save("neo4j_people", cp); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Load("neo4j_people")
	if err != nil || !ok || got.TimestampMS != 123 {
		t.Fatalf("unexpected round trip: ok=%v err=%v got=%+v", ok, err, got)
	}
}
