package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/convergedb/sync/pkg/utm"
)

type fakeStream struct {
	changes     []utm.Change
	checkpoints []utm.Checkpoint
	idx         int
}

func (f *fakeStream) Next(ctx context.Context) (utm.Change, utm.Checkpoint, bool, error) {
	if f.idx >= len(f.changes) {
		return utm.Change{}, utm.Checkpoint{}, false, nil
	}
	c, cp := f.changes[f.idx], f.checkpoints[f.idx]
	f.idx++
	return c, cp, true, nil
}

func (f *fakeStream) Close() error { return nil }

func TestCoordinatorReachesCompletedOnTargetCheckpoint(t *testing.T) {
	target := utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: 2}
	stream := &fakeStream{
		changes: []utm.Change{
			{Op: utm.OpCreate, Target: utm.Thing{Table: "users", ID: utm.TextValue("u1")}},
			{Op: utm.OpCreate, Target: utm.Thing{Table: "users", ID: utm.TextValue("u2")}},
		},
		checkpoints: []utm.Checkpoint{
			{Kind: utm.CheckpointPostgresSeq, SequenceID: 1},
			{Kind: utm.CheckpointPostgresSeq, SequenceID: 2},
		},
	}

	var applied []utm.Change
	var savedCheckpoints []utm.Checkpoint

	cfg := Config{
		FullSync: func(ctx context.Context) (utm.Checkpoint, error) {
			return utm.Checkpoint{Kind: utm.CheckpointPostgresSeq, SequenceID: 0}, nil
		},
		OpenStream: func(ctx context.Context, from utm.Checkpoint) (ChangeStream, error) {
			return stream, nil
		},
		Apply: func(ctx context.Context, change utm.Change) error {
			applied = append(applied, change)
			return nil
		},
		SaveCheckpoint: func(ctx context.Context, cp utm.Checkpoint) error {
			savedCheckpoints = append(savedCheckpoints, cp)
			return nil
		},
		TargetCheckpoint: &target,
	}

	c := New(cfg)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateCompleted {
		t.Fatalf("expected Completed, got %v", c.State())
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied changes, got %d", len(applied))
	}
	if len(savedCheckpoints) != 2 {
		t.Fatalf("expected 2 saved checkpoints, got %d", len(savedCheckpoints))
	}
}

func TestCoordinatorStopsAtDeadline(t *testing.T) {
	stream := &fakeStream{} // never yields a change
	cfg := Config{
		OpenStream: func(ctx context.Context, from utm.Checkpoint) (ChangeStream, error) {
			return stream, nil
		},
		Apply:    func(ctx context.Context, change utm.Change) error { return nil },
		Deadline: time.Now().Add(-time.Second), // already past
	}
	c := New(cfg)
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateCompleted {
		t.Fatalf("expected Completed after deadline stop, got %v", c.State())
	}
}

func TestCoordinatorPropagatesSetupTrackingFailure(t *testing.T) {
	cfg := Config{
		SetupTracking: func(ctx context.Context) error { return errors.New("boom") },
	}
	c := New(cfg)
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error from setup_tracking failure")
	}
	if c.State() != StateInit {
		t.Fatalf("expected to remain in Init on setup failure, got %v", c.State())
	}
}

func TestCoordinatorCancellationStopsIncremental(t *testing.T) {
	stream := &fakeStream{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := Config{
		OpenStream: func(ctx context.Context, from utm.Checkpoint) (ChangeStream, error) {
			return stream, nil
		},
		Apply: func(ctx context.Context, change utm.Change) error { return nil },
	}
	c := New(cfg)
	if err := c.Run(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}
