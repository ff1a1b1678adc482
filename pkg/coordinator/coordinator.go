// Package coordinator implements the sync coordinator state machine:
// Init -> TrackingReady -> FullSyncStart(t1) -> FullSyncEnd(t2) ->
// IncrementalAt(checkpoint) -> Completed, with deadline/target-checkpoint
// stop conditions and bounded exponential backoff on per-batch errors.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/utm"
)

// State names the coordinator's position in the sync state machine.
type State string

const (
	StateInit           State = "init"
	StateTrackingReady  State = "tracking_ready"
	StateFullSyncStart  State = "full_sync_start"
	StateFullSyncEnd    State = "full_sync_end"
	StateIncrementalAt  State = "incremental_at"
	StateCompleted      State = "completed"
)

// FullSync is the full-sync executor's entry point: run to completion
// (or ctx cancellation) and return the t2 checkpoint marking the
// snapshot boundary.
type FullSync func(ctx context.Context) (utm.Checkpoint, error)

// ChangeStream is the uniform incremental-source surface: Next blocks
// until a change is available, the quiet window elapses (returning
// ok=false), or ctx is cancelled. Checkpoint reflects the position just
// past the most recently yielded change.
type ChangeStream interface {
	Next(ctx context.Context) (change utm.Change, checkpoint utm.Checkpoint, ok bool, err error)
	Close() error
}

// Apply is called once per change; it must be idempotent.
type Apply func(ctx context.Context, change utm.Change) error

// SaveCheckpoint persists a checkpoint after it has been fully applied.
type SaveCheckpoint func(ctx context.Context, checkpoint utm.Checkpoint) error

// Config parameterizes a single coordinator run.
type Config struct {
	SetupTracking func(ctx context.Context) error
	FullSync      FullSync
	OpenStream    func(ctx context.Context, from utm.Checkpoint) (ChangeStream, error)
	Apply         Apply
	SaveCheckpoint SaveCheckpoint

	Deadline         time.Time    // zero means no deadline
	TargetCheckpoint *utm.Checkpoint // nil means run until deadline/cancellation only

	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration

	Log *logger.Logger
}

// Coordinator drives one sync run through the state machine.
type Coordinator struct {
	cfg   Config
	state State

	deadlineExceeded bool
}

// New returns a Coordinator in the Init state.
func New(cfg Config) *Coordinator {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Coordinator{cfg: cfg, state: StateInit}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State { return c.state }

// DeadlineExceeded reports whether Run stopped because its deadline
// elapsed before the configured TargetCheckpoint was reached. Always
// false when no TargetCheckpoint was configured, or when Run has not
// yet stopped for this reason.
func (c *Coordinator) DeadlineExceeded() bool { return c.deadlineExceeded }

// Run drives the full state machine to Completed, or returns the first
// unrecoverable error. ctx cancellation is the coordinator's single
// broadcast stop signal: it is preemptive between phases and cooperative
// mid-batch — the in-flight batch finishes applying and its checkpoint
// is persisted before Run returns ctx.Err().
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.transitionToTrackingReady(ctx); err != nil {
		return err
	}

	t1 := utm.Checkpoint{}
	c.state = StateFullSyncStart
	if c.cfg.Log != nil {
		c.cfg.Log.Info("full sync starting, t1 emitted")
	}

	t2, err := c.runFullSync(ctx)
	if err != nil {
		return err
	}
	_ = t1
	c.state = StateFullSyncEnd
	if c.cfg.Log != nil {
		c.cfg.Log.Info("full sync complete, t2=%s", t2.String())
	}

	if err := c.runIncremental(ctx, t2); err != nil {
		return err
	}

	c.state = StateCompleted
	if c.cfg.Log != nil {
		c.cfg.Log.Info("sync completed")
	}
	return nil
}

func (c *Coordinator) transitionToTrackingReady(ctx context.Context) error {
	if c.cfg.SetupTracking != nil {
		if err := c.cfg.SetupTracking(ctx); err != nil {
			return fmt.Errorf("setup_tracking failed: %w", err)
		}
	}
	c.state = StateTrackingReady
	return nil
}

func (c *Coordinator) runFullSync(ctx context.Context) (utm.Checkpoint, error) {
	if c.cfg.FullSync == nil {
		return utm.Checkpoint{}, nil
	}
	return c.cfg.FullSync(ctx)
}

// runIncremental consumes the change stream from t2 onward, applying
// each change and persisting its checkpoint, until the deadline is
// reached, the target checkpoint is reached, or ctx is cancelled.
func (c *Coordinator) runIncremental(ctx context.Context, from utm.Checkpoint) error {
	if c.cfg.OpenStream == nil {
		return nil
	}
	stream, err := c.cfg.OpenStream(ctx, from)
	if err != nil {
		return fmt.Errorf("opening change stream: %w", err)
	}
	defer stream.Close()

	c.state = StateIncrementalAt

	for {
		if !c.cfg.Deadline.IsZero() && !time.Now().Before(c.cfg.Deadline) {
			if c.cfg.Log != nil {
				c.cfg.Log.Info("deadline reached, stopping incremental sync")
			}
			if c.cfg.TargetCheckpoint != nil {
				c.deadlineExceeded = true
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		change, checkpoint, ok, err := c.nextWithRetry(ctx, stream)
		if err != nil {
			return err
		}
		if !ok {
			continue // quiet window elapsed; keep polling until deadline/target
		}

		if err := c.applyWithRetry(ctx, change); err != nil {
			return err
		}
		if c.cfg.SaveCheckpoint != nil {
			if err := c.cfg.SaveCheckpoint(ctx, checkpoint); err != nil {
				return errs.NewCheckpointError("failed to persist checkpoint", err)
			}
		}

		if c.cfg.TargetCheckpoint != nil {
			cmp, err := checkpoint.Compare(*c.cfg.TargetCheckpoint)
			if err == nil && cmp >= 0 {
				if c.cfg.Log != nil {
					c.cfg.Log.Info("target checkpoint reached")
				}
				return nil
			}
		}
	}
}

// nextWithRetry wraps stream.Next with bounded exponential backoff on
// transient errors.
func (c *Coordinator) nextWithRetry(ctx context.Context, stream ChangeStream) (utm.Change, utm.Checkpoint, bool, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		change, checkpoint, ok, err := stream.Next(ctx)
		if err == nil {
			return change, checkpoint, ok, nil
		}
		if errs.IsCancellation(err) {
			return utm.Change{}, utm.Checkpoint{}, false, err
		}
		lastErr = err
		if !errs.IsTransient(err) {
			return utm.Change{}, utm.Checkpoint{}, false, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return utm.Change{}, utm.Checkpoint{}, false, err
		}
	}
	return utm.Change{}, utm.Checkpoint{}, false, fmt.Errorf("change stream exhausted %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Coordinator) applyWithRetry(ctx context.Context, change utm.Change) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		err := c.cfg.Apply(ctx, change)
		if err == nil {
			return nil
		}
		if errs.IsCancellation(err) {
			return err
		}
		lastErr = err
		if !errs.IsTransient(err) {
			return err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("apply exhausted %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Coordinator) sleepBackoff(ctx context.Context, attempt int) error {
	delay := c.cfg.BaseDelay * time.Duration(1<<attempt)
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
