// Package capture defines the uniform change-capture surface: Initialize
// / SetupTracking / Changes / Checkpoint / Cleanup, realized once per
// source kind in the capture/pgtrigger, capture/pgwal,
// capture/mysqltrigger, capture/mongostream, capture/neo4jpoll and
// capture/kafkaconsumer sub-packages. The coordinator only ever holds a
// Source and a Stream — no source-specific branching crosses into
// pkg/coordinator.
package capture

import (
	"context"
	"time"

	"github.com/convergedb/sync/pkg/utm"
)

// Source is the per-source realization of incremental change capture.
type Source interface {
	// Initialize prepares the source connection (schema introspection,
	// auth) before tracking is installed.
	Initialize(ctx context.Context) error

	// SetupTracking installs whatever change-capture plumbing the source
	// needs for the given tables (audit triggers, a replication slot, a
	// change-stream watch, a polling cursor). Idempotent: calling it again
	// for tables already tracked must not error or duplicate state.
	SetupTracking(ctx context.Context, tables []string) error

	// Changes opens a Stream starting just after from. A zero Checkpoint
	// means "from the beginning of this source's change history", used
	// only the first time a source is tracked.
	Changes(ctx context.Context, from utm.Checkpoint) (Stream, error)

	// Checkpoint returns this source's current resumption token, valid
	// after SetupTracking and updated as the returned Stream is consumed.
	Checkpoint() utm.Checkpoint

	// Cleanup removes any installed tracking plumbing (triggers, audit
	// tables, replication slots). Called in a finally on coordinator exit;
	// failures here are logged, never allowed to mask a primary error.
	Cleanup(ctx context.Context) error
}

// Stream is the per-source realization of ChangeStream. Its shape
// matches coordinator.ChangeStream structurally so any Stream
// implementation can be handed straight to a coordinator.Config without
// an adapter.
type Stream interface {
	// Next blocks until a change is available, the configured quiet
	// window elapses with nothing new (ok=false, err=nil), or ctx is
	// cancelled. Checkpoint reflects the position just past the most
	// recently yielded change.
	Next(ctx context.Context) (change utm.Change, checkpoint utm.Checkpoint, ok bool, err error)
	Close() error
}

// PollFunc fetches the next batch of changes since the stream's current
// position, returning the changes in capture order and the checkpoint
// reflecting the position just past the last one. An empty batch with a
// nil error means "nothing new this poll" (not end-of-stream: polling
// continues until the caller stops consuming the stream or the empty-poll
// strike limit is reached).
type PollFunc func(ctx context.Context) (changes []utm.Change, checkpoint utm.Checkpoint, err error)

// PollStream is the shared poll-and-backoff engine behind every
// poll-based capture source (pgtrigger, mysqltrigger, neo4jpoll): sleep
// 100ms between empty polls, and after maxEmptyPolls consecutive empty
// polls in a row, Next returns ok=false.
// WAL and change-stream based sources (pgwal, mongostream, kafkaconsumer)
// block on their own server-pushed cursor instead and do not use this.
type PollStream struct {
	poll           PollFunc
	backoff        time.Duration
	maxEmptyPolls  int
	emptyPollCount int

	buf       []utm.Change
	bufCkpt   utm.Checkpoint
	lastCkpt  utm.Checkpoint
	closeFunc func() error
}

// DefaultBackoff is the empty-poll sleep used between poll attempts.
const DefaultBackoff = 100 * time.Millisecond

// NewPollStream builds a PollStream. maxEmptyPolls<=0 means "poll
// forever" (the stream never reports ok=false on its own; the caller's
// deadline or target checkpoint is what stops it).
func NewPollStream(poll PollFunc, maxEmptyPolls int, closeFunc func() error) *PollStream {
	return &PollStream{poll: poll, backoff: DefaultBackoff, maxEmptyPolls: maxEmptyPolls, closeFunc: closeFunc}
}

func (p *PollStream) Next(ctx context.Context) (utm.Change, utm.Checkpoint, bool, error) {
	for {
		if len(p.buf) > 0 {
			change := p.buf[0]
			p.buf = p.buf[1:]
			p.emptyPollCount = 0
			// Every element of a poll batch except the last carries the
			// previously yielded checkpoint; only the last carries the
			// batch's checkpoint, so a caller that commits each yielded
			// checkpoint after applying its change never moves past a
			// change it has not yet applied.
			ckpt := p.lastCkpt
			if len(p.buf) == 0 {
				ckpt = p.bufCkpt
			}
			p.lastCkpt = ckpt
			return change, ckpt, true, nil
		}

		select {
		case <-ctx.Done():
			return utm.Change{}, utm.Checkpoint{}, false, ctx.Err()
		default:
		}

		changes, ckpt, err := p.poll(ctx)
		if err != nil {
			return utm.Change{}, utm.Checkpoint{}, false, err
		}
		if len(changes) == 0 {
			p.emptyPollCount++
			if p.maxEmptyPolls > 0 && p.emptyPollCount >= p.maxEmptyPolls {
				return utm.Change{}, utm.Checkpoint{}, false, nil
			}
			timer := time.NewTimer(p.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return utm.Change{}, utm.Checkpoint{}, false, ctx.Err()
			case <-timer.C:
			}
			continue
		}
		p.buf = changes
		p.bufCkpt = ckpt
	}
}

func (p *PollStream) Close() error {
	if p.closeFunc != nil {
		return p.closeFunc()
	}
	return nil
}
