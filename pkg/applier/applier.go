// Package applier implements the idempotent change applier: upsert-or-
// create for Create/Update changes, tolerant delete for Delete changes,
// giving an exactly-once-at-destination guarantee under the
// at-least-once delivery every capture source provides.
package applier

import (
	"context"
	"fmt"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/target"
	"github.com/convergedb/sync/pkg/utm"
)

// Applier applies utm.Change values to a target.Store.
type Applier struct {
	store target.Store
	log   *logger.Logger
}

// New returns an Applier writing to store.
func New(store target.Store, log *logger.Logger) *Applier {
	return &Applier{store: store, log: log}
}

// Apply applies a single change. Create and Update are both handled as
// an upsert: a destination store has no notion of "already exists" that
// the applier needs to branch on, since Upsert itself is defined to be
// idempotent: a redelivered Create after a partial apply must not error
// or duplicate.
func (a *Applier) Apply(ctx context.Context, change utm.Change) error {
	switch change.Op {
	case utm.OpCreate, utm.OpUpdate:
		record := utm.Record{ID: change.Target, Data: change.Data}
		if err := a.store.Upsert(ctx, record); err != nil {
			return errs.NewApplyError(change.Target.Table, "upsert failed", err)
		}
		if a.log != nil {
			a.log.Debug("applied %s on %s", change.Op, change.Target.String())
		}
		return nil
	case utm.OpDelete:
		if err := a.store.Delete(ctx, change.Target); err != nil {
			return errs.NewApplyError(change.Target.Table, "delete failed", err)
		}
		if a.log != nil {
			a.log.Debug("applied delete on %s", change.Target.String())
		}
		return nil
	default:
		return errs.NewApplyError(change.Target.Table, fmt.Sprintf("unknown operation %q", change.Op), nil)
	}
}

// ApplyRelation upserts a graph relationship; relationships have no
// delete semantics of their own in this system, since full sync only
// ever creates or replaces edges.
func (a *Applier) ApplyRelation(ctx context.Context, relation utm.Relation) error {
	if err := a.store.UpsertRelation(ctx, relation); err != nil {
		return errs.NewApplyError(relation.ID.Table, "upsert relation failed", err)
	}
	return nil
}

// ApplyBatch applies changes in order, stopping at the first error so
// the caller can decide whether to retry the remainder or fail the
// batch outright.
func (a *Applier) ApplyBatch(ctx context.Context, changes []utm.Change) error {
	for i, change := range changes {
		if err := a.Apply(ctx, change); err != nil {
			return fmt.Errorf("applying change %d/%d: %w", i+1, len(changes), err)
		}
	}
	return nil
}
