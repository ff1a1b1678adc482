// Package target defines the boundary contract this repository demands of
// the destination document/graph store: the target-store driver itself
// is an external collaborator, out of scope beyond this surface. Every
// pipeline stage that writes — applier, fullsync, the harness's
// populate/verify workers — depends only on Store, never on a concrete
// driver.
package target

import (
	"context"

	"github.com/convergedb/sync/pkg/utm"
)

// Store is the minimal write/read surface the pipeline needs from a target
// datastore: idempotent upsert/delete by Thing, relationship upsert for
// graph sources, and the table-scan reads the harness's verify workers
// and fullsync's composite-PK reconciliation tests use.
type Store interface {
	// Upsert writes record, creating it if absent or replacing its content
	// if present. Must be idempotent: applying the same record twice
	// leaves the target in the same state as applying it once.
	Upsert(ctx context.Context, record utm.Record) error

	// Delete removes the record identified by id. A missing record is not
	// an error.
	Delete(ctx context.Context, id utm.Thing) error

	// UpsertRelation writes a graph edge, creating or replacing it by its
	// own identity: relationships have no delete semantics of their own
	// on the transfer path.
	UpsertRelation(ctx context.Context, relation utm.Relation) error

	// Get retrieves a single record by id, for verify-worker row lookups.
	Get(ctx context.Context, id utm.Thing) (utm.Record, bool, error)

	// ListTable returns every record currently stored under table, for
	// tests asserting on a table's full contents, such as the full-sync
	// composite-PK reconciliation tests.
	ListTable(ctx context.Context, table string) ([]utm.Record, error)

	// RowCount returns the number of records stored under table, the
	// convergence barrier's per-table polling primitive.
	RowCount(ctx context.Context, table string) (int, error)
}
