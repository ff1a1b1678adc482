package fullsync

import (
	"context"
	"fmt"

	"github.com/convergedb/sync/pkg/applier"
	"github.com/convergedb/sync/pkg/convert/neo4jconv"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/utm"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Neo4jSource streams every node with a given label, and every
// relationship of a given type, in batches — the two passes the
// executor drives in order: first all distinct node labels, then all
// distinct relationship types.
type Neo4jSource interface {
	Labels(ctx context.Context) ([]string, error)
	RelationshipTypes(ctx context.Context) ([]string, error)
	ReadNodes(ctx context.Context, label string, batchSize int, yield func(dbtype.Node) error) error
	ReadRelationships(ctx context.Context, relType string, batchSize int, yield func(rel dbtype.Relationship, startLabel, endLabel string) error) error
}

// Neo4jConfig configures the Neo4j two-pass full-sync executor.
type Neo4jConfig struct {
	Source        Neo4jSource
	Applier       *applier.Applier
	Conv          neo4jconv.Config
	IDProperty    string // property used as each node's target id; defaults to "id"
	FallbackLabel string // target table for a relationship endpoint with no resolvable label
	BatchSize     int
	DryRun        bool
	Log           *logger.Logger
}

// Neo4jExecutor runs the Neo4j-specific two-pass full sync: labels
// first (each becomes a target table of Records), then relationship
// types (each becomes a target table of Relations whose endpoints use
// the first label seen for each adjacent node).
type Neo4jExecutor struct {
	cfg Neo4jConfig

	// endpointThing remembers, by node element id, the Thing the node
	// pass resolved it to (its first-seen label as table, its configured
	// id property as ID) — the relationship pass needs this to pick each
	// endpoint's target table: the first label seen for each endpoint.
	endpointThing map[string]utm.Thing
}

func NewNeo4jExecutor(cfg Neo4jConfig) *Neo4jExecutor {
	if cfg.IDProperty == "" {
		cfg.IDProperty = "id"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	return &Neo4jExecutor{cfg: cfg, endpointThing: make(map[string]utm.Thing)}
}

func (e *Neo4jExecutor) Run(ctx context.Context) error {
	labels, err := e.cfg.Source.Labels(ctx)
	if err != nil {
		return fmt.Errorf("listing node labels: %w", err)
	}
	for _, label := range labels {
		if err := e.runNodePass(ctx, label); err != nil {
			return fmt.Errorf("node pass for label %q: %w", label, err)
		}
	}

	relTypes, err := e.cfg.Source.RelationshipTypes(ctx)
	if err != nil {
		return fmt.Errorf("listing relationship types: %w", err)
	}
	for _, relType := range relTypes {
		if err := e.runRelationshipPass(ctx, relType); err != nil {
			return fmt.Errorf("relationship pass for type %q: %w", relType, err)
		}
	}
	return nil
}

func (e *Neo4jExecutor) runNodePass(ctx context.Context, label string) error {
	return e.cfg.Source.ReadNodes(ctx, label, e.cfg.BatchSize, func(node dbtype.Node) error {
		record, err := neo4jconv.BuildNode(node, label, e.cfg.IDProperty, e.cfg.Conv)
		if err != nil {
			return err
		}
		if _, seen := e.endpointThing[node.ElementId]; !seen {
			e.endpointThing[node.ElementId] = record.ID
		}

		if e.cfg.DryRun {
			if e.cfg.Log != nil {
				e.cfg.Log.Debug("dry run: would upsert node %s", record.ID.String())
			}
			return nil
		}
		return e.cfg.Applier.Apply(ctx, utm.Change{Op: utm.OpCreate, Target: record.ID, Data: record.Data})
	})
}

func (e *Neo4jExecutor) runRelationshipPass(ctx context.Context, relType string) error {
	return e.cfg.Source.ReadRelationships(ctx, relType, e.cfg.BatchSize, func(rel dbtype.Relationship, startLabel, endLabel string) error {
		in := e.resolveEndpoint(rel.StartElementId, startLabel)
		out := e.resolveEndpoint(rel.EndElementId, endLabel)

		relation, err := neo4jconv.BuildRelation(rel, rel.ElementId, in, out, e.cfg.Conv)
		if err != nil {
			return err
		}
		if e.cfg.DryRun {
			if e.cfg.Log != nil {
				e.cfg.Log.Debug("dry run: would upsert relation %s", relation.ID.String())
			}
			return nil
		}
		return e.cfg.Applier.ApplyRelation(ctx, relation)
	})
}

// resolveEndpoint returns the Thing the node pass resolved this element
// id to. When the node pass never saw it (e.g. it belongs to a label
// outside the sync's scope), it falls back to the caller-supplied label
// hint and then to the configured fallback label, using the raw element
// id as a last-resort identifier.
func (e *Neo4jExecutor) resolveEndpoint(elementID, labelHint string) utm.Thing {
	if thing, ok := e.endpointThing[elementID]; ok {
		return thing
	}
	label := labelHint
	if label == "" {
		label = e.cfg.FallbackLabel
	}
	return utm.Thing{Table: label, ID: utm.TextValue(elementID)}
}
