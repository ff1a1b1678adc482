package neo4jconv

import (
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// BuildNode converts a Neo4j node into a utm.Record whose Thing has the
// given label as its table and the node's idProperty value as its id.
// Full-sync and incremental capture both fan a node out to one target
// table per label, so callers supply which label this particular table
// assignment is for.
func BuildNode(node dbtype.Node, label, idProperty string, cfg Config) (utm.Record, error) {
	idRaw, ok := node.Props[idProperty]
	if !ok {
		return utm.Record{}, errs.NewConversionError(errs.MissingColumnValue, "", idProperty, "node missing configured id property")
	}
	idTV, err := Convert(label, idProperty, idRaw, cfg)
	if err != nil {
		return utm.Record{}, err
	}

	data := make(map[string]utm.Value, len(node.Props))
	for k, v := range node.Props {
		tv, err := Convert(label, k, v, cfg)
		if err != nil {
			return utm.Record{}, err
		}
		data[k] = tv.Value
	}

	return utm.Record{ID: utm.Thing{Table: label, ID: idTV.Value}, Data: data}, nil
}

// BuildRelation converts a Neo4j relationship into a utm.Relation. The
// endpoint Things are supplied by the caller, which must already have
// resolved each endpoint's element ID to its (label, id-property) target
// via the node pass that precedes the relationship pass in full sync.
func BuildRelation(rel dbtype.Relationship, relID string, in, out utm.Thing, cfg Config) (utm.Relation, error) {
	data := make(map[string]utm.Value, len(rel.Props))
	for k, v := range rel.Props {
		tv, err := Convert(rel.Type, k, v, cfg)
		if err != nil {
			return utm.Relation{}, err
		}
		data[k] = tv.Value
	}
	return utm.Relation{
		ID:   utm.Thing{Table: rel.Type, ID: utm.TextValue(relID)},
		In:   in,
		Out:  out,
		Data: data,
	}, nil
}
