// Package mongostream realizes capture.Source for MongoDB using native
// Change Streams: no audit table or trigger needed, since the server
// itself exposes an ordered oplog-backed cursor with resumable tokens.
//
// Uses collection.Watch with SetFullDocument(UpdateLookup), persists the
// stream's resume token as the checkpoint, and dispatches on
// operationType (insert/update/replace/delete), converting each raw
// bson.M event into a utm.Change via convert/mongoconv.
package mongostream

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/convert/mongoconv"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/utm"
)

// Config parameterizes a Source.
type Config struct {
	Database *mongo.Database
	Log      *logger.Logger
}

// Source is the change-stream capture.Source for MongoDB. It tracks one
// collection per instance, so a multi-collection run holds one Source
// per tracked collection (unlike the trigger and polling sources, which
// track every configured table from one Source).
type Source struct {
	cfg         Config
	collection  string
	resumeToken bson.Raw
}

func New(cfg Config, collection string) *Source {
	return &Source{cfg: cfg, collection: collection}
}

func (s *Source) Initialize(ctx context.Context) error {
	names, err := s.cfg.Database.ListCollectionNames(ctx, bson.D{{Key: "name", Value: s.collection}})
	if err != nil {
		return errs.NewSourceError("mongodb", "failed to verify collection exists", err, true)
	}
	if len(names) == 0 {
		return errs.NewSourceError("mongodb", fmt.Sprintf("collection %q does not exist", s.collection), nil, false)
	}
	return nil
}

// SetupTracking is a no-op: change streams require no server-side setup
// beyond the replica-set oplog MongoDB already maintains.
func (s *Source) SetupTracking(ctx context.Context, tables []string) error {
	return nil
}

func (s *Source) Changes(ctx context.Context, from utm.Checkpoint) (capture.Stream, error) {
	if from.Kind == utm.CheckpointMongoDB && from.ResumeToken != "" {
		s.resumeToken = bson.Raw(from.ResumeToken)
	}

	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if s.resumeToken != nil {
		streamOpts.SetResumeAfter(s.resumeToken)
	}

	cs, err := s.cfg.Database.Collection(s.collection).Watch(ctx, bson.A{}, streamOpts)
	if err != nil {
		return nil, errs.NewSourceError("mongodb", "failed to open change stream", err, true)
	}
	return &stream{src: s, cs: cs}, nil
}

func (s *Source) Checkpoint() utm.Checkpoint {
	return utm.Checkpoint{Kind: utm.CheckpointMongoDB, ResumeToken: string(s.resumeToken)}
}

func (s *Source) Cleanup(ctx context.Context) error {
	return nil
}

type stream struct {
	src *Source
	cs  *mongo.ChangeStream
}

func (st *stream) Next(ctx context.Context) (utm.Change, utm.Checkpoint, bool, error) {
	for {
		if !st.cs.Next(ctx) {
			if err := st.cs.Err(); err != nil {
				return utm.Change{}, utm.Checkpoint{}, false, errs.NewSourceError("mongodb", "change stream error", err, true)
			}
			return utm.Change{}, utm.Checkpoint{}, false, nil
		}

		var event bson.M
		if err := st.cs.Decode(&event); err != nil {
			return utm.Change{}, utm.Checkpoint{}, false, errs.NewSourceError("mongodb", "failed to decode change event", err, true)
		}

		st.src.resumeToken = st.cs.ResumeToken()
		checkpoint := st.src.Checkpoint()

		change, ok, err := toChange(st.src.collection, event)
		if err != nil {
			return utm.Change{}, utm.Checkpoint{}, false, err
		}
		if ok {
			return change, checkpoint, true, nil
		}
		// An operation type we don't realize as a Change (e.g. "drop",
		// "invalidate"): keep draining, advancing the checkpoint past it.
	}
}

func (st *stream) Close() error {
	return st.cs.Close(context.Background())
}

func toChange(collection string, event bson.M) (utm.Change, bool, error) {
	opType, _ := event["operationType"].(string)

	documentKey, _ := event["documentKey"].(bson.M)
	idRaw, ok := documentKey["_id"]
	if !ok {
		return utm.Change{}, false, errs.NewConversionError(errs.MissingColumnValue, fmt.Sprintf("%v", event), "_id", "change event missing documentKey._id")
	}
	idTyped, err := mongoconv.Convert(idRaw)
	if err != nil {
		return utm.Change{}, false, err
	}
	target := utm.Thing{Table: collection, ID: idTyped.Value}

	switch opType {
	case "insert", "replace":
		fullDoc, _ := event["fullDocument"].(bson.M)
		data, err := convertDocumentFields(fullDoc)
		if err != nil {
			return utm.Change{}, false, err
		}
		op := utm.OpCreate
		if opType == "replace" {
			op = utm.OpUpdate
		}
		return utm.Change{Op: op, Target: target, Data: data}, true, nil

	case "update":
		data := map[string]utm.Value{}
		if fullDoc, ok := event["fullDocument"].(bson.M); ok {
			data, err = convertDocumentFields(fullDoc)
			if err != nil {
				return utm.Change{}, false, err
			}
		} else if updateDesc, ok := event["updateDescription"].(bson.M); ok {
			if updatedFields, ok := updateDesc["updatedFields"].(bson.M); ok {
				data, err = convertDocumentFields(updatedFields)
				if err != nil {
					return utm.Change{}, false, err
				}
			}
		}
		return utm.Change{Op: utm.OpUpdate, Target: target, Data: data}, true, nil

	case "delete":
		return utm.Change{Op: utm.OpDelete, Target: target}, true, nil

	default:
		return utm.Change{}, false, nil
	}
}

func convertDocumentFields(doc bson.M) (map[string]utm.Value, error) {
	out := make(map[string]utm.Value, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		tv, err := mongoconv.Convert(v)
		if err != nil {
			return nil, err
		}
		out[k] = tv.Value
	}
	return out, nil
}
