package mongostream

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

// Build connects to MongoDB and returns one Source per table named in
// cfg.Tables. mongostream tracks a single collection per instance (see
// Source doc comment), so a multi-collection run needs multiple Sources;
// the registry's Factory signature returns only one, so this package's
// Build is exported for callers that need the full set, while the
// registered factory below returns the Source for the first configured
// table only.
func Build(ctx context.Context, cfg config.SourceConfig, log *logger.Logger) ([]*Source, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.ConnectionString))
	if err != nil {
		return nil, errs.NewSourceError("mongodb", "failed to connect", err, false)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errs.NewSourceError("mongodb", "failed to reach server", err, true)
	}
	dbName := config.Option(cfg.Options, "database", "")
	database := client.Database(dbName)

	sources := make([]*Source, 0, len(cfg.Tables))
	for _, table := range cfg.Tables {
		sources = append(sources, New(Config{Database: database, Log: log}, table))
	}
	return sources, nil
}

func init() {
	capture.Register(capture.KindMongoStream, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	sources, err := Build(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errs.NewConfigError("source.tables", "mongodb_stream requires at least one collection in source.tables", nil)
	}
	return sources[0], nil
}
