package neo4jpoll

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

func init() {
	capture.Register(capture.KindNeo4jPoll, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	user := config.Option(cfg.Options, "username", "")
	pass := config.Option(cfg.Options, "password", "")
	driver, err := neo4j.NewDriverWithContext(cfg.ConnectionString, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, errs.NewSourceError("neo4j", "failed to create driver", err, false)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, errs.NewSourceError("neo4j", "failed to reach server", err, true)
	}

	var labels, relTypes []string
	for _, table := range cfg.Tables {
		if rel, ok := strings.CutPrefix(table, "rel:"); ok {
			relTypes = append(relTypes, rel)
			continue
		}
		labels = append(labels, table)
	}

	return New(Config{
		Driver:            driver,
		Database:          config.Option(cfg.Options, "database", ""),
		Labels:            labels,
		RelationshipTypes: relTypes,
		TimestampProperty: config.Option(cfg.Options, "timestamp_property", ""),
		IDProperty:        config.Option(cfg.Options, "id_property", ""),
		FallbackLabel:     config.Option(cfg.Options, "fallback_label", "Unknown"),
		BatchSize:         cfg.BatchSize,
		MaxEmptyPolls:     config.OptionInt(cfg.Options, "max_empty_polls", 0),
		Log:               log,
	}), nil
}
