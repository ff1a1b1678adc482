package pgwal

import (
	"context"
	"time"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

func init() {
	capture.Register(capture.KindPostgresWAL, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	return New(Config{
		ConnString:      cfg.ConnectionString,
		SlotName:        config.Option(cfg.Options, "slot_name", "convergedb_sync"),
		PublicationName: config.Option(cfg.Options, "publication_name", "convergedb_sync"),
		StandbyTimeout:  time.Duration(config.OptionInt(cfg.Options, "standby_timeout_seconds", 10)) * time.Second,
		Log:             log,
	}), nil
}
