package mysqltrigger

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

func init() {
	capture.Register(capture.KindMySQLTrigger, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	db, err := sql.Open("mysql", cfg.ConnectionString)
	if err != nil {
		return nil, errs.NewSourceError("mysql", "failed to open connection", err, false)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.NewSourceError("mysql", "failed to reach server", err, true)
	}
	return New(Config{
		DB:            db,
		Registry:      reg,
		BatchSize:     cfg.BatchSize,
		MaxEmptyPolls: config.OptionInt(cfg.Options, "max_empty_polls", 0),
		Log:           log,
	}), nil
}
