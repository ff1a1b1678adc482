package pgtrigger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

func init() {
	capture.Register(capture.KindPostgresTrigger, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, errs.NewSourceError("postgresql", "failed to connect pool", err, false)
	}
	return New(Config{
		Pool:          pool,
		Registry:      reg,
		BatchSize:     cfg.BatchSize,
		MaxEmptyPolls: config.OptionInt(cfg.Options, "max_empty_polls", 0),
		Log:           log,
	}), nil
}
