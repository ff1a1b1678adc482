package kafkaconsumer

import (
	"context"
	"strings"

	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

func init() {
	capture.Register(capture.KindKafkaConsumer, build)
}

func build(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (capture.Source, error) {
	if len(cfg.Tables) == 0 {
		return nil, errs.NewConfigError("source.tables", "kafka_consumer requires exactly one topic in source.tables", nil)
	}
	return New(Config{
		Brokers: strings.Split(cfg.ConnectionString, ","),
		Topic:   cfg.Tables[0],
		GroupID: config.Option(cfg.Options, "group_id", "convergedb-sync"),
		Log:     log,
	}), nil
}
