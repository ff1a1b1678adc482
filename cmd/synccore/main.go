// Command synccore is the thin wiring entrypoint for one sync run: it
// loads run configuration and the schema registry, builds the
// configured capture.Source through the registry, and drives
// pkg/coordinator to completion against an in-process target store.
//
// Flag-based configuration, blank imports to trigger adapter/source
// registration, and context.Context plus signal.NotifyContext as the
// shutdown path.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/convergedb/sync/pkg/applier"
	"github.com/convergedb/sync/pkg/capture"
	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/coordinator"
	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target/memstore"
	"github.com/convergedb/sync/pkg/utm"

	// Blank-import every capture source so its init() registers a Factory
	// with pkg/capture. This file never imports a source package for its
	// exported names, only for registration side effects.
	_ "github.com/convergedb/sync/pkg/capture/kafkaconsumer"
	_ "github.com/convergedb/sync/pkg/capture/mongostream"
	_ "github.com/convergedb/sync/pkg/capture/mysqltrigger"
	_ "github.com/convergedb/sync/pkg/capture/neo4jpoll"
	_ "github.com/convergedb/sync/pkg/capture/pgtrigger"
	_ "github.com/convergedb/sync/pkg/capture/pgwal"
)

var (
	configPath = flag.String("config", "config.yaml", "path to the run configuration file")
)

func main() {
	flag.Parse()
	log := logger.New("synccore")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, log))
}

func run(ctx context.Context, log *logger.Logger) int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading config: %v", err)
		return 2
	}

	reg, err := schema.Load(cfg.Source.SchemaPath)
	if err != nil {
		log.Error("loading schema: %v", err)
		return 2
	}

	log.Info("source=%s (%s) target=%s", cfg.Source.Kind, config.Redact(cfg.Source.ConnectionString), config.Redact(cfg.Target.ConnectionString))

	source, err := capture.Build(ctx, capture.SourceKind(cfg.Source.Kind), cfg.Source, reg, log)
	if err != nil {
		log.Error("building source: %v", err)
		return 2
	}
	if err := source.Initialize(ctx); err != nil {
		log.Error("initializing source: %v", err)
		return 3
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := source.Cleanup(cleanupCtx); err != nil {
			log.Warn("source cleanup failed: %v", err)
		}
	}()

	// target/memstore is this repository's reference target.Store
	// realization; a concrete document/graph store driver is an external
	// collaborator out of scope beyond the target.Store interface. A
	// production deployment swaps this for that driver behind the same
	// interface.
	store := memstore.New()
	if cfg.Target.DryRun {
		log.Warn("target.dry_run is set, but this reference target has no durable backing store to skip writing to")
	}
	app := applier.New(store, log)

	deadline := time.Time{}
	if cfg.DeadlineSeconds > 0 {
		deadline = time.Now().Add(time.Duration(cfg.DeadlineSeconds) * time.Second)
	}

	coord := coordinator.New(coordinator.Config{
		SetupTracking: func(ctx context.Context) error {
			return source.SetupTracking(ctx, cfg.Source.Tables)
		},
		OpenStream: func(ctx context.Context, from utm.Checkpoint) (coordinator.ChangeStream, error) {
			return source.Changes(ctx, from)
		},
		Apply: app.Apply,
		SaveCheckpoint: func(ctx context.Context, checkpoint utm.Checkpoint) error {
			log.Debug("checkpoint advanced to %s", checkpoint.String())
			return nil
		},
		Deadline:   deadline,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  time.Duration(cfg.RetryBaseDelayMillis) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.RetryMaxDelayMillis) * time.Millisecond,
		Log:        log,
	})

	if err := coord.Run(ctx); err != nil {
		return exitCodeFor(err, log)
	}
	if coord.DeadlineExceeded() {
		log.Warn("deadline reached without reaching target checkpoint")
		return 5
	}
	log.Info("sync run completed")
	return 0
}

// exitCodeFor classifies a terminal coordinator error into the process
// exit codes: 2 configuration error, 3 source error exhausted retries,
// 4 target error exhausted retries, and a bare cancellation (ctx done)
// falls through to a generic non-zero code.
func exitCodeFor(err error, log *logger.Logger) int {
	var cfgErr *errs.ConfigError
	var srcErr *errs.SourceError
	var applyErr *errs.ApplyError
	switch {
	case errs.IsCancellation(err):
		log.Info("sync run cancelled")
		return 1
	case errors.As(err, &cfgErr):
		log.Error("configuration error: %v", err)
		return 2
	case errors.As(err, &srcErr):
		log.Error("source error: %v", err)
		return 3
	case errors.As(err, &applyErr):
		log.Error("target error: %v", err)
		return 4
	default:
		log.Error("sync run failed: %v", err)
		return 1
	}
}
