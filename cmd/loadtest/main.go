// Command loadtest is the thin wiring entrypoint for the load/verify
// harness: depending on -mode, it runs one populate worker, one verify
// worker, or the metrics aggregator's HTTP server, then exits.
//
// Flag-based configuration and context.Context plus signal.NotifyContext
// as the shutdown path, with one binary covering three run modes rather
// than three separate commands, since all three share the same
// schema/seed/table configuration surface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/convergedb/sync/pkg/harness/aggregator"
	"github.com/convergedb/sync/pkg/harness/populate"
	"github.com/convergedb/sync/pkg/harness/verify"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target/memstore"
)

var (
	mode        = flag.String("mode", "", "run mode: populate, verify, or aggregator")
	schemaPath  = flag.String("schema", "", "path to the schema description YAML file")
	seed        = flag.Int64("seed", 1, "deterministic generation seed")
	rowCount    = flag.Int64("rows", 1000, "rows to populate or verify per table")
	batchSize   = flag.Int("batch-size", 500, "populate batch size")
	tablesFlag  = flag.String("tables", "", "comma-separated table list (empty means every table in the schema)")
	containerID = flag.String("container-id", "", "this worker's container id, reported to the aggregator")
	aggURL      = flag.String("aggregator", "", "aggregator base URL to POST the final report to (empty skips reporting)")
	dryRun      = flag.Bool("dry-run", false, "populate: log what would be written without writing")
	dataOnly    = flag.Bool("data-only", false, "populate: skip CREATE TABLE, assume tables already exist")

	dsn     = flag.String("dsn", "", "populate: source database DSN (requires -dialect)")
	dialect = flag.String("dialect", "", "populate: source SQL dialect, \"mysql\" or \"postgres\"")

	pollInterval = flag.Duration("poll-interval", 200*time.Millisecond, "verify: convergence barrier poll interval")
	timeout      = flag.Duration("timeout", 30*time.Second, "verify: per-table convergence barrier timeout")

	listenAddr      = flag.String("listen", ":9090", "aggregator: HTTP listen address")
	expectedWorkers = flag.Int("expected-workers", 1, "aggregator: number of worker reports to wait for")
	waitTimeout     = flag.Duration("wait-timeout", 5*time.Minute, "aggregator: how long to wait for all reports before exiting")
)

func main() {
	flag.Parse()
	log := logger.New("loadtest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch *mode {
	case "populate":
		code = runPopulate(ctx, log)
	case "verify":
		code = runVerify(ctx, log)
	case "aggregator":
		code = runAggregator(ctx, log)
	default:
		fmt.Fprintln(os.Stderr, "loadtest: -mode must be one of populate, verify, aggregator")
		code = 2
	}
	os.Exit(code)
}

func tableList() []string {
	if *tablesFlag == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(*tablesFlag, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func runPopulate(ctx context.Context, log *logger.Logger) int {
	reg, err := schema.Load(*schemaPath)
	if err != nil {
		log.Error("loading schema: %v", err)
		return 2
	}

	var inserter populate.Inserter
	if *dsn != "" {
		d, err := sqlDialect(*dialect)
		if err != nil {
			log.Error("%v", err)
			return 2
		}
		driverName := "mysql"
		if d == populate.DialectPostgres {
			driverName = "pgx"
		}
		db, err := sql.Open(driverName, *dsn)
		if err != nil {
			log.Error("opening source database: %v", err)
			return 3
		}
		defer db.Close()
		inserter = populate.SQLInserter{DB: db, Dialect: d, Registry: reg}
	} else {
		log.Warn("no -dsn given, populating the in-process reference target store instead of a live source")
		inserter = populate.StoreInserter{Store: memstore.New(), Registry: reg}
	}

	worker := populate.New(populate.Config{
		Inserter:    inserter,
		Registry:    reg,
		Seed:        *seed,
		RowCount:    *rowCount,
		BatchSize:   *batchSize,
		DataOnly:    *dataOnly,
		DryRun:      *dryRun,
		ContainerID: *containerID,
		Log:         log,
	})

	report := worker.Run(ctx, tableList())
	return finish(ctx, log, report)
}

func runVerify(ctx context.Context, log *logger.Logger) int {
	reg, err := schema.Load(*schemaPath)
	if err != nil {
		log.Error("loading schema: %v", err)
		return 2
	}

	// target/memstore is this repository's reference target.Store
	// realization; a production verify worker dials the real target's
	// client library behind the same interface (see cmd/synccore).
	store := memstore.New()

	worker := verify.New(verify.Config{
		Store:        store,
		Registry:     reg,
		Seed:         *seed,
		RowCount:     *rowCount,
		PollInterval: *pollInterval,
		Timeout:      *timeout,
		Comparator:   verify.NewComparator(),
		ContainerID:  *containerID,
		Log:          log,
	})

	report := worker.Run(ctx, tableList())
	return finish(ctx, log, report)
}

func finish(ctx context.Context, log *logger.Logger, report aggregator.Report) int {
	if *aggURL != "" {
		if err := aggregator.Post(ctx, *aggURL, report); err != nil {
			log.Error("posting report to aggregator: %v", err)
		}
	}
	if !report.Success {
		log.Error("run failed: %v", report.Errors)
		return 1
	}
	log.Info("run succeeded")
	return 0
}

func runAggregator(ctx context.Context, log *logger.Logger) int {
	agg := aggregator.New(*expectedWorkers, log)
	srv := &http.Server{Addr: *listenAddr, Handler: agg.Handler()}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("aggregator server failed: %v", err)
		}
	}()

	waitErr := agg.Wait(ctx, *waitTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	fmt.Println(agg.Summary())
	if waitErr != nil {
		log.Error("aggregator wait: %v", waitErr)
	}
	return agg.ExitCode()
}

func sqlDialect(s string) (populate.Dialect, error) {
	switch strings.ToLower(s) {
	case "mysql":
		return populate.DialectMySQL, nil
	case "postgres", "postgresql":
		return populate.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unknown -dialect %q: must be \"mysql\" or \"postgres\"", s)
	}
}
