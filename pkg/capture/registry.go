package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/convergedb/sync/pkg/config"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
)

// SourceKind names a capture.Source realization, matching the config
// file's source.kind field.
type SourceKind string

const (
	KindPostgresTrigger SourceKind = "postgres_trigger"
	KindPostgresWAL     SourceKind = "postgres_wal"
	KindMySQLTrigger    SourceKind = "mysql_trigger"
	KindMongoStream     SourceKind = "mongodb_stream"
	KindNeo4jPoll       SourceKind = "neo4j_poll"
	KindKafkaConsumer   SourceKind = "kafka_consumer"
)

// Factory builds and connects a Source from run configuration. Each
// source package registers its own Factory from an init(), following
// pkg/anchor/adapter/registry.go's pattern: the wiring entrypoint
// (cmd/synccore) blank-imports every source package for registration
// and then builds the configured one by kind, never importing a
// source-specific package by name itself.
type Factory func(ctx context.Context, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (Source, error)

var (
	mu       sync.RWMutex
	registry = make(map[SourceKind]Factory)
)

// Register adds factory under kind, replacing any existing registration.
func Register(kind SourceKind, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = factory
}

// Build looks up the Factory for kind and invokes it.
func Build(ctx context.Context, kind SourceKind, cfg config.SourceConfig, reg *schema.Registry, log *logger.Logger) (Source, error) {
	mu.RLock()
	factory, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capture: no source registered for kind %q (known kinds: %v)", kind, Registered())
	}
	return factory(ctx, cfg, reg, log)
}

// Registered lists every currently registered SourceKind.
func Registered() []SourceKind {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]SourceKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
