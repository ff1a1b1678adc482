// Package memstore is an in-process reference implementation of
// target.Store. The real target driver is treated as an external
// collaborator whose boundary contract is all this repository specifies;
// this store exists so applier, fullsync, the coordinator, and the
// harness have something concrete to drive end-to-end, and so tests can
// assert on Thing-keyed state without a live external database. It is
// not a production target.
package memstore

import (
	"context"
	"sync"

	"github.com/convergedb/sync/pkg/utm"
)

// Store is a mutex-guarded in-memory table/relation set keyed by Thing:
// one sync.RWMutex, taken exclusively by each write and shared by each
// read, since nothing else coordinates access to this reference store.
type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[string]utm.Record
	relations map[string]map[string]utm.Relation
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:    make(map[string]map[string]utm.Record),
		relations: make(map[string]map[string]utm.Relation),
	}
}

func (s *Store) Upsert(_ context.Context, record utm.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.tables[record.ID.Table]
	if table == nil {
		table = make(map[string]utm.Record)
		s.tables[record.ID.Table] = table
	}
	table[record.ID.String()] = record
	return nil
}

func (s *Store) Delete(_ context.Context, id utm.Thing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.tables[id.Table]
	if table == nil {
		return nil
	}
	delete(table, id.String())
	return nil
}

func (s *Store) UpsertRelation(_ context.Context, relation utm.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rels := s.relations[relation.ID.Table]
	if rels == nil {
		rels = make(map[string]utm.Relation)
		s.relations[relation.ID.Table] = rels
	}
	rels[relation.ID.String()] = relation
	return nil
}

func (s *Store) Get(_ context.Context, id utm.Thing) (utm.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table := s.tables[id.Table]
	if table == nil {
		return utm.Record{}, false, nil
	}
	record, ok := table[id.String()]
	return record, ok, nil
}

func (s *Store) ListTable(_ context.Context, table string) ([]utm.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[table]
	out := make([]utm.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) RowCount(_ context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table]), nil
}

// ListRelations returns every relation currently stored for relType,
// for tests asserting on edge upserts.
func (s *Store) ListRelations(_ context.Context, relType string) ([]utm.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rels := s.relations[relType]
	out := make([]utm.Relation, 0, len(rels))
	for _, r := range rels {
		out = append(out, r)
	}
	return out, nil
}
