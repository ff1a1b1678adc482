// Package checkpoint implements the checkpoint store: opaque per-source
// resumption tokens plus the sync-phase journal the sync coordinator
// reads on restart to resume from the last persisted position rather
// than the beginning, so a crash between fetch and apply, followed by a
// restart from the last persisted checkpoint, yields a target state
// identical to a crash-free run.
//
// Persistence is a single JSON document written atomically (write to a
// temp file, then rename) rather than a single os.WriteFile call,
// because a checkpoint file partially overwritten mid-crash would
// itself violate the "never advance past an unapplied change" invariant.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/convergedb/sync/pkg/errs"
	"github.com/convergedb/sync/pkg/utm"
)

// Store persists, per source name, the last-applied checkpoint and the
// coordinator's current sync phase. Store is safe for concurrent use.
type Store interface {
	// Load returns the persisted checkpoint for source, or ok=false if
	// none has ever been saved.
	Load(source string) (cp utm.Checkpoint, ok bool, err error)

	// Save persists cp as the new last-applied checkpoint for source.
	// The coordinator only calls this after cp's change has been
	// applied: a checkpoint is never advanced past an unapplied change.
	Save(source string, cp utm.Checkpoint) error

	// SavePhase persists the coordinator's current SyncPhase for source,
	// so a restart can tell whether it crashed mid full-sync (and must
	// restart the snapshot) or mid-incremental (and can resume from the
	// saved checkpoint).
	SavePhase(source string, phase utm.SyncPhase) error

	// LoadPhase returns the persisted phase for source, or ok=false if
	// none has ever been saved.
	LoadPhase(source string) (phase utm.SyncPhase, ok bool, err error)
}

// record is one source's on-disk state.
type record struct {
	Checkpoint string `json:"checkpoint"`
	Phase      string `json:"phase,omitempty"`
	PhaseCkpt  string `json:"phase_checkpoint,omitempty"`
}

// FileStore is a JSON-file-backed Store, suitable for a single-process
// run: coordination across processes happens only by checkpoints,
// never by in-process shared state; within one process, FileStore's
// mutex is that shared state's single writer.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore persisting to path. The file need not
// exist yet; it is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) readAll() (map[string]record, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, errs.NewCheckpointError("failed to read checkpoint file", err)
	}
	if len(data) == 0 {
		return map[string]record{}, nil
	}
	var all map[string]record
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errs.NewCheckpointError("malformed checkpoint file", err)
	}
	return all, nil
}

func (f *FileStore) writeAll(all map[string]record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return errs.NewCheckpointError("failed to marshal checkpoint file", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errs.NewCheckpointError("failed to create temp checkpoint file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.NewCheckpointError("failed to write temp checkpoint file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.NewCheckpointError("failed to close temp checkpoint file", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errs.NewCheckpointError("failed to commit checkpoint file", err)
	}
	return nil
}

func (f *FileStore) Load(source string) (utm.Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return utm.Checkpoint{}, false, err
	}
	rec, ok := all[source]
	if !ok || rec.Checkpoint == "" {
		return utm.Checkpoint{}, false, nil
	}
	cp, err := utm.ParseCheckpoint(rec.Checkpoint)
	if err != nil {
		return utm.Checkpoint{}, false, errs.NewCheckpointError(fmt.Sprintf("malformed stored checkpoint for source %q", source), err)
	}
	return cp, true, nil
}

func (f *FileStore) Save(source string, cp utm.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return err
	}
	rec := all[source]
	rec.Checkpoint = cp.String()
	all[source] = rec
	return f.writeAll(all)
}

func (f *FileStore) SavePhase(source string, phase utm.SyncPhase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return err
	}
	rec := all[source]
	rec.Phase = string(phase.Kind)
	if phase.Checkpoint != nil {
		rec.PhaseCkpt = phase.Checkpoint.String()
	} else {
		rec.PhaseCkpt = ""
	}
	all[source] = rec
	return f.writeAll(all)
}

func (f *FileStore) LoadPhase(source string) (utm.SyncPhase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil {
		return utm.SyncPhase{}, false, err
	}
	rec, ok := all[source]
	if !ok || rec.Phase == "" {
		return utm.SyncPhase{}, false, nil
	}
	phase := utm.SyncPhase{Kind: utm.PhaseKind(rec.Phase)}
	if rec.PhaseCkpt != "" {
		cp, err := utm.ParseCheckpoint(rec.PhaseCkpt)
		if err != nil {
			return utm.SyncPhase{}, false, errs.NewCheckpointError(fmt.Sprintf("malformed stored phase checkpoint for source %q", source), err)
		}
		phase.Checkpoint = &cp
	}
	return phase, true, nil
}

// MemStore is an in-memory Store with no cross-run resumability, used
// by tests.
type MemStore struct {
	mu         sync.Mutex
	checkpoint map[string]utm.Checkpoint
	phase      map[string]utm.SyncPhase
}

func NewMemStore() *MemStore {
	return &MemStore{
		checkpoint: make(map[string]utm.Checkpoint),
		phase:      make(map[string]utm.SyncPhase),
	}
}

func (m *MemStore) Load(source string) (utm.Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoint[source]
	return cp, ok, nil
}

func (m *MemStore) Save(source string, cp utm.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint[source] = cp
	return nil
}

func (m *MemStore) SavePhase(source string, phase utm.SyncPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase[source] = phase
	return nil
}

func (m *MemStore) LoadPhase(source string) (utm.SyncPhase, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phase, ok := m.phase[source]
	return phase, ok, nil
}
