package utm

// PhaseKind names a state in the sync coordinator's state machine.
type PhaseKind string

const (
	PhaseFullSyncStart PhaseKind = "full_sync_start"
	PhaseFullSyncEnd   PhaseKind = "full_sync_end"
	PhaseIncrementalAt PhaseKind = "incremental_at"
	PhaseCompleted     PhaseKind = "completed"
)

// SyncPhase pairs a phase kind with the checkpoint it carries, when
// applicable (IncrementalAt carries the current stream checkpoint;
// FullSyncStart/End carry the t1/t2 checkpoint pair; Completed carries
// none).
type SyncPhase struct {
	Kind       PhaseKind
	Checkpoint *Checkpoint
}
