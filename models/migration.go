package models

import "time"

// MigrationStatus is the lifecycle state of one queued migration.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationProcessing MigrationStatus = "processing"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationSkipped    MigrationStatus = "skipped"
)

// Terminal reports whether the status is an end state. A user with only
// terminal queue items may request a fresh migration once the cooldown
// window has elapsed.
func (s MigrationStatus) Terminal() bool {
	return s == MigrationCompleted || s == MigrationFailed || s == MigrationSkipped
}

// MigrationQueueItem is one user's pending, active or finished migration.
//
// Priority ordering is total: lower values admit sooner, ties break by
// RequestedAt ascending, then UserID ascending. At most one item per user
// may be non-terminal, and the count of processing items never exceeds the
// configured concurrency cap.
type MigrationQueueItem struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Priority    int             `json:"priority"`
	Status      MigrationStatus `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// DataSnapshot is a user's full entity-store contents, captured before the
// first migration write and restored verbatim by rollback.
type DataSnapshot struct {
	Patients []Patient    `json:"patients"`
	Sessions []Session    `json:"sessions"`
	Files    []FileRecord `json:"files"`
}

// Empty reports whether the snapshot holds no entities at all.
func (s DataSnapshot) Empty() bool {
	return len(s.Patients) == 0 && len(s.Sessions) == 0 && len(s.Files) == 0
}

// MigrationBackup is a write-once pre-migration snapshot. Multiple backups
// may exist per user; rollback always selects the most recent.
type MigrationBackup struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
	Snapshot  DataSnapshot `json:"snapshot"`
}

// MigrationOptions tunes one migration run.
type MigrationOptions struct {
	// DryRun validates every entity without writing anything.
	DryRun bool `json:"dry_run"`

	// BackupLocalData snapshots the user's entity-store state before the
	// first write, enabling rollback.
	BackupLocalData bool `json:"backup_local_data"`

	// MaxRetries is the number of additional attempts per entity after the
	// first write fails; RetryDelay is the pause between attempts.
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// Entity outcome states reported by the migrator.
const (
	OutcomeMigrated  = "migrated"
	OutcomeValidated = "validated"
	OutcomeFailed    = "failed"
)

// EntityOutcome is the per-entity result of a migration run. Failures do not
// abort the run; they are recorded here and the run continues.
type EntityOutcome struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
}

// MigrationResult is the summary of one migration run. Partial success is an
// expected outcome: Failed > 0 with Migrated > 0 means the run completed but
// some entities need attention.
type MigrationResult struct {
	UserID     int64           `json:"user_id"`
	DryRun     bool            `json:"dry_run"`
	Total      int             `json:"total"`
	Migrated   int             `json:"migrated"`
	Failed     int             `json:"failed"`
	BackupID   int64           `json:"backup_id,omitempty"`
	Outcomes   []EntityOutcome `json:"outcomes"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
