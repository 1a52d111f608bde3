package models

import "time"

// PushRequest is a device's batch of pending local changes.
type PushRequest struct {
	DeviceID string `json:"device_id"`

	// LastSyncedAt is the device's checkpoint: the newest server timestamp
	// it has pulled. The conflict detector treats any foreign change newer
	// than this as concurrent. A zero value is the safe default — every
	// foreign change for the entity is then considered concurrent.
	LastSyncedAt time.Time `json:"last_synced_at,omitempty"`

	Changes []ChangeRecord `json:"changes"`
}

// PushResponse reports per-batch outcome counts plus the audit records and
// conflicts produced. Processing is per-change: one failure never aborts the
// rest of the batch.
type PushResponse struct {
	ProcessedChanges int            `json:"processed_changes"`
	Conflicts        int            `json:"conflicts"`
	Changes          []ChangeRecord `json:"changes"`
	ConflictsList    []SyncConflict `json:"conflicts_list"`
}

// PulledChange is one foreign change plus the entity's current authoritative
// state, so a client can reconcile even if it missed intermediate changes.
type PulledChange struct {
	ChangeRecord

	// CurrentState is the entity's present server-side state (a Patient,
	// Session or FileRecord), nil when the entity row cannot be found.
	CurrentState any `json:"current_state,omitempty"`
}

// PullResponse carries every change made by other devices since the caller's
// checkpoint, ordered by timestamp ascending, plus all of the user's
// unresolved conflicts regardless of the checkpoint.
type PullResponse struct {
	Changes        []PulledChange `json:"changes"`
	Conflicts      []SyncConflict `json:"conflicts"`
	ServerTime     time.Time      `json:"server_time"`
	TotalChanges   int            `json:"total_changes"`
	TotalConflicts int            `json:"total_conflicts"`
}

// ResolveRequest asks the server to settle one unresolved conflict.
type ResolveRequest struct {
	ConflictID         string             `json:"conflict_id"`
	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy"`

	// ResolvedValue is required for the manual strategy and optional for
	// merge (omitted, the server computes the deterministic merge).
	ResolvedValue   FieldMap `json:"resolved_value,omitempty"`
	ResolutionNotes string   `json:"resolution_notes,omitempty"`
	DeviceID        string   `json:"device_id,omitempty"`
}

// MigrationRequest asks the rollout coordinator to queue the caller.
type MigrationRequest struct {
	Priority int `json:"priority"`
}

// MigrationRequestResponse reports acceptance or the rejection reason
// (not eligible / already queued).
type MigrationRequestResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// RolloutConfigView is the subset of rollout configuration exposed through
// the status endpoint.
type RolloutConfigView struct {
	Enabled                 bool   `json:"enabled"`
	Percentage              int    `json:"percentage"`
	MaxConcurrentMigrations int    `json:"max_concurrent_migrations"`
	Cooldown                string `json:"cooldown"`
}

// MigrationStatusResponse is the read-only migration view for one user.
type MigrationStatusResponse struct {
	Eligible    bool                 `json:"eligible"`
	Reasons     []string             `json:"reasons,omitempty"`
	Migrated    bool                 `json:"migrated"`
	QueueStatus *MigrationQueueItem  `json:"queue_status,omitempty"`
	History     []MigrationQueueItem `json:"history"`
	Config      RolloutConfigView    `json:"config"`
}

// MigrationExecuteRequest triggers a migration run for a user. Privileged.
type MigrationExecuteRequest struct {
	UserID int64 `json:"user_id,omitempty"`
	DryRun bool  `json:"dry_run,omitempty"`
}

// MigrationRollbackRequest restores a user's entity stores from the most
// recent backup. Privileged.
type MigrationRollbackRequest struct {
	UserID int64 `json:"user_id,omitempty"`
}

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
