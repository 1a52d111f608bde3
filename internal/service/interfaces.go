package service

import (
	"context"
	"time"

	"github.com/therappio/clinsync/models"
)

// SyncService is the device-facing synchronization surface: push local
// changes up, pull foreign changes down, and settle conflicts.
type SyncService interface {
	// Push processes a device's batch of pending changes. Processing is
	// per-change: one invalid or conflicting change never aborts the rest
	// of the batch.
	Push(ctx context.Context, userID int64, request *models.PushRequest) (*models.PushResponse, error)

	// Pull returns every change made by other devices since the caller's
	// checkpoint, each with the entity's current authoritative state, plus
	// all of the user's unresolved conflicts.
	Pull(ctx context.Context, userID int64, deviceID string, since time.Time, entityTypes []models.EntityType) (*models.PullResponse, error)

	// Resolve settles one unresolved conflict with the requested strategy
	// and returns the conflict in its resolved state.
	Resolve(ctx context.Context, userID int64, request *models.ResolveRequest) (*models.SyncConflict, error)
}

// Detection is the outcome of checking one pushed change against the
// server-side change history.
type Detection struct {
	// Conflict is nil when the change does not collide with any foreign
	// change.
	Conflict *models.SyncConflict

	// AutoResolution is non-nil when the conflict is a concurrent update
	// over disjoint field sets: the deterministic union merge that settles
	// it without human intervention.
	AutoResolution *models.ConflictResolution
}

// ConflictDetector decides whether a pushed change collides with a change
// another device already synced.
type ConflictDetector interface {
	// Detect compares the change against the newest synced foreign change
	// for the same entity that is newer than lastSyncedAt. A zero
	// lastSyncedAt is the fail-safe default: every foreign change for the
	// entity counts as concurrent.
	Detect(ctx context.Context, change *models.ChangeRecord, lastSyncedAt time.Time) (*Detection, error)
}

// RolloutService is the progressive-rollout migration coordinator.
type RolloutService interface {
	// Eligibility evaluates every rollout gate for the user and returns
	// the verdict plus the human-readable reasons for any rejection.
	Eligibility(ctx context.Context, userID int64, role, appVersion string) (bool, []string, error)

	// RequestMigration queues the user for migration when eligible.
	// Rejections (not eligible, already queued) are reported in the
	// response, not as errors.
	RequestMigration(ctx context.Context, userID int64, role, appVersion string, priority int) (*models.MigrationRequestResponse, error)

	// Status returns the read-only migration view for the user.
	Status(ctx context.Context, userID int64, role, appVersion string) (*models.MigrationStatusResponse, error)

	// Sweep claims pending queue items up to the concurrency cap and runs
	// their migrations. At most one sweep runs at a time per instance;
	// overlapping calls return immediately with zero claimed.
	Sweep(ctx context.Context) (int, error)
}

// MigrationService moves a user's device-local dataset into the
// authoritative entity store.
type MigrationService interface {
	// MigrateUserData runs one migration for the user. Per-entity failures
	// are recorded in the result and do not abort the run.
	MigrateUserData(ctx context.Context, userID int64, opts models.MigrationOptions) (*models.MigrationResult, error)

	// Rollback restores the user's entity store from the most recent
	// pre-migration backup.
	Rollback(ctx context.Context, userID int64) error
}
