package store

import (
	"context"
	"time"

	"github.com/therappio/clinsync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/store_mocks.go -package=mock

// ChangeRecordRepository is the append-only change log. Records are never
// deleted; only the status fields may transition after insert.
type ChangeRecordRepository interface {
	// Save appends one change record with its final status already set.
	// The audit record is deliberately the last write in every per-change
	// sequence, so a timed-out request never leaves a half-written row.
	Save(ctx context.Context, record *models.ChangeRecord) error

	// LatestForeignChange returns the newest synced change for the entity
	// that did not originate from excludeDeviceID and is newer than since.
	// Returns (nil, nil) when there is no such change.
	LatestForeignChange(ctx context.Context, userID int64, entityType models.EntityType, entityID, excludeDeviceID string, since time.Time) (*models.ChangeRecord, error)

	// ListSince returns the user's changes newer than since, excluding
	// those originating from excludeDeviceID, optionally filtered by
	// entity type, ordered by timestamp ascending.
	ListSince(ctx context.Context, userID int64, excludeDeviceID string, since time.Time, entityTypes []models.EntityType) ([]models.ChangeRecord, error)
}

// ConflictRepository stores detected sync conflicts. Rows are never
// deleted; resolution only mutates the resolution fields.
type ConflictRepository interface {
	// Save inserts a conflict. Returns [ErrConflictAlreadyOpen] when the
	// entity already has an unresolved conflict.
	Save(ctx context.Context, conflict *models.SyncConflict) error

	// GetByID returns the conflict or [ErrConflictNotFound].
	GetByID(ctx context.Context, conflictID string) (*models.SyncConflict, error)

	// FindUnresolved returns the entity's single unresolved conflict, or
	// (nil, nil) when there is none.
	FindUnresolved(ctx context.Context, userID int64, entityType models.EntityType, entityID string) (*models.SyncConflict, error)

	// ListUnresolved returns all of the user's unresolved conflicts,
	// oldest first.
	ListUnresolved(ctx context.Context, userID int64) ([]models.SyncConflict, error)

	// MarkResolved writes the resolution fields. Returns
	// [ErrConflictNotFound] for unknown IDs and
	// [ErrConflictAlreadyResolved] when the conflict was already settled.
	MarkResolved(ctx context.Context, conflictID string, resolution models.ConflictResolution) error
}

// PatientRepository is the authoritative patient collection.
type PatientRepository interface {
	Create(ctx context.Context, patient *models.Patient) error
	UpdateFields(ctx context.Context, userID int64, patientID string, fields models.FieldMap) error
	SoftDelete(ctx context.Context, userID int64, patientID string) error
	Get(ctx context.Context, userID int64, patientID string) (*models.Patient, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Patient, error)
}

// SessionRepository is the authoritative session collection. Session writes
// maintain the parent patient's updated_at (and last_session_at on create)
// in the same transaction.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	UpdateFields(ctx context.Context, userID int64, sessionID string, fields models.FieldMap) error
	SoftDelete(ctx context.Context, userID int64, sessionID string) error
	Get(ctx context.Context, userID int64, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Session, error)
}

// FileRepository is the authoritative file-descriptor collection.
type FileRepository interface {
	Create(ctx context.Context, file *models.FileRecord) error
	UpdateFields(ctx context.Context, userID int64, fileID string, fields models.FieldMap) error
	SoftDelete(ctx context.Context, userID int64, fileID string) error
	Get(ctx context.Context, userID int64, fileID string) (*models.FileRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]models.FileRecord, error)
}

// MigrationRepository stores the rollout queue and pre-migration backups.
type MigrationRepository interface {
	// Enqueue inserts a pending queue item. Returns
	// [ErrMigrationAlreadyQueued] when the user already has a live item.
	Enqueue(ctx context.Context, userID int64, priority int) (*models.MigrationQueueItem, error)

	// GetActive returns the user's live (pending or processing) item, or
	// (nil, nil) when there is none.
	GetActive(ctx context.Context, userID int64) (*models.MigrationQueueItem, error)

	// History returns the user's queue items, newest first, up to limit.
	History(ctx context.Context, userID int64, limit int) ([]models.MigrationQueueItem, error)

	// LastTerminal returns the user's most recently finished item, or
	// (nil, nil) when the user never attempted a migration.
	LastTerminal(ctx context.Context, userID int64) (*models.MigrationQueueItem, error)

	// HasCompleted reports whether the user has a completed migration.
	HasCompleted(ctx context.Context, userID int64) (bool, error)

	// CountProcessing returns the number of items currently processing.
	CountProcessing(ctx context.Context) (int, error)

	// ClaimPending atomically promotes up to limit pending items to
	// processing, in priority order, and returns the claimed items.
	ClaimPending(ctx context.Context, limit int) ([]models.MigrationQueueItem, error)

	// Finish moves a processing item to a terminal status.
	Finish(ctx context.Context, id int64, status models.MigrationStatus, errMsg string) error

	// SaveBackup stores a write-once pre-migration snapshot and returns
	// its ID.
	SaveBackup(ctx context.Context, userID int64, snapshot models.DataSnapshot) (int64, error)

	// LatestBackup returns the user's most recent backup, or
	// [ErrNoBackupFound].
	LatestBackup(ctx context.Context, userID int64) (*models.MigrationBackup, error)

	// RestoreSnapshot replaces the user's entity-store contents with the
	// snapshot, in a single transaction.
	RestoreSnapshot(ctx context.Context, userID int64, snapshot models.DataSnapshot) error
}

// LocalStore is the device-resident, local-only dataset the migrator reads.
// Implementations: the staged SQLite device file in production, in-memory
// fakes in tests. Migration never mutates local data.
type LocalStore interface {
	Patients(ctx context.Context, userID int64) ([]models.Patient, error)
	Sessions(ctx context.Context, userID int64) ([]models.Session, error)
	Files(ctx context.Context, userID int64) ([]models.FileRecord, error)
}
