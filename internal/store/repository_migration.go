package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

// migrationRepository is the PostgreSQL-backed implementation of
// [MigrationRepository] over the "migration_queue" and "migration_backups"
// tables. The partial unique index uq_migration_queue_live keeps at most one
// live item per user; ClaimPending relies on FOR UPDATE SKIP LOCKED so
// concurrent sweeps never hand the same user to two workers.
type migrationRepository struct {
	*DB
	logger *logger.Logger
}

// NewMigrationRepository constructs a [MigrationRepository] backed by the
// provided database connection and logger.
func NewMigrationRepository(db *DB, logger *logger.Logger) MigrationRepository {
	return &migrationRepository{
		DB:     db,
		logger: logger,
	}
}

// Enqueue inserts a pending queue item for the user. Returns
// [ErrMigrationAlreadyQueued] when the user already has a live item.
func (r *migrationRepository) Enqueue(ctx context.Context, userID int64, priority int) (*models.MigrationQueueItem, error) {
	log := logger.FromContext(ctx)

	var item models.MigrationQueueItem

	err := r.DB.QueryRowContext(ctx, enqueueMigration, userID, priority).Scan(
		&item.ID,
		&item.UserID,
		&item.Priority,
		&item.Status,
		&item.RequestedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_migration_queue_live") {
			log.Warn().
				Str("func", "migrationRepository.Enqueue").
				Int64("user_id", userID).
				Msg("user already has a live queue item")
			return nil, fmt.Errorf("%w: %w", ErrMigrationAlreadyQueued, err)
		}
		log.Err(err).
			Str("func", "migrationRepository.Enqueue").
			Int64("user_id", userID).
			Msg("failed to insert queue item")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	log.Info().
		Str("func", "migrationRepository.Enqueue").
		Int64("user_id", userID).
		Int("priority", priority).
		Msg("queued migration for user")

	return &item, nil
}

// GetActive returns the user's live (pending or processing) item, or
// (nil, nil) when there is none.
func (r *migrationRepository) GetActive(ctx context.Context, userID int64) (*models.MigrationQueueItem, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, getActiveMigration, userID)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Err(err).
			Str("func", "migrationRepository.GetActive").
			Int64("user_id", userID).
			Msg("failed to query active queue item")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return item, nil
}

// History returns the user's queue items, newest first, up to limit.
func (r *migrationRepository) History(ctx context.Context, userID int64, limit int) ([]models.MigrationQueueItem, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, migrationHistory, userID, limit)
	if err != nil {
		log.Err(err).
			Str("func", "migrationRepository.History").
			Int64("user_id", userID).
			Msg("failed to execute migration history query")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	items := make([]models.MigrationQueueItem, 0, limit)

	for rows.Next() {
		item, scanErr := scanQueueItem(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "migrationRepository.History").
				Int64("user_id", userID).
				Msg("failed to scan queue item row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		items = append(items, *item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "migrationRepository.History").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return items, nil
}

// LastTerminal returns the user's most recently finished item, or (nil, nil)
// when the user never attempted a migration.
func (r *migrationRepository) LastTerminal(ctx context.Context, userID int64) (*models.MigrationQueueItem, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, lastTerminalMigration, userID)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Err(err).
			Str("func", "migrationRepository.LastTerminal").
			Int64("user_id", userID).
			Msg("failed to query last terminal queue item")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return item, nil
}

// HasCompleted reports whether the user has at least one completed
// migration.
func (r *migrationRepository) HasCompleted(ctx context.Context, userID int64) (bool, error) {
	log := logger.FromContext(ctx)

	var completed bool
	if err := r.DB.QueryRowContext(ctx, hasCompletedMigration, userID).Scan(&completed); err != nil {
		log.Err(err).
			Str("func", "migrationRepository.HasCompleted").
			Int64("user_id", userID).
			Msg("failed to query completed migrations")
		return false, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return completed, nil
}

// CountProcessing returns the number of items currently processing.
func (r *migrationRepository) CountProcessing(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	var count int
	if err := r.DB.QueryRowContext(ctx, countProcessingMigrations).Scan(&count); err != nil {
		log.Err(err).
			Str("func", "migrationRepository.CountProcessing").
			Msg("failed to count processing queue items")
		return 0, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return count, nil
}

// ClaimPending atomically promotes up to limit pending items to processing
// in priority order and returns the claimed items.
func (r *migrationRepository) ClaimPending(ctx context.Context, limit int) ([]models.MigrationQueueItem, error) {
	log := logger.FromContext(ctx)

	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, claimPendingMigrations, limit)
	if err != nil {
		log.Err(err).
			Str("func", "migrationRepository.ClaimPending").
			Int("limit", limit).
			Msg("failed to execute claim query")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	items := make([]models.MigrationQueueItem, 0, limit)

	for rows.Next() {
		var item models.MigrationQueueItem
		var startedAt sql.NullTime

		scanErr := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Priority,
			&item.Status,
			&item.RequestedAt,
			&startedAt,
		)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "migrationRepository.ClaimPending").
				Msg("failed to scan claimed queue item")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		item.StartedAt = timePtr(startedAt)
		items = append(items, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "migrationRepository.ClaimPending").
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	if len(items) > 0 {
		log.Info().
			Str("func", "migrationRepository.ClaimPending").
			Int("claimed", len(items)).
			Msg("claimed pending migrations for processing")
	}

	return items, nil
}

// Finish moves a processing item to a terminal status.
func (r *migrationRepository) Finish(ctx context.Context, id int64, status models.MigrationStatus, errMsg string) error {
	log := logger.FromContext(ctx)

	result, err := r.DB.ExecContext(ctx, finishMigration, id, status, errMsg)
	if err != nil {
		log.Err(err).
			Str("func", "migrationRepository.Finish").
			Int64("queue_id", id).
			Str("status", string(status)).
			Msg("failed to finish queue item")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		log.Warn().
			Str("func", "migrationRepository.Finish").
			Int64("queue_id", id).
			Msg("queue item not in processing state")
		return ErrEntityNotFound
	}

	return nil
}

// SaveBackup stores a write-once pre-migration snapshot and returns its ID.
func (r *migrationRepository) SaveBackup(ctx context.Context, userID int64, snapshot models.DataSnapshot) (int64, error) {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Err(err).
			Str("func", "migrationRepository.SaveBackup").
			Int64("user_id", userID).
			Msg("failed to marshal snapshot")
		return 0, fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}

	var backupID int64
	if err = r.DB.QueryRowContext(ctx, saveMigrationBackup, userID, payload).Scan(&backupID); err != nil {
		log.Err(err).
			Str("func", "migrationRepository.SaveBackup").
			Int64("user_id", userID).
			Msg("failed to insert migration backup")
		return 0, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	log.Info().
		Str("func", "migrationRepository.SaveBackup").
		Int64("user_id", userID).
		Int64("backup_id", backupID).
		Msg("saved pre-migration backup")

	return backupID, nil
}

// LatestBackup returns the user's most recent backup, or [ErrNoBackupFound].
func (r *migrationRepository) LatestBackup(ctx context.Context, userID int64) (*models.MigrationBackup, error) {
	log := logger.FromContext(ctx)

	var backup models.MigrationBackup
	var payload []byte

	err := r.DB.QueryRowContext(ctx, latestMigrationBackup, userID).Scan(
		&backup.ID,
		&backup.UserID,
		&backup.CreatedAt,
		&payload,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoBackupFound
		}
		log.Err(err).
			Str("func", "migrationRepository.LatestBackup").
			Int64("user_id", userID).
			Msg("failed to query latest backup")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	if err = json.Unmarshal(payload, &backup.Snapshot); err != nil {
		log.Err(err).
			Str("func", "migrationRepository.LatestBackup").
			Int64("user_id", userID).
			Msg("failed to unmarshal snapshot")
		return nil, fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}

	return &backup, nil
}

// RestoreSnapshot replaces the user's entity-store contents with the
// snapshot. The delete and every reinsert run in a single transaction, so a
// failed restore leaves the store untouched.
func (r *migrationRepository) RestoreSnapshot(ctx context.Context, userID int64, snapshot models.DataSnapshot) error {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).
			Str("func", "migrationRepository.RestoreSnapshot").
			Int64("user_id", userID).
			Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	for _, query := range []string{deleteUserSessions, deleteUserFiles, deleteUserPatients} {
		if _, err = tx.ExecContext(ctx, query, userID); err != nil {
			log.Err(err).
				Str("func", "migrationRepository.RestoreSnapshot").
				Int64("user_id", userID).
				Msg("failed to clear user entities")
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	for i := range snapshot.Patients {
		p := &snapshot.Patients[i]
		_, err = tx.ExecContext(ctx, createPatient,
			p.PatientID, p.UserID, p.Name, p.DateOfBirth, p.Contact, p.Notes,
			p.IsActive, p.CreatedAt, p.UpdatedAt, p.LastSessionAt,
		)
		if err != nil {
			log.Err(err).
				Str("func", "migrationRepository.RestoreSnapshot").
				Int64("user_id", userID).
				Str("patient_id", p.PatientID).
				Msg("failed to restore patient")
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	for i := range snapshot.Sessions {
		s := &snapshot.Sessions[i]
		_, err = tx.ExecContext(ctx, createSession,
			s.SessionID, s.PatientID, s.UserID, s.ScheduledAt, s.DurationMinutes,
			s.Status, s.Notes, s.IsActive, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			log.Err(err).
				Str("func", "migrationRepository.RestoreSnapshot").
				Int64("user_id", userID).
				Str("session_id", s.SessionID).
				Msg("failed to restore session")
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	for i := range snapshot.Files {
		f := &snapshot.Files[i]
		_, err = tx.ExecContext(ctx, createFile,
			f.FileID, f.UserID, f.Name, f.MimeType, f.SizeBytes, f.StoragePath,
			f.IsActive, f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			log.Err(err).
				Str("func", "migrationRepository.RestoreSnapshot").
				Int64("user_id", userID).
				Str("file_id", f.FileID).
				Msg("failed to restore file")
			return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "migrationRepository.RestoreSnapshot").
			Int64("user_id", userID).
			Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	log.Info().
		Str("func", "migrationRepository.RestoreSnapshot").
		Int64("user_id", userID).
		Int("patients", len(snapshot.Patients)).
		Int("sessions", len(snapshot.Sessions)).
		Int("files", len(snapshot.Files)).
		Msg("restored entity store from snapshot")

	return nil
}

func scanQueueItem(row rowScanner) (*models.MigrationQueueItem, error) {
	var item models.MigrationQueueItem
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Priority,
		&item.Status,
		&item.RequestedAt,
		&startedAt,
		&finishedAt,
		&item.Error,
	)
	if err != nil {
		return nil, err
	}

	item.StartedAt = timePtr(startedAt)
	item.FinishedAt = timePtr(finishedAt)

	return &item, nil
}
