package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

// changeRecordRepository is the PostgreSQL-backed implementation of
// [ChangeRecordRepository]. All writes go to the append-only
// "change_records" table through the embedded [*DB] connection.
type changeRecordRepository struct {
	*DB
	logger *logger.Logger
}

// NewChangeRecordRepository constructs a [ChangeRecordRepository] backed by
// the provided database connection and logger.
func NewChangeRecordRepository(db *DB, logger *logger.Logger) ChangeRecordRepository {
	return &changeRecordRepository{
		DB:     db,
		logger: logger,
	}
}

// Save appends one change record with its final status already set.
func (r *changeRecordRepository) Save(ctx context.Context, record *models.ChangeRecord) error {
	log := logger.FromContext(ctx)

	_, err := r.DB.ExecContext(ctx, saveChangeRecord,
		record.ChangeID,
		record.UserID,
		record.DeviceID,
		record.EntityType,
		record.EntityID,
		record.Operation,
		record.Changes,
		record.PreviousValues,
		record.NewValues,
		record.Timestamp,
		record.SyncStatus,
		record.RetryCount,
		nullableString(record.LastError),
	)
	if err != nil {
		log.Err(err).
			Str("func", "changeRecordRepository.Save").
			Str("change_id", record.ChangeID).
			Int64("user_id", record.UserID).
			Msg("failed to insert change record")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return nil
}

// LatestForeignChange returns the newest synced change for the entity that
// originated from a different device and is newer than since.
func (r *changeRecordRepository) LatestForeignChange(ctx context.Context, userID int64, entityType models.EntityType, entityID, excludeDeviceID string, since time.Time) (*models.ChangeRecord, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, latestForeignChange, userID, entityType, entityID, excludeDeviceID, since)

	record, err := scanChangeRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Err(err).
			Str("func", "changeRecordRepository.LatestForeignChange").
			Int64("user_id", userID).
			Str("entity_id", entityID).
			Msg("failed to query latest foreign change")
		return nil, err
	}

	return record, nil
}

// ListSince returns the user's synced changes newer than since, excluding
// those originating from excludeDeviceID, ordered by timestamp ascending.
func (r *changeRecordRepository) ListSince(ctx context.Context, userID int64, excludeDeviceID string, since time.Time, entityTypes []models.EntityType) ([]models.ChangeRecord, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildListChangesQuery(userID, excludeDeviceID, since, entityTypes)
	if err != nil {
		log.Err(err).
			Str("func", "changeRecordRepository.ListSince").
			Int64("user_id", userID).
			Msg("failed to build list changes query")
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "changeRecordRepository.ListSince").
			Int64("user_id", userID).
			Str("exclude_device_id", excludeDeviceID).
			Msg("failed to execute list changes query")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	changes := make([]models.ChangeRecord, 0, 50)

	for rows.Next() {
		record, scanErr := scanChangeRecord(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "changeRecordRepository.ListSince").
				Int64("user_id", userID).
				Msg("failed to scan change record row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		changes = append(changes, *record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "changeRecordRepository.ListSince").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return changes, nil
}

// rowScanner is the shared surface of *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChangeRecord(row rowScanner) (*models.ChangeRecord, error) {
	var record models.ChangeRecord
	var lastError sql.NullString

	err := row.Scan(
		&record.ChangeID,
		&record.UserID,
		&record.DeviceID,
		&record.EntityType,
		&record.EntityID,
		&record.Operation,
		&record.Changes,
		&record.PreviousValues,
		&record.NewValues,
		&record.Timestamp,
		&record.SyncStatus,
		&record.RetryCount,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	record.LastError = lastError.String

	return &record, nil
}

// nullableString maps "" to SQL NULL for optional text columns.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
