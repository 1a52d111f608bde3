package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

// fileRepository is the PostgreSQL-backed implementation of [FileRepository]
// over the "files" table. Only the descriptor syncs; payloads live in
// external storage.
type fileRepository struct {
	*DB
	logger *logger.Logger
}

// NewFileRepository constructs a [FileRepository] backed by the provided
// database connection and logger.
func NewFileRepository(db *DB, logger *logger.Logger) FileRepository {
	return &fileRepository{
		DB:     db,
		logger: logger,
	}
}

// Create inserts a new file descriptor. Returns [ErrEntityAlreadyExists] on
// a duplicate (user_id, file_id).
func (r *fileRepository) Create(ctx context.Context, file *models.FileRecord) error {
	log := logger.FromContext(ctx)

	_, err := r.DB.ExecContext(ctx, createFile,
		file.FileID,
		file.UserID,
		file.Name,
		file.MimeType,
		file.SizeBytes,
		file.StoragePath,
		file.IsActive,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			log.Warn().
				Str("func", "fileRepository.Create").
				Int64("user_id", file.UserID).
				Str("file_id", file.FileID).
				Msg("file already exists")
			return fmt.Errorf("%w: %w", ErrEntityAlreadyExists, err)
		}
		log.Err(err).
			Str("func", "fileRepository.Create").
			Int64("user_id", file.UserID).
			Str("file_id", file.FileID).
			Msg("failed to insert file record")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return nil
}

// UpdateFields applies a partial update built from the sanitized field map.
func (r *fileRepository) UpdateFields(ctx context.Context, userID int64, fileID string, fields models.FieldMap) error {
	log := logger.FromContext(ctx)

	query, args, err := buildEntityUpdateQuery("files", "file_id", userID, fileID, fields)
	if err != nil {
		log.Err(err).
			Str("func", "fileRepository.UpdateFields").
			Str("file_id", fileID).
			Msg("failed to build update query")
		return err
	}

	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "fileRepository.UpdateFields").
			Int64("user_id", userID).
			Str("file_id", fileID).
			Msg("failed to execute update query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return checkAffected(result, "file", fileID, log)
}

// SoftDelete deactivates the file descriptor, preserving the row for audit.
func (r *fileRepository) SoftDelete(ctx context.Context, userID int64, fileID string) error {
	log := logger.FromContext(ctx)

	result, err := r.DB.ExecContext(ctx, softDeleteFile, userID, fileID)
	if err != nil {
		log.Err(err).
			Str("func", "fileRepository.SoftDelete").
			Int64("user_id", userID).
			Str("file_id", fileID).
			Msg("failed to execute soft delete query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return checkAffected(result, "file", fileID, log)
}

// Get returns the file descriptor or [ErrEntityNotFound].
func (r *fileRepository) Get(ctx context.Context, userID int64, fileID string) (*models.FileRecord, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, getFile, userID, fileID)

	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		log.Err(err).
			Str("func", "fileRepository.Get").
			Int64("user_id", userID).
			Str("file_id", fileID).
			Msg("failed to query file record")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return file, nil
}

// ListByUser returns all of the user's file descriptors, including
// soft-deleted ones, oldest first.
func (r *fileRepository) ListByUser(ctx context.Context, userID int64) ([]models.FileRecord, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, listFilesByUser, userID)
	if err != nil {
		log.Err(err).
			Str("func", "fileRepository.ListByUser").
			Int64("user_id", userID).
			Msg("failed to execute query for listing files")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	files := make([]models.FileRecord, 0, 50)

	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "fileRepository.ListByUser").
				Int64("user_id", userID).
				Msg("failed to scan file row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		files = append(files, *file)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "fileRepository.ListByUser").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return files, nil
}

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var file models.FileRecord

	err := row.Scan(
		&file.FileID,
		&file.UserID,
		&file.Name,
		&file.MimeType,
		&file.SizeBytes,
		&file.StoragePath,
		&file.IsActive,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &file, nil
}
