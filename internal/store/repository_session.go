package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

// sessionRepository is the PostgreSQL-backed implementation of
// [SessionRepository]. Every session write also bumps the parent patient's
// updated_at (and last_session_at on create) inside the same transaction, so
// a patient row is never older than its newest session.
type sessionRepository struct {
	*DB
	logger *logger.Logger
}

// NewSessionRepository constructs a [SessionRepository] backed by the
// provided database connection and logger.
func NewSessionRepository(db *DB, logger *logger.Logger) SessionRepository {
	return &sessionRepository{
		DB:     db,
		logger: logger,
	}
}

// Create inserts a new session and bumps the parent patient atomically.
// Returns [ErrEntityAlreadyExists] on a duplicate (user_id, session_id) and
// [ErrEntityNotFound] when the referenced patient does not exist.
func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.Create").
			Str("session_id", session.SessionID).
			Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, createSession,
		session.SessionID,
		session.PatientID,
		session.UserID,
		session.ScheduledAt,
		session.DurationMinutes,
		session.Status,
		session.Notes,
		session.IsActive,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			log.Warn().
				Str("func", "sessionRepository.Create").
				Int64("user_id", session.UserID).
				Str("session_id", session.SessionID).
				Msg("session already exists")
			return fmt.Errorf("%w: %w", ErrEntityAlreadyExists, err)
		}
		log.Err(err).
			Str("func", "sessionRepository.Create").
			Int64("user_id", session.UserID).
			Str("session_id", session.SessionID).
			Msg("failed to insert session")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if err = r.bumpParent(ctx, tx, session.UserID, session.PatientID, true); err != nil {
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "sessionRepository.Create").
			Str("session_id", session.SessionID).
			Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	return nil
}

// UpdateFields applies a partial update and bumps the parent patient's
// updated_at in the same transaction.
func (r *sessionRepository) UpdateFields(ctx context.Context, userID int64, sessionID string, fields models.FieldMap) error {
	log := logger.FromContext(ctx)

	query, args, err := buildEntityUpdateQuery("sessions", "session_id", userID, sessionID, fields)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.UpdateFields").
			Str("session_id", sessionID).
			Msg("failed to build update query")
		return err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.UpdateFields").
			Str("session_id", sessionID).
			Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	patientID, err := r.parentPatientID(ctx, tx, userID, sessionID)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.UpdateFields").
			Int64("user_id", userID).
			Str("session_id", sessionID).
			Msg("failed to execute update query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if err = checkAffected(result, "session", sessionID, log); err != nil {
		return err
	}

	if err = r.bumpParent(ctx, tx, userID, patientID, false); err != nil {
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "sessionRepository.UpdateFields").
			Str("session_id", sessionID).
			Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	return nil
}

// SoftDelete deactivates the session and bumps the parent patient's
// updated_at in the same transaction.
func (r *sessionRepository) SoftDelete(ctx context.Context, userID int64, sessionID string) error {
	log := logger.FromContext(ctx)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.SoftDelete").
			Str("session_id", sessionID).
			Msg("failed to begin transaction")
		return fmt.Errorf("%w: %w", ErrBeginningTransaction, err)
	}
	defer tx.Rollback()

	patientID, err := r.parentPatientID(ctx, tx, userID, sessionID)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, softDeleteSession, userID, sessionID)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.SoftDelete").
			Int64("user_id", userID).
			Str("session_id", sessionID).
			Msg("failed to execute soft delete query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if err = checkAffected(result, "session", sessionID, log); err != nil {
		return err
	}

	if err = r.bumpParent(ctx, tx, userID, patientID, false); err != nil {
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		log.Err(commitErr).
			Str("func", "sessionRepository.SoftDelete").
			Str("session_id", sessionID).
			Msg("failed to commit transaction")
		return fmt.Errorf("%w: %w", ErrCommitingTransaction, commitErr)
	}

	return nil
}

// Get returns the session or [ErrEntityNotFound].
func (r *sessionRepository) Get(ctx context.Context, userID int64, sessionID string) (*models.Session, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, getSession, userID, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		log.Err(err).
			Str("func", "sessionRepository.Get").
			Int64("user_id", userID).
			Str("session_id", sessionID).
			Msg("failed to query session")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return session, nil
}

// ListByUser returns all of the user's sessions, including soft-deleted
// ones, oldest first.
func (r *sessionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, listSessionsByUser, userID)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.ListByUser").
			Int64("user_id", userID).
			Msg("failed to execute query for listing sessions")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0, 50)

	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "sessionRepository.ListByUser").
				Int64("user_id", userID).
				Msg("failed to scan session row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		sessions = append(sessions, *session)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "sessionRepository.ListByUser").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return sessions, nil
}

// parentPatientID resolves the owning patient inside the transaction so the
// bump targets the right row even if the update payload touches patient_id.
func (r *sessionRepository) parentPatientID(ctx context.Context, tx *sql.Tx, userID int64, sessionID string) (string, error) {
	log := logger.FromContext(ctx)

	var patientID string
	err := tx.QueryRowContext(ctx, sessionPatientID, userID, sessionID).Scan(&patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrEntityNotFound
		}
		log.Err(err).
			Str("func", "sessionRepository.parentPatientID").
			Int64("user_id", userID).
			Str("session_id", sessionID).
			Msg("failed to resolve parent patient")
		return "", fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return patientID, nil
}

func (r *sessionRepository) bumpParent(ctx context.Context, tx *sql.Tx, userID int64, patientID string, isCreate bool) error {
	log := logger.FromContext(ctx)

	result, err := tx.ExecContext(ctx, bumpPatientOnSessionWrite, userID, patientID, isCreate)
	if err != nil {
		log.Err(err).
			Str("func", "sessionRepository.bumpParent").
			Int64("user_id", userID).
			Str("patient_id", patientID).
			Msg("failed to bump parent patient")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		log.Warn().
			Str("func", "sessionRepository.bumpParent").
			Int64("user_id", userID).
			Str("patient_id", patientID).
			Msg("parent patient not found")
		return ErrEntityNotFound
	}

	return nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var scheduledAt sql.NullTime

	err := row.Scan(
		&session.SessionID,
		&session.PatientID,
		&session.UserID,
		&scheduledAt,
		&session.DurationMinutes,
		&session.Status,
		&session.Notes,
		&session.IsActive,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ScheduledAt = timePtr(scheduledAt)

	return &session, nil
}
