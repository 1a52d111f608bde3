package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS local_patients (
    patient_id      TEXT NOT NULL,
    user_id         INTEGER NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    date_of_birth   TIMESTAMP,
    contact         TEXT NOT NULL DEFAULT '',
    notes           TEXT NOT NULL DEFAULT '',
    is_active       BOOLEAN NOT NULL DEFAULT 1,
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL,
    last_session_at TIMESTAMP,
    PRIMARY KEY (user_id, patient_id)
);

CREATE TABLE IF NOT EXISTS local_sessions (
    session_id       TEXT NOT NULL,
    patient_id       TEXT NOT NULL,
    user_id          INTEGER NOT NULL,
    scheduled_at     TIMESTAMP,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    is_active        BOOLEAN NOT NULL DEFAULT 1,
    created_at       TIMESTAMP NOT NULL,
    updated_at       TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, session_id)
);

CREATE TABLE IF NOT EXISTS local_files (
    file_id      TEXT NOT NULL,
    user_id      INTEGER NOT NULL,
    name         TEXT NOT NULL DEFAULT '',
    mime_type    TEXT NOT NULL DEFAULT '',
    size_bytes   INTEGER NOT NULL DEFAULT 0,
    storage_path TEXT NOT NULL DEFAULT '',
    is_active    BOOLEAN NOT NULL DEFAULT 1,
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, file_id)
);`

// LocalSQLite is the SQLite-backed [LocalStore]: a staged copy of a device's
// local database that the data migrator reads from. All read methods treat
// the file as authoritative and never write to it; the staging helpers exist
// for the CLI that loads device exports.
type LocalSQLite struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewLocalSQLite opens (or creates) the local database at path and ensures
// the schema exists. Pass ":memory:" for an ephemeral store.
func NewLocalSQLite(path string, log *logger.Logger) (*LocalSQLite, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Err(err).Str("func", "NewLocalSQLite").Str("path", path).Msg("failed to open local database")
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	// SQLite serializes writes; a second connection only buys lock errors.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(localSchema); err != nil {
		db.Close()
		log.Err(err).Str("func", "NewLocalSQLite").Str("path", path).Msg("failed to bootstrap local schema")
		return nil, fmt.Errorf("failed to bootstrap local schema: %w", err)
	}

	return &LocalSQLite{db: db, logger: log}, nil
}

// Close releases the underlying database handle.
func (s *LocalSQLite) Close() error {
	return s.db.Close()
}

// Patients returns every local patient belonging to the user.
func (s *LocalSQLite) Patients(ctx context.Context, userID int64) ([]models.Patient, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT patient_id, user_id, name, date_of_birth, contact, notes,
			is_active, created_at, updated_at, last_session_at
		FROM local_patients WHERE user_id = ? ORDER BY created_at ASC;`, userID)
	if err != nil {
		log.Err(err).
			Str("func", "LocalSQLite.Patients").
			Int64("user_id", userID).
			Msg("failed to query local patients")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	patients := make([]models.Patient, 0, 50)

	for rows.Next() {
		var patient models.Patient
		var dateOfBirth, lastSessionAt sql.NullTime

		scanErr := rows.Scan(
			&patient.PatientID,
			&patient.UserID,
			&patient.Name,
			&dateOfBirth,
			&patient.Contact,
			&patient.Notes,
			&patient.IsActive,
			&patient.CreatedAt,
			&patient.UpdatedAt,
			&lastSessionAt,
		)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "LocalSQLite.Patients").
				Int64("user_id", userID).
				Msg("failed to scan local patient row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		patient.DateOfBirth = timePtr(dateOfBirth)
		patient.LastSessionAt = timePtr(lastSessionAt)

		patients = append(patients, patient)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return patients, nil
}

// Sessions returns every local session belonging to the user.
func (s *LocalSQLite) Sessions(ctx context.Context, userID int64) ([]models.Session, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT session_id, patient_id, user_id, scheduled_at, duration_minutes,
			status, notes, is_active, created_at, updated_at
		FROM local_sessions WHERE user_id = ? ORDER BY created_at ASC;`, userID)
	if err != nil {
		log.Err(err).
			Str("func", "LocalSQLite.Sessions").
			Int64("user_id", userID).
			Msg("failed to query local sessions")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0, 50)

	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "LocalSQLite.Sessions").
				Int64("user_id", userID).
				Msg("failed to scan local session row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		sessions = append(sessions, *session)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return sessions, nil
}

// Files returns every local file descriptor belonging to the user.
func (s *LocalSQLite) Files(ctx context.Context, userID int64) ([]models.FileRecord, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, `SELECT file_id, user_id, name, mime_type, size_bytes, storage_path,
			is_active, created_at, updated_at
		FROM local_files WHERE user_id = ? ORDER BY created_at ASC;`, userID)
	if err != nil {
		log.Err(err).
			Str("func", "LocalSQLite.Files").
			Int64("user_id", userID).
			Msg("failed to query local files")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	files := make([]models.FileRecord, 0, 50)

	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "LocalSQLite.Files").
				Int64("user_id", userID).
				Msg("failed to scan local file row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		files = append(files, *file)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return files, nil
}

// StagePatient upserts one patient into the staged local database. Used by
// the CLI when loading a device export; the migrator itself never writes.
func (s *LocalSQLite) StagePatient(ctx context.Context, patient *models.Patient) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO local_patients
		(patient_id, user_id, name, date_of_birth, contact, notes, is_active, created_at, updated_at, last_session_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		patient.PatientID, patient.UserID, patient.Name, patient.DateOfBirth, patient.Contact,
		patient.Notes, patient.IsActive, patient.CreatedAt, patient.UpdatedAt, patient.LastSessionAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

// StageSession upserts one session into the staged local database.
func (s *LocalSQLite) StageSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO local_sessions
		(session_id, patient_id, user_id, scheduled_at, duration_minutes, status, notes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		session.SessionID, session.PatientID, session.UserID, session.ScheduledAt, session.DurationMinutes,
		session.Status, session.Notes, session.IsActive, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}

// StageFile upserts one file descriptor into the staged local database.
func (s *LocalSQLite) StageFile(ctx context.Context, file *models.FileRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO local_files
		(file_id, user_id, name, mime_type, size_bytes, storage_path, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		file.FileID, file.UserID, file.Name, file.MimeType, file.SizeBytes, file.StoragePath,
		file.IsActive, file.CreatedAt, file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	return nil
}
