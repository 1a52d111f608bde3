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

// patientRepository is the PostgreSQL-backed implementation of
// [PatientRepository] over the "patients" table.
type patientRepository struct {
	*DB
	logger *logger.Logger
}

// NewPatientRepository constructs a [PatientRepository] backed by the
// provided database connection and logger.
func NewPatientRepository(db *DB, logger *logger.Logger) PatientRepository {
	return &patientRepository{
		DB:     db,
		logger: logger,
	}
}

// Create inserts a new patient row. Returns [ErrEntityAlreadyExists] when a
// row with the same (user_id, patient_id) is already present.
func (r *patientRepository) Create(ctx context.Context, patient *models.Patient) error {
	log := logger.FromContext(ctx)

	_, err := r.DB.ExecContext(ctx, createPatient,
		patient.PatientID,
		patient.UserID,
		patient.Name,
		patient.DateOfBirth,
		patient.Contact,
		patient.Notes,
		patient.IsActive,
		patient.CreatedAt,
		patient.UpdatedAt,
		patient.LastSessionAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			log.Warn().
				Str("func", "patientRepository.Create").
				Int64("user_id", patient.UserID).
				Str("patient_id", patient.PatientID).
				Msg("patient already exists")
			return fmt.Errorf("%w: %w", ErrEntityAlreadyExists, err)
		}
		log.Err(err).
			Str("func", "patientRepository.Create").
			Int64("user_id", patient.UserID).
			Str("patient_id", patient.PatientID).
			Msg("failed to insert patient")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return nil
}

// UpdateFields applies a partial update built from the sanitized field map.
// Returns [ErrEntityNotFound] when no row matches.
func (r *patientRepository) UpdateFields(ctx context.Context, userID int64, patientID string, fields models.FieldMap) error {
	log := logger.FromContext(ctx)

	query, args, err := buildEntityUpdateQuery("patients", "patient_id", userID, patientID, fields)
	if err != nil {
		log.Err(err).
			Str("func", "patientRepository.UpdateFields").
			Str("patient_id", patientID).
			Msg("failed to build update query")
		return err
	}

	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "patientRepository.UpdateFields").
			Int64("user_id", userID).
			Str("patient_id", patientID).
			Msg("failed to execute update query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return checkAffected(result, "patient", patientID, log)
}

// SoftDelete deactivates the patient, preserving the row for audit.
func (r *patientRepository) SoftDelete(ctx context.Context, userID int64, patientID string) error {
	log := logger.FromContext(ctx)

	result, err := r.DB.ExecContext(ctx, softDeletePatient, userID, patientID)
	if err != nil {
		log.Err(err).
			Str("func", "patientRepository.SoftDelete").
			Int64("user_id", userID).
			Str("patient_id", patientID).
			Msg("failed to execute soft delete query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return checkAffected(result, "patient", patientID, log)
}

// Get returns the patient or [ErrEntityNotFound]. Soft-deleted rows are
// returned with IsActive=false; callers decide whether they count.
func (r *patientRepository) Get(ctx context.Context, userID int64, patientID string) (*models.Patient, error) {
	log := logger.FromContext(ctx)

	var patient models.Patient
	var dateOfBirth, lastSessionAt sql.NullTime

	err := r.DB.QueryRowContext(ctx, getPatient, userID, patientID).Scan(
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
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		log.Err(err).
			Str("func", "patientRepository.Get").
			Int64("user_id", userID).
			Str("patient_id", patientID).
			Msg("failed to query patient")
		return nil, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	patient.DateOfBirth = timePtr(dateOfBirth)
	patient.LastSessionAt = timePtr(lastSessionAt)

	return &patient, nil
}

// ListByUser returns all of the user's patients, including soft-deleted
// ones, oldest first.
func (r *patientRepository) ListByUser(ctx context.Context, userID int64) ([]models.Patient, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, listPatientsByUser, userID)
	if err != nil {
		log.Err(err).
			Str("func", "patientRepository.ListByUser").
			Int64("user_id", userID).
			Msg("failed to execute query for listing patients")
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
				Str("func", "patientRepository.ListByUser").
				Int64("user_id", userID).
				Msg("failed to scan patient row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}

		patient.DateOfBirth = timePtr(dateOfBirth)
		patient.LastSessionAt = timePtr(lastSessionAt)

		patients = append(patients, patient)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "patientRepository.ListByUser").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return patients, nil
}

// checkAffected turns a zero-rows-affected result into [ErrEntityNotFound].
func checkAffected(result sql.Result, entity, id string, log *logger.Logger) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	if affected == 0 {
		log.Warn().
			Str("entity", entity).
			Str("entity_id", id).
			Msg("no rows affected, entity not found")
		return ErrEntityNotFound
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
