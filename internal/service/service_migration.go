package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/internal/utils"
	"github.com/therappio/clinsync/models"
)

// MigrationDeviceID marks change records produced by the data migrator
// rather than a real device. Pulls from any device therefore see migrated
// entities as foreign changes.
const MigrationDeviceID = "migration"

// migrationService implements [MigrationService]: it moves a user's staged
// device-local dataset into the authoritative entity store, with optional
// backup, per-entity retries, and partial-success semantics.
type migrationService struct {
	local         store.LocalStore
	patients      store.PatientRepository
	sessions      store.SessionRepository
	files         store.FileRepository
	migrations    store.MigrationRepository
	changeRecords store.ChangeRecordRepository
	classifier    store.ErrorClassificator

	uuid   *utils.UUIDGenerator
	logger *logger.Logger
	now    func() time.Time
}

// NewMigrationService constructs a [MigrationService].
func NewMigrationService(local store.LocalStore, storages *store.Storages, classifier store.ErrorClassificator, log *logger.Logger) MigrationService {
	return &migrationService{
		local:         local,
		patients:      storages.Patients,
		sessions:      storages.Sessions,
		files:         storages.Files,
		migrations:    storages.Migrations,
		changeRecords: storages.ChangeRecords,
		classifier:    classifier,
		uuid:          utils.NewUUIDGenerator(),
		logger:        log,
		now:           time.Now,
	}
}

// MigrateUserData runs one migration for the user.
//
// Entities migrate in dependency order (patients, then their sessions, then
// files) so a session never lands before its parent. A failed entity is
// recorded and skipped; the run continues. Dry runs validate everything and
// write nothing.
func (m *migrationService) MigrateUserData(ctx context.Context, userID int64, opts models.MigrationOptions) (*models.MigrationResult, error) {
	log := logger.FromContext(ctx)

	if userID <= 0 {
		return nil, ErrValidationNoUserID
	}

	result := &models.MigrationResult{
		UserID:    userID,
		DryRun:    opts.DryRun,
		StartedAt: m.now(),
		Outcomes:  make([]models.EntityOutcome, 0, 50),
	}

	patients, err := m.local.Patients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read local patients: %w", err)
	}
	sessions, err := m.local.Sessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read local sessions: %w", err)
	}
	files, err := m.local.Files(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read local files: %w", err)
	}

	result.Total = len(patients) + len(sessions) + len(files)
	if result.Total == 0 {
		result.FinishedAt = m.now()
		log.Info().
			Str("func", "migrationService.MigrateUserData").
			Int64("user_id", userID).
			Msg("no local data to migrate")
		return result, nil
	}

	if !opts.DryRun && opts.BackupLocalData {
		backupID, backupErr := m.backupEntityStore(ctx, userID)
		if backupErr != nil {
			return nil, backupErr
		}
		result.BackupID = backupID
	}

	for i := range patients {
		m.migrateEntity(ctx, result, opts, models.EntityPatient, patients[i].PatientID,
			patientFields(&patients[i]),
			func(ctx context.Context) error { return m.patients.Create(ctx, &patients[i]) })
	}
	for i := range sessions {
		m.migrateEntity(ctx, result, opts, models.EntitySession, sessions[i].SessionID,
			sessionFields(&sessions[i]),
			func(ctx context.Context) error { return m.sessions.Create(ctx, &sessions[i]) })
	}
	for i := range files {
		m.migrateEntity(ctx, result, opts, models.EntityFile, files[i].FileID,
			fileFields(&files[i]),
			func(ctx context.Context) error { return m.files.Create(ctx, &files[i]) })
	}

	result.FinishedAt = m.now()

	log.Info().
		Str("func", "migrationService.MigrateUserData").
		Int64("user_id", userID).
		Bool("dry_run", opts.DryRun).
		Int("total", result.Total).
		Int("migrated", result.Migrated).
		Int("failed", result.Failed).
		Msg("migration run finished")

	return result, nil
}

// migrateEntity migrates one entity and appends its outcome. write performs
// the entity-store insert; fields is the audit snapshot.
func (m *migrationService) migrateEntity(ctx context.Context, result *models.MigrationResult, opts models.MigrationOptions, entityType models.EntityType, entityID string, fields models.FieldMap, write func(context.Context) error) {
	log := logger.FromContext(ctx)

	outcome := models.EntityOutcome{
		EntityType: entityType,
		EntityID:   entityID,
	}

	if entityID == "" {
		outcome.Status = models.OutcomeFailed
		outcome.Error = "entity has no identifier"
		result.Failed++
		result.Outcomes = append(result.Outcomes, outcome)
		return
	}

	if opts.DryRun {
		outcome.Status = models.OutcomeValidated
		result.Migrated++
		result.Outcomes = append(result.Outcomes, outcome)
		return
	}

	attempts, err := m.writeWithRetry(ctx, opts, write)
	outcome.Attempts = attempts

	if err != nil {
		// Already present means a previous (partial) run migrated it;
		// counting it as migrated keeps reruns idempotent.
		if errors.Is(err, store.ErrEntityAlreadyExists) {
			outcome.Status = models.OutcomeMigrated
			result.Migrated++
			result.Outcomes = append(result.Outcomes, outcome)
			return
		}

		log.Err(err).
			Str("func", "migrationService.migrateEntity").
			Str("entity_type", string(entityType)).
			Str("entity_id", entityID).
			Int("attempts", attempts).
			Msg("failed to migrate entity")

		outcome.Status = models.OutcomeFailed
		outcome.Error = err.Error()
		result.Failed++
		result.Outcomes = append(result.Outcomes, outcome)
		return
	}

	// Audit record last, after the entity write landed.
	record := &models.ChangeRecord{
		ChangeID:   m.uuid.Generate(),
		UserID:     result.UserID,
		DeviceID:   MigrationDeviceID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  models.OperationCreate,
		Changes:    fields,
		Timestamp:  m.now(),
		SyncStatus: models.SyncSynced,
	}
	if saveErr := m.changeRecords.Save(ctx, record); saveErr != nil {
		log.Err(saveErr).
			Str("func", "migrationService.migrateEntity").
			Str("entity_id", entityID).
			Msg("failed to write migration audit record")
	}

	outcome.Status = models.OutcomeMigrated
	result.Migrated++
	result.Outcomes = append(result.Outcomes, outcome)
}

// writeWithRetry runs write, retrying transient failures up to
// opts.MaxRetries additional times with opts.RetryDelay between attempts.
// Non-retryable failures return immediately.
func (m *migrationService) writeWithRetry(ctx context.Context, opts models.MigrationOptions, write func(context.Context) error) (int, error) {
	var err error

	attempts := 0
	for attempts <= opts.MaxRetries {
		attempts++

		err = write(ctx)
		if err == nil {
			return attempts, nil
		}
		if m.classifier.Classify(err) != store.Retryable {
			return attempts, err
		}
		if attempts > opts.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	return attempts, err
}

// backupEntityStore snapshots the user's current entity-store contents
// before the first migration write.
func (m *migrationService) backupEntityStore(ctx context.Context, userID int64) (int64, error) {
	snapshot, err := m.entitySnapshot(ctx, userID)
	if err != nil {
		return 0, err
	}

	backupID, err := m.migrations.SaveBackup(ctx, userID, snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to save pre-migration backup: %w", err)
	}

	return backupID, nil
}

func (m *migrationService) entitySnapshot(ctx context.Context, userID int64) (models.DataSnapshot, error) {
	var snapshot models.DataSnapshot
	var err error

	if snapshot.Patients, err = m.patients.ListByUser(ctx, userID); err != nil {
		return snapshot, fmt.Errorf("failed to snapshot patients: %w", err)
	}
	if snapshot.Sessions, err = m.sessions.ListByUser(ctx, userID); err != nil {
		return snapshot, fmt.Errorf("failed to snapshot sessions: %w", err)
	}
	if snapshot.Files, err = m.files.ListByUser(ctx, userID); err != nil {
		return snapshot, fmt.Errorf("failed to snapshot files: %w", err)
	}

	return snapshot, nil
}

// Rollback restores the user's entity store from the most recent
// pre-migration backup. Returns [store.ErrNoBackupFound] when the user has
// none.
func (m *migrationService) Rollback(ctx context.Context, userID int64) error {
	log := logger.FromContext(ctx)

	if userID <= 0 {
		return ErrValidationNoUserID
	}

	backup, err := m.migrations.LatestBackup(ctx, userID)
	if err != nil {
		return err
	}

	if err = m.migrations.RestoreSnapshot(ctx, userID, backup.Snapshot); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	log.Info().
		Str("func", "migrationService.Rollback").
		Int64("user_id", userID).
		Int64("backup_id", backup.ID).
		Time("backup_created_at", backup.CreatedAt).
		Msg("restored entity store from backup")

	return nil
}

func patientFields(p *models.Patient) models.FieldMap {
	fields := models.FieldMap{
		"name":    p.Name,
		"contact": p.Contact,
		"notes":   p.Notes,
	}
	if p.DateOfBirth != nil {
		fields["date_of_birth"] = p.DateOfBirth.Format(time.RFC3339)
	}
	return fields
}

func sessionFields(s *models.Session) models.FieldMap {
	fields := models.FieldMap{
		"patient_id":       s.PatientID,
		"duration_minutes": s.DurationMinutes,
		"status":           s.Status,
		"notes":            s.Notes,
	}
	if s.ScheduledAt != nil {
		fields["scheduled_at"] = s.ScheduledAt.Format(time.RFC3339)
	}
	return fields
}

func fileFields(f *models.FileRecord) models.FieldMap {
	return models.FieldMap{
		"name":         f.Name,
		"mime_type":    f.MimeType,
		"size_bytes":   f.SizeBytes,
		"storage_path": f.StoragePath,
	}
}
