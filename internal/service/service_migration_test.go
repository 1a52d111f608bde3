package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/mock"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/models"
)

// stubClassifier pins the retry classification regardless of the error.
type stubClassifier struct {
	classification store.ErrorClassification
}

func (s stubClassifier) Classify(error) store.ErrorClassification {
	return s.classification
}

var migrationNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type migrationMocks struct {
	local         *mock.MockLocalStore
	patients      *mock.MockPatientRepository
	sessions      *mock.MockSessionRepository
	files         *mock.MockFileRepository
	migrations    *mock.MockMigrationRepository
	changeRecords *mock.MockChangeRecordRepository
}

func newTestMigrator(t *testing.T, ctrl *gomock.Controller, classifier store.ErrorClassificator) (*migrationService, migrationMocks) {
	t.Helper()

	m := migrationMocks{
		local:         mock.NewMockLocalStore(ctrl),
		patients:      mock.NewMockPatientRepository(ctrl),
		sessions:      mock.NewMockSessionRepository(ctrl),
		files:         mock.NewMockFileRepository(ctrl),
		migrations:    mock.NewMockMigrationRepository(ctrl),
		changeRecords: mock.NewMockChangeRecordRepository(ctrl),
	}

	storages := &store.Storages{
		ChangeRecords: m.changeRecords,
		Patients:      m.patients,
		Sessions:      m.sessions,
		Files:         m.files,
		Migrations:    m.migrations,
	}

	svc := NewMigrationService(m.local, storages, classifier, logger.Nop()).(*migrationService)
	svc.now = func() time.Time { return migrationNow }

	return svc, m
}

func localPatient() models.Patient {
	return models.Patient{
		PatientID: "pat-1",
		UserID:    42,
		Name:      "Alice",
		Contact:   "alice@example.com",
		Notes:     "intake done",
		IsActive:  true,
	}
}

func localSession() models.Session {
	return models.Session{
		SessionID:       "ses-1",
		PatientID:       "pat-1",
		UserID:          42,
		DurationMinutes: 50,
		Status:          "completed",
		IsActive:        true,
	}
}

func localFile() models.FileRecord {
	return models.FileRecord{
		FileID:      "file-1",
		UserID:      42,
		Name:        "intake.pdf",
		MimeType:    "application/pdf",
		SizeBytes:   2048,
		StoragePath: "files/42/intake.pdf",
		IsActive:    true,
	}
}

func expectLocalData(ctx any, m migrationMocks, patients []models.Patient, sessions []models.Session, files []models.FileRecord) {
	m.local.EXPECT().Patients(ctx, int64(42)).Return(patients, nil)
	m.local.EXPECT().Sessions(ctx, int64(42)).Return(sessions, nil)
	m.local.EXPECT().Files(ctx, int64(42)).Return(files, nil)
}

func TestMigrationService_MigrateUserData_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newTestMigrator(t, ctrl, stubClassifier{})

	_, err := svc.MigrateUserData(testContext(), 0, models.MigrationOptions{})

	require.ErrorIs(t, err, ErrValidationNoUserID)
}

func TestMigrationService_MigrateUserData_NoLocalData(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	expectLocalData(ctx, m, nil, nil, nil)

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{BackupLocalData: true})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Zero(t, result.BackupID)
	assert.Empty(t, result.Outcomes)
}

func TestMigrationService_MigrateUserData_DryRunWritesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	expectLocalData(ctx, m,
		[]models.Patient{localPatient()},
		[]models.Session{localSession()},
		[]models.FileRecord{localFile()})

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{DryRun: true, BackupLocalData: true})

	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Migrated)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Outcomes, 3)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, models.OutcomeValidated, outcome.Status)
	}
}

func TestMigrationService_MigrateUserData_BackupThenMigrate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	patient := localPatient()
	expectLocalData(ctx, m, []models.Patient{patient}, nil, nil)

	// snapshot of the current entity-store state, before any write
	m.patients.EXPECT().ListByUser(ctx, int64(42)).Return(nil, nil)
	m.sessions.EXPECT().ListByUser(ctx, int64(42)).Return(nil, nil)
	m.files.EXPECT().ListByUser(ctx, int64(42)).Return(nil, nil)
	m.migrations.EXPECT().SaveBackup(ctx, int64(42), models.DataSnapshot{}).Return(int64(11), nil)

	m.patients.EXPECT().Create(ctx, &patient).Return(nil)

	var audited *models.ChangeRecord
	m.changeRecords.EXPECT().Save(ctx, gomock.Any()).DoAndReturn(
		func(_ any, record *models.ChangeRecord) error {
			audited = record
			return nil
		})

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{BackupLocalData: true})

	require.NoError(t, err)
	assert.Equal(t, int64(11), result.BackupID)
	assert.Equal(t, 1, result.Migrated)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.OutcomeMigrated, result.Outcomes[0].Status)
	assert.Equal(t, 1, result.Outcomes[0].Attempts)

	require.NotNil(t, audited)
	assert.NotEmpty(t, audited.ChangeID)
	assert.Equal(t, MigrationDeviceID, audited.DeviceID)
	assert.Equal(t, models.OperationCreate, audited.Operation)
	assert.Equal(t, models.SyncSynced, audited.SyncStatus)
	assert.Equal(t, "Alice", audited.Changes["name"])
}

func TestMigrationService_MigrateUserData_AlreadyExistsIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	patient := localPatient()
	expectLocalData(ctx, m, []models.Patient{patient}, nil, nil)

	m.patients.EXPECT().Create(ctx, &patient).Return(store.ErrEntityAlreadyExists)
	// no audit record: a previous run already wrote one

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.OutcomeMigrated, result.Outcomes[0].Status)
}

func TestMigrationService_MigrateUserData_RetryThenSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{classification: store.Retryable})
	ctx := testContext()

	patient := localPatient()
	expectLocalData(ctx, m, []models.Patient{patient}, nil, nil)

	gomock.InOrder(
		m.patients.EXPECT().Create(ctx, &patient).Return(assert.AnError),
		m.patients.EXPECT().Create(ctx, &patient).Return(nil),
	)
	m.changeRecords.EXPECT().Save(ctx, gomock.Any()).Return(nil)

	opts := models.MigrationOptions{MaxRetries: 2, RetryDelay: time.Millisecond}
	result, err := svc.MigrateUserData(ctx, 42, opts)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Migrated)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)
}

func TestMigrationService_MigrateUserData_FailureDoesNotAbortRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{classification: store.NonRetryable})
	ctx := testContext()

	patient := localPatient()
	session := localSession()
	expectLocalData(ctx, m, []models.Patient{patient}, []models.Session{session}, nil)

	m.patients.EXPECT().Create(ctx, &patient).Return(assert.AnError)
	m.sessions.EXPECT().Create(ctx, &session).Return(nil)
	m.changeRecords.EXPECT().Save(ctx, gomock.Any()).Return(nil)

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, models.OutcomeFailed, result.Outcomes[0].Status)
	assert.Equal(t, assert.AnError.Error(), result.Outcomes[0].Error)
	assert.Equal(t, models.OutcomeMigrated, result.Outcomes[1].Status)
}

func TestMigrationService_MigrateUserData_MissingEntityID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	patient := localPatient()
	patient.PatientID = ""
	expectLocalData(ctx, m, []models.Patient{patient}, nil, nil)

	result, err := svc.MigrateUserData(ctx, 42, models.MigrationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.OutcomeFailed, result.Outcomes[0].Status)
	assert.Equal(t, "entity has no identifier", result.Outcomes[0].Error)
}

// ── Rollback ────────────────────────────────────────────────────────────────

func TestMigrationService_Rollback_NoBackup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	m.migrations.EXPECT().LatestBackup(ctx, int64(42)).Return(nil, store.ErrNoBackupFound)

	err := svc.Rollback(ctx, 42)

	require.ErrorIs(t, err, store.ErrNoBackupFound)
}

func TestMigrationService_Rollback_RestoresLatestSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestMigrator(t, ctrl, stubClassifier{})
	ctx := testContext()

	snapshot := models.DataSnapshot{Patients: []models.Patient{localPatient()}}
	backup := &models.MigrationBackup{ID: 11, UserID: 42, CreatedAt: migrationNow, Snapshot: snapshot}

	m.migrations.EXPECT().LatestBackup(ctx, int64(42)).Return(backup, nil)
	m.migrations.EXPECT().RestoreSnapshot(ctx, int64(42), snapshot).Return(nil)

	require.NoError(t, svc.Rollback(ctx, 42))
}
