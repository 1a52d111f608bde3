package service

import (
	"context"
	"errors"
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

// stubDetector is a hand-rolled ConflictDetector; a generated mock would pull
// this package into internal/mock and create an import cycle.
type stubDetector struct {
	detection *Detection
	err       error
}

func (s *stubDetector) Detect(context.Context, *models.ChangeRecord, time.Time) (*Detection, error) {
	return s.detection, s.err
}

type syncMocks struct {
	changeRecords *mock.MockChangeRecordRepository
	conflicts     *mock.MockConflictRepository
	patients      *mock.MockPatientRepository
	sessions      *mock.MockSessionRepository
	files         *mock.MockFileRepository
	detector      *stubDetector
}

var syncNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSyncService(t *testing.T, ctrl *gomock.Controller) (*syncService, syncMocks) {
	t.Helper()

	m := syncMocks{
		changeRecords: mock.NewMockChangeRecordRepository(ctrl),
		conflicts:     mock.NewMockConflictRepository(ctrl),
		patients:      mock.NewMockPatientRepository(ctrl),
		sessions:      mock.NewMockSessionRepository(ctrl),
		files:         mock.NewMockFileRepository(ctrl),
		detector:      &stubDetector{detection: &Detection{}},
	}

	storages := &store.Storages{
		ChangeRecords: m.changeRecords,
		Conflicts:     m.conflicts,
		Patients:      m.patients,
		Sessions:      m.sessions,
		Files:         m.files,
	}

	svc := NewSyncService(storages, m.detector, logger.Nop()).(*syncService)
	svc.now = func() time.Time { return syncNow }

	return svc, m
}

// ── Push ────────────────────────────────────────────────────────────────────

func TestSyncService_Push_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newTestSyncService(t, ctrl)
	ctx := testContext()

	_, err := svc.Push(ctx, 0, &models.PushRequest{DeviceID: "device-a"})
	assert.ErrorIs(t, err, ErrValidationNoUserID)

	_, err = svc.Push(ctx, 42, &models.PushRequest{})
	assert.ErrorIs(t, err, ErrValidationNoDeviceID)
}

func TestSyncService_Push_CreateApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationCreate,
			Changes:    models.FieldMap{"name": "Alice", "contact": "a@b.c"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(nil, nil)

	var created *models.Patient
	m.patients.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, p *models.Patient) error {
			created = p
			return nil
		})

	var audited *models.ChangeRecord
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, record *models.ChangeRecord) error {
			audited = record
			return nil
		})

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 1, response.ProcessedChanges)
	assert.Equal(t, 0, response.Conflicts)
	require.Len(t, response.Changes, 1)
	assert.Equal(t, models.SyncSynced, response.Changes[0].SyncStatus)

	require.NotNil(t, created)
	assert.Equal(t, "pat-1", created.PatientID)
	assert.Equal(t, int64(42), created.UserID)
	assert.Equal(t, "Alice", created.Name)
	assert.True(t, created.IsActive)

	require.NotNil(t, audited)
	assert.NotEmpty(t, audited.ChangeID)
	assert.Equal(t, "device-a", audited.DeviceID)
	assert.Equal(t, models.SyncSynced, audited.SyncStatus)
	assert.Equal(t, syncNow, audited.Timestamp)
}

func TestSyncService_Push_InvalidChangeIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{
			{
				EntityType: "appointment", // unknown type, rejected
				EntityID:   "apt-1",
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"notes": "x"},
			},
			{
				EntityType: models.EntityFile,
				EntityID:   "file-1",
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"name": "scan.pdf"},
			},
		},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityFile, "file-1").
		Return(nil, nil)
	m.files.EXPECT().
		UpdateFields(ctx, int64(42), "file-1", models.FieldMap{"name": "scan.pdf"}).
		Return(nil)

	statuses := make([]models.SyncStatus, 0, 2)
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, record *models.ChangeRecord) error {
			statuses = append(statuses, record.SyncStatus)
			return nil
		}).
		Times(2)

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 1, response.ProcessedChanges)
	require.Len(t, response.Changes, 2)
	assert.Equal(t, []models.SyncStatus{models.SyncFailed, models.SyncSynced}, statuses)
	assert.Contains(t, response.Changes[0].LastError, "invalid change record")
}

func TestSyncService_Push_BlockedByOpenConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "x"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(&models.SyncConflict{ConflictID: "conf-1"}, nil)
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		Return(nil)

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 0, response.ProcessedChanges)
	require.Len(t, response.Changes, 1)
	assert.Equal(t, models.SyncFailed, response.Changes[0].SyncStatus)
	assert.Contains(t, response.Changes[0].LastError, "conf-1")
}

func TestSyncService_Push_ConflictStored(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	m.detector.detection = &Detection{
		Conflict: &models.SyncConflict{
			ConflictID:   "conf-1",
			UserID:       42,
			EntityType:   models.EntityPatient,
			EntityID:     "pat-1",
			ConflictType: models.ConflictConcurrentUpdate,
		},
	}

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "x"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(nil, nil)
	m.conflicts.EXPECT().
		Save(ctx, gomock.Any()).
		Return(nil)

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 0, response.ProcessedChanges)
	assert.Equal(t, 1, response.Conflicts)
	require.Len(t, response.ConflictsList, 1)
	assert.Equal(t, "conf-1", response.ConflictsList[0].ConflictID)
	// the local change is parked in the conflict, not in the change log
	assert.Empty(t, response.Changes)
}

func TestSyncService_Push_AutoMergeApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	merged := models.FieldMap{"notes": "local", "contact": "foreign"}
	m.detector.detection = &Detection{
		Conflict: &models.SyncConflict{
			ConflictID:   "conf-1",
			UserID:       42,
			EntityType:   models.EntityPatient,
			EntityID:     "pat-1",
			ConflictType: models.ConflictConcurrentUpdate,
		},
		AutoResolution: &models.ConflictResolution{
			Strategy:      models.ResolutionMerge,
			ResolvedValue: merged,
			ResolvedBy:    models.ResolvedByAuto,
		},
	}

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "local"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(nil, nil)
	m.patients.EXPECT().
		UpdateFields(ctx, int64(42), "pat-1", merged).
		Return(nil)

	var saved *models.SyncConflict
	m.conflicts.EXPECT().
		Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, conflict *models.SyncConflict) error {
			saved = conflict
			return nil
		})
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		Return(nil)

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 1, response.ProcessedChanges)
	assert.Equal(t, 1, response.Conflicts)

	require.NotNil(t, saved)
	assert.True(t, saved.IsResolved)
	assert.Equal(t, models.ResolvedByAuto, saved.ResolvedBy)
	assert.Equal(t, merged, saved.ResolvedValue)
	require.NotNil(t, saved.ResolvedAt)

	require.Len(t, response.Changes, 1)
	assert.Equal(t, merged, response.Changes[0].NewValues)
}

func TestSyncService_Push_AutoMergeUnrecordedIsNotApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	merged := models.FieldMap{"notes": "local", "contact": "foreign"}
	m.detector.detection = &Detection{
		Conflict: &models.SyncConflict{
			ConflictID:   "conf-1",
			UserID:       42,
			EntityType:   models.EntityPatient,
			EntityID:     "pat-1",
			ConflictType: models.ConflictConcurrentUpdate,
		},
		AutoResolution: &models.ConflictResolution{
			Strategy:      models.ResolutionMerge,
			ResolvedValue: merged,
			ResolvedBy:    models.ResolvedByAuto,
		},
	}

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "local"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(nil, nil)
	// losing the conflict row loses the merge's audit trail, so the entity
	// store must stay untouched: no patients expectation is registered
	m.conflicts.EXPECT().
		Save(ctx, gomock.Any()).
		Return(errors.New("connection reset"))

	var audited *models.ChangeRecord
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, record *models.ChangeRecord) error {
			audited = record
			return nil
		})

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 0, response.ProcessedChanges)
	assert.Equal(t, 0, response.Conflicts)
	require.Len(t, response.Changes, 1)
	assert.Equal(t, models.SyncFailed, response.Changes[0].SyncStatus)
	assert.Equal(t, "failed to record conflict", response.Changes[0].LastError)

	require.NotNil(t, audited)
	assert.Equal(t, models.SyncFailed, audited.SyncStatus)
}

func TestSyncService_Push_DetectionErrorFailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	m.detector.detection = nil
	m.detector.err = errors.New("change log unavailable")

	request := &models.PushRequest{
		DeviceID: "device-a",
		Changes: []models.ChangeRecord{{
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "x"},
		}},
	}

	m.conflicts.EXPECT().
		FindUnresolved(ctx, int64(42), models.EntityPatient, "pat-1").
		Return(nil, nil)
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		Return(nil)

	response, err := svc.Push(ctx, 42, request)

	require.NoError(t, err)
	assert.Equal(t, 0, response.ProcessedChanges)
	require.Len(t, response.Changes, 1)
	assert.Equal(t, models.SyncFailed, response.Changes[0].SyncStatus)
	assert.Equal(t, "conflict detection failed", response.Changes[0].LastError)
}

// ── Pull ────────────────────────────────────────────────────────────────────

func TestSyncService_Pull(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	since := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	changes := []models.ChangeRecord{
		{ChangeID: "chg-1", EntityType: models.EntityPatient, EntityID: "pat-1", Operation: models.OperationUpdate},
		{ChangeID: "chg-2", EntityType: models.EntityPatient, EntityID: "pat-1", Operation: models.OperationUpdate},
	}
	patient := &models.Patient{PatientID: "pat-1", UserID: 42, Name: "Alice"}
	conflicts := []models.SyncConflict{{ConflictID: "conf-1"}}

	m.changeRecords.EXPECT().
		ListSince(ctx, int64(42), "device-a", since, []models.EntityType{models.EntityPatient}).
		Return(changes, nil)
	// two changes, same entity: the state lookup is memoized
	m.patients.EXPECT().
		Get(ctx, int64(42), "pat-1").
		Return(patient, nil).
		Times(1)
	m.conflicts.EXPECT().
		ListUnresolved(ctx, int64(42)).
		Return(conflicts, nil)

	response, err := svc.Pull(ctx, 42, "device-a", since, []models.EntityType{models.EntityPatient})

	require.NoError(t, err)
	assert.Equal(t, 2, response.TotalChanges)
	assert.Equal(t, 1, response.TotalConflicts)
	assert.Equal(t, syncNow, response.ServerTime)
	require.Len(t, response.Changes, 2)
	assert.Equal(t, patient, response.Changes[0].CurrentState)
	assert.Equal(t, patient, response.Changes[1].CurrentState)
}

func TestSyncService_Pull_RepeatedPullIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	since := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	changes := []models.ChangeRecord{
		{ChangeID: "chg-1", EntityType: models.EntityPatient, EntityID: "pat-1", Operation: models.OperationUpdate},
	}
	patient := &models.Patient{PatientID: "pat-1", UserID: 42, Name: "Alice"}
	conflicts := []models.SyncConflict{{ConflictID: "conf-1"}}

	// pull is a pure read: with no writes in between, the same checkpoint
	// yields the same result set
	m.changeRecords.EXPECT().
		ListSince(ctx, int64(42), "device-a", since, nil).
		Return(changes, nil).
		Times(2)
	m.patients.EXPECT().
		Get(ctx, int64(42), "pat-1").
		Return(patient, nil).
		Times(2)
	m.conflicts.EXPECT().
		ListUnresolved(ctx, int64(42)).
		Return(conflicts, nil).
		Times(2)

	first, err := svc.Pull(ctx, 42, "device-a", since, nil)
	require.NoError(t, err)

	second, err := svc.Pull(ctx, 42, "device-a", since, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Changes, second.Changes)
	assert.Equal(t, first.Conflicts, second.Conflicts)
	assert.Equal(t, first.TotalChanges, second.TotalChanges)
	assert.Equal(t, first.TotalConflicts, second.TotalConflicts)
}

func TestSyncService_Pull_MissingEntityYieldsNilState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	m.changeRecords.EXPECT().
		ListSince(ctx, int64(42), "", time.Time{}, nil).
		Return([]models.ChangeRecord{
			{ChangeID: "chg-1", EntityType: models.EntityFile, EntityID: "file-1", Operation: models.OperationDelete},
		}, nil)
	m.files.EXPECT().
		Get(ctx, int64(42), "file-1").
		Return(nil, store.ErrEntityNotFound)
	m.conflicts.EXPECT().
		ListUnresolved(ctx, int64(42)).
		Return([]models.SyncConflict{}, nil)

	response, err := svc.Pull(ctx, 42, "", time.Time{}, nil)

	require.NoError(t, err)
	require.Len(t, response.Changes, 1)
	assert.Nil(t, response.Changes[0].CurrentState)
}

// ── Resolve ─────────────────────────────────────────────────────────────────

func openConflict() *models.SyncConflict {
	return &models.SyncConflict{
		ConflictID:   "conf-1",
		UserID:       42,
		EntityType:   models.EntityPatient,
		EntityID:     "pat-1",
		ConflictType: models.ConflictConcurrentUpdate,
		LocalChange: models.ChangeRecord{
			DeviceID:   "device-a",
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "local"},
			Timestamp:  syncNow.Add(-time.Minute),
		},
		ServerChange: models.ChangeRecord{
			DeviceID:   "device-b",
			EntityType: models.EntityPatient,
			EntityID:   "pat-1",
			Operation:  models.OperationUpdate,
			Changes:    models.FieldMap{"notes": "server"},
			Timestamp:  syncNow.Add(-2 * time.Minute),
		},
	}
}

func TestSyncService_Resolve_InvalidStrategy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _ := newTestSyncService(t, ctrl)

	_, err := svc.Resolve(testContext(), 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: "coin_flip",
	})

	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestSyncService_Resolve_ForeignConflictIsHidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	conflict := openConflict()
	conflict.UserID = 7 // belongs to someone else

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(conflict, nil)

	_, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionUseServer,
	})

	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestSyncService_Resolve_AlreadyResolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	conflict := openConflict()
	conflict.IsResolved = true

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(conflict, nil)

	_, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionUseServer,
	})

	assert.ErrorIs(t, err, store.ErrConflictAlreadyResolved)
}

func TestSyncService_Resolve_UseServerWritesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	conflict := openConflict()
	resolved := *conflict
	resolved.IsResolved = true

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(conflict, nil)

	var resolution models.ConflictResolution
	m.conflicts.EXPECT().
		MarkResolved(ctx, "conf-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, r models.ConflictResolution) error {
			resolution = r
			return nil
		})
	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(&resolved, nil)

	got, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionUseServer,
	})

	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, models.ResolutionUseServer, resolution.Strategy)
	assert.Equal(t, "user:42", resolution.ResolvedBy)
	assert.Equal(t, models.FieldMap{"notes": "server"}, resolution.ResolvedValue)
}

func TestSyncService_Resolve_UseLocalAppliesLocalChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	conflict := openConflict()
	resolved := *conflict
	resolved.IsResolved = true

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(conflict, nil)
	m.patients.EXPECT().
		UpdateFields(ctx, int64(42), "pat-1", models.FieldMap{"notes": "local"}).
		Return(nil)
	m.conflicts.EXPECT().
		MarkResolved(ctx, "conf-1", gomock.Any()).
		Return(nil)

	var audited *models.ChangeRecord
	m.changeRecords.EXPECT().
		Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, record *models.ChangeRecord) error {
			audited = record
			return nil
		})
	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(&resolved, nil)

	_, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionUseLocal,
		DeviceID:           "device-a",
	})

	require.NoError(t, err)
	require.NotNil(t, audited)
	assert.Equal(t, "device-a", audited.DeviceID)
	assert.Equal(t, models.SyncSynced, audited.SyncStatus)
}

func TestSyncService_Resolve_MergeComputesDeterministicValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	conflict := openConflict()
	resolved := *conflict
	resolved.IsResolved = true

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(conflict, nil)
	// local change is newer, so its notes win the merge
	m.patients.EXPECT().
		UpdateFields(ctx, int64(42), "pat-1", models.FieldMap{"notes": "local"}).
		Return(nil)
	m.conflicts.EXPECT().MarkResolved(ctx, "conf-1", gomock.Any()).Return(nil)
	m.changeRecords.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(&resolved, nil)

	_, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionMerge,
	})

	require.NoError(t, err)
}

func TestSyncService_Resolve_ManualRequiresValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, m := newTestSyncService(t, ctrl)
	ctx := testContext()

	m.conflicts.EXPECT().GetByID(ctx, "conf-1").Return(openConflict(), nil)

	_, err := svc.Resolve(ctx, 42, &models.ResolveRequest{
		ConflictID:         "conf-1",
		ResolutionStrategy: models.ResolutionManual,
	})

	assert.ErrorIs(t, err, ErrResolvedValueRequired)
}
