package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/mock"
	"github.com/therappio/clinsync/models"
)

func testContext() context.Context {
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

func newTestDetector(t *testing.T, ctrl *gomock.Controller) (*conflictDetector, *mock.MockChangeRecordRepository) {
	t.Helper()
	changeRecords := mock.NewMockChangeRecordRepository(ctrl)

	detector := NewConflictDetector(changeRecords, logger.Nop()).(*conflictDetector)
	detector.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return detector, changeRecords
}

func patientUpdate(deviceID string, ts time.Time, fields models.FieldMap) *models.ChangeRecord {
	return &models.ChangeRecord{
		ChangeID:   "chg-" + deviceID,
		UserID:     42,
		DeviceID:   deviceID,
		EntityType: models.EntityPatient,
		EntityID:   "pat-1",
		Operation:  models.OperationUpdate,
		Changes:    fields,
		Timestamp:  ts,
	}
}

func TestConflictDetector_Detect_NoForeignChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	detector, changeRecords := newTestDetector(t, ctrl)
	ctx := testContext()

	change := patientUpdate("device-a", time.Now(), models.FieldMap{"notes": "updated"})
	since := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	changeRecords.EXPECT().
		LatestForeignChange(ctx, int64(42), models.EntityPatient, "pat-1", "device-a", since).
		Return(nil, nil)

	detection, err := detector.Detect(ctx, change, since)

	require.NoError(t, err)
	assert.Nil(t, detection.Conflict)
	assert.Nil(t, detection.AutoResolution)
}

func TestConflictDetector_Detect_DisjointConcurrentUpdate_AutoResolves(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	detector, changeRecords := newTestDetector(t, ctrl)
	ctx := testContext()

	local := patientUpdate("device-a", time.Now(), models.FieldMap{"notes": "local notes"})
	foreign := patientUpdate("device-b", time.Now(), models.FieldMap{"contact": "new contact"})
	foreign.SyncStatus = models.SyncSynced

	changeRecords.EXPECT().
		LatestForeignChange(ctx, int64(42), models.EntityPatient, "pat-1", "device-a", gomock.Any()).
		Return(foreign, nil)

	detection, err := detector.Detect(ctx, local, time.Time{})

	require.NoError(t, err)
	require.NotNil(t, detection.Conflict)
	assert.Equal(t, models.ConflictConcurrentUpdate, detection.Conflict.ConflictType)
	assert.NotEmpty(t, detection.Conflict.ConflictID)
	assert.Equal(t, *local, detection.Conflict.LocalChange)
	assert.Equal(t, *foreign, detection.Conflict.ServerChange)

	require.NotNil(t, detection.AutoResolution)
	assert.Equal(t, models.ResolutionMerge, detection.AutoResolution.Strategy)
	assert.Equal(t, models.ResolvedByAuto, detection.AutoResolution.ResolvedBy)
	assert.Equal(t, models.FieldMap{"notes": "local notes", "contact": "new contact"}, detection.AutoResolution.ResolvedValue)
}

func TestConflictDetector_Detect_OverlappingFields_StaysUnresolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	detector, changeRecords := newTestDetector(t, ctrl)
	ctx := testContext()

	local := patientUpdate("device-a", time.Now(), models.FieldMap{"notes": "version a"})
	foreign := patientUpdate("device-b", time.Now(), models.FieldMap{"notes": "version b"})

	changeRecords.EXPECT().
		LatestForeignChange(ctx, int64(42), models.EntityPatient, "pat-1", "device-a", gomock.Any()).
		Return(foreign, nil)

	detection, err := detector.Detect(ctx, local, time.Time{})

	require.NoError(t, err)
	require.NotNil(t, detection.Conflict)
	assert.Equal(t, models.ConflictConcurrentUpdate, detection.Conflict.ConflictType)
	assert.Nil(t, detection.AutoResolution)
}

func TestConflictDetector_Detect_LookupErrorFailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	detector, changeRecords := newTestDetector(t, ctrl)
	ctx := testContext()

	change := patientUpdate("device-a", time.Now(), models.FieldMap{"notes": "x"})

	changeRecords.EXPECT().
		LatestForeignChange(ctx, int64(42), models.EntityPatient, "pat-1", "device-a", gomock.Any()).
		Return(nil, errors.New("connection refused"))

	detection, err := detector.Detect(ctx, change, time.Time{})

	require.Error(t, err)
	assert.Nil(t, detection)
}

func TestClassifyConflict(t *testing.T) {
	tests := []struct {
		name    string
		local   models.Operation
		foreign models.Operation
		want    models.ConflictType
	}{
		{"update after delete", models.OperationUpdate, models.OperationDelete, models.ConflictUpdateAfterDelete},
		{"create after delete", models.OperationCreate, models.OperationDelete, models.ConflictUpdateAfterDelete},
		{"delete after update", models.OperationDelete, models.OperationUpdate, models.ConflictDeleteAfterUpdate},
		{"delete after create", models.OperationDelete, models.OperationCreate, models.ConflictDeleteAfterUpdate},
		{"duplicate create", models.OperationCreate, models.OperationCreate, models.ConflictDuplicateCreate},
		{"concurrent update", models.OperationUpdate, models.OperationUpdate, models.ConflictConcurrentUpdate},
		{"both deletes", models.OperationDelete, models.OperationDelete, models.ConflictConcurrentUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyConflict(tt.local, tt.foreign))
		})
	}
}

func TestUnionMerge(t *testing.T) {
	base := models.FieldMap{"name": "Alice", "notes": "old"}
	override := models.FieldMap{"notes": "new", "contact": "a@b.c"}

	merged, err := unionMerge(base, override)

	require.NoError(t, err)
	assert.Equal(t, models.FieldMap{"name": "Alice", "notes": "new", "contact": "a@b.c"}, merged)
	// inputs stay untouched
	assert.Equal(t, "old", base["notes"])
}

func TestMergeByRecency(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Minute)

	tests := []struct {
		name   string
		local  *models.ChangeRecord
		server *models.ChangeRecord
		want   models.FieldMap
	}{
		{
			name:   "later local change wins contested field",
			local:  patientUpdate("device-a", later, models.FieldMap{"notes": "local"}),
			server: patientUpdate("device-b", earlier, models.FieldMap{"notes": "server", "contact": "kept"}),
			want:   models.FieldMap{"notes": "local", "contact": "kept"},
		},
		{
			name:   "later server change wins contested field",
			local:  patientUpdate("device-a", earlier, models.FieldMap{"notes": "local"}),
			server: patientUpdate("device-b", later, models.FieldMap{"notes": "server"}),
			want:   models.FieldMap{"notes": "server"},
		},
		{
			name:   "equal timestamps break by greater device id",
			local:  patientUpdate("device-a", earlier, models.FieldMap{"notes": "local"}),
			server: patientUpdate("device-b", earlier, models.FieldMap{"notes": "server"}),
			want:   models.FieldMap{"notes": "server"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := mergeByRecency(tt.local, tt.server)
			require.NoError(t, err)
			assert.Equal(t, tt.want, merged)

			// both sides must deterministically agree
			mirrored, err := mergeByRecency(tt.server, tt.local)
			require.NoError(t, err)
			assert.Equal(t, merged, mirrored)
		})
	}
}
