package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/therappio/clinsync/internal/config"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/mock"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/models"
)

// stubMigrator is a hand-rolled MigrationService; a generated mock would pull
// this package into internal/mock and create an import cycle.
type stubMigrator struct {
	mu        sync.Mutex
	result    *models.MigrationResult
	err       error
	migrated  []int64
	rollbacks []int64
}

func (s *stubMigrator) MigrateUserData(_ context.Context, userID int64, _ models.MigrationOptions) (*models.MigrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrated = append(s.migrated, userID)
	return s.result, s.err
}

func (s *stubMigrator) Rollback(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks = append(s.rollbacks, userID)
	return nil
}

var rolloutNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRollout(t *testing.T, ctrl *gomock.Controller, rolloutCfg config.Rollout) (*rolloutService, *mock.MockMigrationRepository, *stubMigrator) {
	t.Helper()

	migrations := mock.NewMockMigrationRepository(ctrl)
	migrator := &stubMigrator{result: &models.MigrationResult{Total: 3, Migrated: 3}}

	svc := NewRolloutService(migrations, migrator, rolloutCfg, config.Migration{}, logger.Nop()).(*rolloutService)
	svc.now = func() time.Time { return rolloutNow }

	return svc, migrations, migrator
}

// fullRollout admits every user: all buckets inside, no role or version gate.
func fullRollout() config.Rollout {
	return config.Rollout{
		Enabled:                 true,
		Percentage:              100,
		MaxConcurrentMigrations: 3,
	}
}

// ── Eligibility ─────────────────────────────────────────────────────────────

func TestRolloutService_Eligibility_AllGatesPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)

	eligible, reasons, err := svc.Eligibility(ctx, 42, "", "")

	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Empty(t, reasons)
}

func TestRolloutService_Eligibility_Gates(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func() config.Rollout
		role       string
		appVersion string
		migrated   bool
		wantReason string
	}{
		{
			name: "rollout disabled",
			cfg: func() config.Rollout {
				cfg := fullRollout()
				cfg.Enabled = false
				return cfg
			},
			wantReason: "migration rollout is disabled",
		},
		{
			name:       "already migrated",
			cfg:        fullRollout,
			migrated:   true,
			wantReason: "user is already migrated",
		},
		{
			name: "bucket outside percentage",
			cfg: func() config.Rollout {
				cfg := fullRollout()
				cfg.Percentage = 0
				return cfg
			},
			wantReason: "outside the rollout percentage",
		},
		{
			name: "wrong role",
			cfg: func() config.Rollout {
				cfg := fullRollout()
				cfg.RequiredRole = "beta_tester"
				return cfg
			},
			role:       "clinician",
			wantReason: `role "clinician" is not in the rollout`,
		},
		{
			name: "app version too old",
			cfg: func() config.Rollout {
				cfg := fullRollout()
				cfg.MinAppVersion = "1.4.0"
				return cfg
			},
			appVersion: "1.3.9",
			wantReason: "below the required",
		},
		{
			name: "missing app version fails the version gate",
			cfg: func() config.Rollout {
				cfg := fullRollout()
				cfg.MinAppVersion = "1.4.0"
				return cfg
			},
			wantReason: "below the required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			svc, migrations, _ := newTestRollout(t, ctrl, tt.cfg())
			ctx := testContext()

			migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(tt.migrated, nil)

			eligible, reasons, err := svc.Eligibility(ctx, 42, tt.role, tt.appVersion)

			require.NoError(t, err)
			assert.False(t, eligible)
			require.NotEmpty(t, reasons)
			assert.Contains(t, strings.Join(reasons, "; "), tt.wantReason)
		})
	}
}

func TestRolloutService_Eligibility_CooldownActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := fullRollout()
	cfg.Cooldown = time.Hour

	svc, migrations, _ := newTestRollout(t, ctrl, cfg)
	ctx := testContext()

	finishedAt := rolloutNow.Add(-30 * time.Minute)
	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)
	migrations.EXPECT().LastTerminal(ctx, int64(42)).Return(&models.MigrationQueueItem{
		Status:     models.MigrationFailed,
		FinishedAt: &finishedAt,
	}, nil)

	eligible, reasons, err := svc.Eligibility(ctx, 42, "", "")

	require.NoError(t, err)
	assert.False(t, eligible)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "cooldown active")
}

func TestRolloutService_Eligibility_CooldownElapsed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := fullRollout()
	cfg.Cooldown = time.Hour

	svc, migrations, _ := newTestRollout(t, ctrl, cfg)
	ctx := testContext()

	finishedAt := rolloutNow.Add(-2 * time.Hour)
	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)
	migrations.EXPECT().LastTerminal(ctx, int64(42)).Return(&models.MigrationQueueItem{
		Status:     models.MigrationFailed,
		FinishedAt: &finishedAt,
	}, nil)

	eligible, _, err := svc.Eligibility(ctx, 42, "", "")

	require.NoError(t, err)
	assert.True(t, eligible)
}

// ── RequestMigration ────────────────────────────────────────────────────────

func TestRolloutService_RequestMigration_Accepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)
	// default priority applies when the caller sends none
	migrations.EXPECT().Enqueue(ctx, int64(42), 100).Return(&models.MigrationQueueItem{ID: 1}, nil)

	response, err := svc.RequestMigration(ctx, 42, "", "", 0)

	require.NoError(t, err)
	assert.True(t, response.Accepted)
	assert.Empty(t, response.Reason)
}

func TestRolloutService_RequestMigration_RejectedWithReasons(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := fullRollout()
	cfg.Enabled = false
	cfg.RequiredRole = "beta_tester"

	svc, migrations, _ := newTestRollout(t, ctrl, cfg)
	ctx := testContext()

	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)

	response, err := svc.RequestMigration(ctx, 42, "clinician", "", 0)

	require.NoError(t, err)
	assert.False(t, response.Accepted)
	assert.Contains(t, response.Reason, "migration rollout is disabled")
	assert.Contains(t, response.Reason, "; ")
}

func TestRolloutService_RequestMigration_AlreadyQueued(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(false, nil)
	migrations.EXPECT().Enqueue(ctx, int64(42), 50).Return(nil, store.ErrMigrationAlreadyQueued)

	response, err := svc.RequestMigration(ctx, 42, "", "", 50)

	require.NoError(t, err)
	assert.False(t, response.Accepted)
	assert.Equal(t, "migration is already queued", response.Reason)
}

// ── Status ──────────────────────────────────────────────────────────────────

func TestRolloutService_Status(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	history := []models.MigrationQueueItem{{ID: 1, UserID: 42, Status: models.MigrationCompleted}}

	migrations.EXPECT().HasCompleted(ctx, int64(42)).Return(true, nil).Times(2)
	migrations.EXPECT().GetActive(ctx, int64(42)).Return(nil, nil)
	migrations.EXPECT().History(ctx, int64(42), migrationHistoryLimit).Return(history, nil)

	status, err := svc.Status(ctx, 42, "", "")

	require.NoError(t, err)
	assert.False(t, status.Eligible)
	assert.Contains(t, strings.Join(status.Reasons, "; "), "already migrated")
	assert.True(t, status.Migrated)
	assert.Nil(t, status.QueueStatus)
	assert.Equal(t, history, status.History)
	assert.True(t, status.Config.Enabled)
	assert.Equal(t, 100, status.Config.Percentage)
}

func TestRolloutService_Status_RolloutDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := fullRollout()
	cfg.Enabled = false
	svc, _, _ := newTestRollout(t, ctrl, cfg)

	_, err := svc.Status(testContext(), 42, "", "")

	require.ErrorIs(t, err, ErrRolloutDisabled)
}

// ── Sweep ───────────────────────────────────────────────────────────────────

func TestRolloutService_Sweep_RunsClaimedMigrations(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, migrator := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	claimed := []models.MigrationQueueItem{
		{ID: 1, UserID: 7, Status: models.MigrationProcessing},
		{ID: 2, UserID: 8, Status: models.MigrationProcessing},
	}

	migrations.EXPECT().CountProcessing(ctx).Return(1, nil)
	migrations.EXPECT().ClaimPending(ctx, 2).Return(claimed, nil)
	migrations.EXPECT().Finish(ctx, int64(1), models.MigrationCompleted, "").Return(nil)
	migrations.EXPECT().Finish(ctx, int64(2), models.MigrationCompleted, "").Return(nil)

	count, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []int64{7, 8}, migrator.migrated)
}

func TestRolloutService_Sweep_PartialFailureStillCompletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, migrator := newTestRollout(t, ctrl, fullRollout())
	migrator.result = &models.MigrationResult{Total: 5, Migrated: 3, Failed: 2}
	ctx := testContext()

	migrations.EXPECT().CountProcessing(ctx).Return(0, nil)
	migrations.EXPECT().ClaimPending(ctx, 3).Return([]models.MigrationQueueItem{{ID: 1, UserID: 7}}, nil)
	migrations.EXPECT().Finish(ctx, int64(1), models.MigrationCompleted, "2 of 5 entities failed").Return(nil)

	count, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRolloutService_Sweep_FailureTriggersRollback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := fullRollout()
	cfg.AutoRollbackOnFailure = true

	svc, migrations, migrator := newTestRollout(t, ctrl, cfg)
	migrator.result = nil
	migrator.err = assert.AnError
	ctx := testContext()

	migrations.EXPECT().CountProcessing(ctx).Return(0, nil)
	migrations.EXPECT().ClaimPending(ctx, 3).Return([]models.MigrationQueueItem{{ID: 1, UserID: 7}}, nil)
	migrations.EXPECT().Finish(ctx, int64(1), models.MigrationFailed, assert.AnError.Error()).Return(nil)

	count, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []int64{7}, migrator.rollbacks)
}

func TestRolloutService_Sweep_NoCapacity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, migrations, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	migrations.EXPECT().CountProcessing(ctx).Return(3, nil)

	count, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRolloutService_Sweep_SingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc, _, _ := newTestRollout(t, ctrl, fullRollout())
	ctx := testContext()

	// simulate a sweep still in flight
	svc.sweepMu.Lock()
	defer svc.sweepMu.Unlock()

	count, err := svc.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func TestRolloutBucket(t *testing.T) {
	for userID := int64(1); userID <= 200; userID++ {
		bucket := rolloutBucket(userID)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 100)
		assert.Equal(t, bucket, rolloutBucket(userID), "bucket must be stable")
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.4.0", "1.4.0", 0},
		{"1.4", "1.4.0", 0},
		{"1.4.1", "1.4.0", 1},
		{"1.3.9", "1.4.0", -1},
		{"2.0", "1.9.9", 1},
		{"", "1.0.0", -1},
		{"garbage", "1.0.0", -1},
		{"1.0.0", "", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, compareVersions(tt.a, tt.b), "compareVersions(%q, %q)", tt.a, tt.b)
	}
}
