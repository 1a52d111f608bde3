package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/therappio/clinsync/internal/config"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/models"
)

// migrationHistoryLimit caps how many past attempts the status endpoint
// returns.
const migrationHistoryLimit = 10

// rolloutService implements [RolloutService]: the gates that decide who may
// migrate, the queue that orders them, and the sweep that runs them.
type rolloutService struct {
	migrations store.MigrationRepository
	migrator   MigrationService

	rolloutCfg   config.Rollout
	migrationCfg config.Migration

	// sweepMu makes the sweep single-flight within this instance; the
	// database claim (FOR UPDATE SKIP LOCKED) handles cross-instance races.
	sweepMu sync.Mutex

	logger *logger.Logger
	now    func() time.Time
}

// NewRolloutService constructs a [RolloutService].
func NewRolloutService(migrations store.MigrationRepository, migrator MigrationService, rolloutCfg config.Rollout, migrationCfg config.Migration, log *logger.Logger) RolloutService {
	return &rolloutService{
		migrations:   migrations,
		migrator:     migrator,
		rolloutCfg:   rolloutCfg,
		migrationCfg: migrationCfg,
		logger:       log,
		now:          time.Now,
	}
}

// Eligibility evaluates every rollout gate. All gates are checked so the
// caller sees the complete list of reasons, not just the first.
func (r *rolloutService) Eligibility(ctx context.Context, userID int64, role, appVersion string) (bool, []string, error) {
	reasons := make([]string, 0, 4)

	if !r.rolloutCfg.Enabled {
		reasons = append(reasons, "migration rollout is disabled")
	}

	migrated, err := r.migrations.HasCompleted(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check migration history: %w", err)
	}
	if migrated {
		reasons = append(reasons, "user is already migrated")
	}

	if bucket := rolloutBucket(userID); bucket >= r.rolloutCfg.Percentage {
		reasons = append(reasons, fmt.Sprintf("user bucket %d is outside the rollout percentage %d", bucket, r.rolloutCfg.Percentage))
	}

	if r.rolloutCfg.RequiredRole != "" && role != r.rolloutCfg.RequiredRole {
		reasons = append(reasons, fmt.Sprintf("role %q is not in the rollout", role))
	}

	if r.rolloutCfg.MinAppVersion != "" && compareVersions(appVersion, r.rolloutCfg.MinAppVersion) < 0 {
		reasons = append(reasons, fmt.Sprintf("app version %q is below the required %q", appVersion, r.rolloutCfg.MinAppVersion))
	}

	if !migrated && r.rolloutCfg.Cooldown > 0 {
		last, lastErr := r.migrations.LastTerminal(ctx, userID)
		if lastErr != nil {
			return false, nil, fmt.Errorf("failed to check last migration attempt: %w", lastErr)
		}
		if last != nil && last.FinishedAt != nil {
			if wait := last.FinishedAt.Add(r.rolloutCfg.Cooldown).Sub(r.now()); wait > 0 {
				reasons = append(reasons, fmt.Sprintf("cooldown active for another %s", wait.Round(time.Second)))
			}
		}
	}

	return len(reasons) == 0, reasons, nil
}

// RequestMigration queues the user when every gate passes. Rejections are
// part of the response so clients can show the reason without parsing
// errors.
func (r *rolloutService) RequestMigration(ctx context.Context, userID int64, role, appVersion string, priority int) (*models.MigrationRequestResponse, error) {
	log := logger.FromContext(ctx)

	eligible, reasons, err := r.Eligibility(ctx, userID, role, appVersion)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return &models.MigrationRequestResponse{
			Accepted: false,
			Reason:   strings.Join(reasons, "; "),
		}, nil
	}

	if priority <= 0 {
		priority = 100
	}

	if _, err = r.migrations.Enqueue(ctx, userID, priority); err != nil {
		if errors.Is(err, store.ErrMigrationAlreadyQueued) {
			return &models.MigrationRequestResponse{
				Accepted: false,
				Reason:   "migration is already queued",
			}, nil
		}
		return nil, err
	}

	log.Info().
		Str("func", "rolloutService.RequestMigration").
		Int64("user_id", userID).
		Int("priority", priority).
		Msg("accepted migration request")

	return &models.MigrationRequestResponse{Accepted: true}, nil
}

// Status returns the read-only migration view for one user. When the
// rollout is globally disabled the whole surface hides behind
// ErrRolloutDisabled instead of leaking the config.
func (r *rolloutService) Status(ctx context.Context, userID int64, role, appVersion string) (*models.MigrationStatusResponse, error) {
	if !r.rolloutCfg.Enabled {
		return nil, ErrRolloutDisabled
	}

	eligible, reasons, err := r.Eligibility(ctx, userID, role, appVersion)
	if err != nil {
		return nil, err
	}

	migrated, err := r.migrations.HasCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check migration history: %w", err)
	}

	active, err := r.migrations.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check migration queue: %w", err)
	}

	history, err := r.migrations.History(ctx, userID, migrationHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load migration history: %w", err)
	}

	return &models.MigrationStatusResponse{
		Eligible:    eligible,
		Reasons:     reasons,
		Migrated:    migrated,
		QueueStatus: active,
		History:     history,
		Config: models.RolloutConfigView{
			Enabled:                 r.rolloutCfg.Enabled,
			Percentage:              r.rolloutCfg.Percentage,
			MaxConcurrentMigrations: r.rolloutCfg.MaxConcurrentMigrations,
			Cooldown:                r.rolloutCfg.Cooldown.String(),
		},
	}, nil
}

// Sweep claims pending queue items up to the free concurrency capacity and
// runs their migrations, one goroutine per claimed user. Returns how many
// items were claimed.
func (r *rolloutService) Sweep(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	if !r.sweepMu.TryLock() {
		log.Debug().
			Str("func", "rolloutService.Sweep").
			Msg("previous sweep still running, skipping")
		return 0, nil
	}
	defer r.sweepMu.Unlock()

	processing, err := r.migrations.CountProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count processing migrations: %w", err)
	}

	capacity := r.rolloutCfg.MaxConcurrentMigrations - processing
	if capacity <= 0 {
		return 0, nil
	}

	claimed, err := r.migrations.ClaimPending(ctx, capacity)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending migrations: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, item := range claimed {
		wg.Add(1)
		go func(item models.MigrationQueueItem) {
			defer wg.Done()
			r.runClaimed(ctx, item)
		}(item)
	}
	wg.Wait()

	return len(claimed), nil
}

// runClaimed executes one claimed migration and moves the queue item to its
// terminal state.
func (r *rolloutService) runClaimed(ctx context.Context, item models.MigrationQueueItem) {
	log := logger.FromContext(ctx)

	opts := models.MigrationOptions{
		BackupLocalData: r.migrationCfg.BackupLocalData,
		MaxRetries:      r.migrationCfg.MaxRetries,
		RetryDelay:      r.migrationCfg.RetryDelay,
	}

	result, err := r.migrator.MigrateUserData(ctx, item.UserID, opts)
	if err != nil {
		log.Err(err).
			Str("func", "rolloutService.runClaimed").
			Int64("user_id", item.UserID).
			Int64("queue_id", item.ID).
			Msg("migration run failed")

		if finishErr := r.migrations.Finish(ctx, item.ID, models.MigrationFailed, err.Error()); finishErr != nil {
			log.Err(finishErr).
				Str("func", "rolloutService.runClaimed").
				Int64("queue_id", item.ID).
				Msg("failed to mark queue item failed")
		}

		if r.rolloutCfg.AutoRollbackOnFailure {
			if rbErr := r.migrator.Rollback(ctx, item.UserID); rbErr != nil && !errors.Is(rbErr, store.ErrNoBackupFound) {
				log.Err(rbErr).
					Str("func", "rolloutService.runClaimed").
					Int64("user_id", item.UserID).
					Msg("automatic rollback failed")
			}
		}
		return
	}

	// Partial success still completes the run; failed entities are in the
	// result for operators to follow up on.
	errMsg := ""
	if result.Failed > 0 {
		errMsg = fmt.Sprintf("%d of %d entities failed", result.Failed, result.Total)
	}

	if finishErr := r.migrations.Finish(ctx, item.ID, models.MigrationCompleted, errMsg); finishErr != nil {
		log.Err(finishErr).
			Str("func", "rolloutService.runClaimed").
			Int64("queue_id", item.ID).
			Msg("failed to mark queue item completed")
		return
	}

	log.Info().
		Str("func", "rolloutService.runClaimed").
		Int64("user_id", item.UserID).
		Int64("queue_id", item.ID).
		Int("migrated", result.Migrated).
		Int("failed", result.Failed).
		Msg("migration run finished")
}

// rolloutBucket maps a user onto a stable 0-99 bucket. FNV-1a keeps the
// assignment uniform and identical across instances and restarts.
func rolloutBucket(userID int64) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "user:%d", userID)
	return int(h.Sum32() % 100)
}

// compareVersions compares two dotted numeric versions ("1.4.0"). Returns
// -1, 0 or 1. Missing segments count as zero; non-numeric segments count as
// zero too, which makes a malformed client version fail the gate rather
// than pass it.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}

	return 0
}
