package service

import (
	"github.com/therappio/clinsync/internal/config"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/store"
)

// Services aggregates every service the transport layer depends on.
type Services struct {
	SyncService      SyncService
	RolloutService   RolloutService
	MigrationService MigrationService
}

// NewServices wires the service graph: the detector feeds the sync service,
// the migrator feeds the rollout coordinator.
func NewServices(storages *store.Storages, local store.LocalStore, cfg *config.StructuredConfig, log *logger.Logger) *Services {
	detector := NewConflictDetector(storages.ChangeRecords, log)
	migrator := NewMigrationService(local, storages, store.NewPostgresErrorClassifier(), log)

	return &Services{
		SyncService:      NewSyncService(storages, detector, log),
		RolloutService:   NewRolloutService(storages.Migrations, migrator, cfg.Rollout, cfg.Migration, log),
		MigrationService: migrator,
	}
}
