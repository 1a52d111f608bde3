package service

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/internal/utils"
	"github.com/therappio/clinsync/models"
)

// conflictDetector implements [ConflictDetector] against the change log.
//
// A pushed change conflicts when another device has a synced change for the
// same entity newer than the pusher's checkpoint. Classification depends on
// the two operations; only concurrent updates over disjoint field sets are
// settled automatically.
type conflictDetector struct {
	changeRecords store.ChangeRecordRepository
	uuid          *utils.UUIDGenerator

	logger *logger.Logger
	now    func() time.Time
}

// NewConflictDetector constructs a [ConflictDetector] reading from the
// given change log.
func NewConflictDetector(changeRecords store.ChangeRecordRepository, log *logger.Logger) ConflictDetector {
	return &conflictDetector{
		changeRecords: changeRecords,
		uuid:          utils.NewUUIDGenerator(),
		logger:        log,
		now:           time.Now,
	}
}

// Detect implements [ConflictDetector]. Errors from the change log fail the
// check closed: the caller must treat the change as undecided rather than
// apply it.
func (d *conflictDetector) Detect(ctx context.Context, change *models.ChangeRecord, lastSyncedAt time.Time) (*Detection, error) {
	log := logger.FromContext(ctx)

	foreign, err := d.changeRecords.LatestForeignChange(ctx,
		change.UserID, change.EntityType, change.EntityID, change.DeviceID, lastSyncedAt)
	if err != nil {
		log.Err(err).
			Str("func", "conflictDetector.Detect").
			Int64("user_id", change.UserID).
			Str("entity_id", change.EntityID).
			Msg("failed to look up foreign changes")
		return nil, fmt.Errorf("failed to look up foreign changes: %w", err)
	}

	if foreign == nil {
		return &Detection{}, nil
	}

	conflictType := classifyConflict(change.Operation, foreign.Operation)

	conflict := &models.SyncConflict{
		ConflictID:   d.uuid.Generate(),
		UserID:       change.UserID,
		EntityType:   change.EntityType,
		EntityID:     change.EntityID,
		ConflictType: conflictType,
		LocalChange:  *change,
		ServerChange: *foreign,
		Timestamp:    d.now(),
	}

	detection := &Detection{Conflict: conflict}

	if conflictType == models.ConflictConcurrentUpdate && disjointFields(change.Changes, foreign.Changes) {
		merged, mergeErr := unionMerge(foreign.Changes, change.Changes)
		if mergeErr != nil {
			log.Err(mergeErr).
				Str("func", "conflictDetector.Detect").
				Str("conflict_id", conflict.ConflictID).
				Msg("failed to merge disjoint field sets, leaving conflict unresolved")
			return detection, nil
		}

		detection.AutoResolution = &models.ConflictResolution{
			Strategy:      models.ResolutionMerge,
			ResolvedValue: merged,
			ResolvedBy:    models.ResolvedByAuto,
			Notes:         "disjoint field sets merged automatically",
		}

		log.Info().
			Str("func", "conflictDetector.Detect").
			Str("conflict_id", conflict.ConflictID).
			Str("entity_id", change.EntityID).
			Msg("concurrent update over disjoint fields, auto-resolving")
	} else {
		log.Info().
			Str("func", "conflictDetector.Detect").
			Str("conflict_id", conflict.ConflictID).
			Str("entity_id", change.EntityID).
			Str("conflict_type", string(conflictType)).
			Msg("detected sync conflict")
	}

	return detection, nil
}

// classifyConflict maps the colliding operation pair onto a conflict type.
// The device's operation is local; the already-synced one is foreign.
func classifyConflict(local, foreign models.Operation) models.ConflictType {
	switch {
	case local != models.OperationDelete && foreign == models.OperationDelete:
		return models.ConflictUpdateAfterDelete
	case local == models.OperationDelete && foreign != models.OperationDelete:
		return models.ConflictDeleteAfterUpdate
	case local == models.OperationCreate && foreign == models.OperationCreate:
		return models.ConflictDuplicateCreate
	default:
		return models.ConflictConcurrentUpdate
	}
}

// unionMerge combines two field maps into a new one. With disjoint inputs
// the order does not matter; with overlapping inputs the override map wins.
func unionMerge(base, override models.FieldMap) (models.FieldMap, error) {
	merged := base.Clone()
	if merged == nil {
		merged = models.FieldMap{}
	}

	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge field maps: %w", err)
	}

	return merged, nil
}

// mergeByRecency resolves overlapping updates deterministically: the change
// with the later timestamp wins every contested field; equal timestamps
// break by the lexicographically greater device ID. Both devices computing
// this merge arrive at the same result.
func mergeByRecency(local, server *models.ChangeRecord) (models.FieldMap, error) {
	winner, loser := local, server
	if server.Timestamp.After(local.Timestamp) ||
		(server.Timestamp.Equal(local.Timestamp) && server.DeviceID > local.DeviceID) {
		winner, loser = server, local
	}

	return unionMerge(loser.Changes, winner.Changes)
}
