package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/models"
)

// conflictRepository is the PostgreSQL-backed implementation of
// [ConflictRepository]. The partial unique index uq_sync_conflicts_open keeps
// at most one unresolved conflict per (user, entity type, entity).
type conflictRepository struct {
	*DB
	logger *logger.Logger
}

// NewConflictRepository constructs a [ConflictRepository] backed by the
// provided database connection and logger.
func NewConflictRepository(db *DB, logger *logger.Logger) ConflictRepository {
	return &conflictRepository{
		DB:     db,
		logger: logger,
	}
}

// Save inserts a conflict row. The colliding change records are stored whole
// as jsonb so resolution and audit always see the exact payloads that
// collided.
func (r *conflictRepository) Save(ctx context.Context, conflict *models.SyncConflict) error {
	log := logger.FromContext(ctx)

	localChange, err := json.Marshal(conflict.LocalChange)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.Save").
			Str("conflict_id", conflict.ConflictID).
			Msg("failed to marshal local change")
		return fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}

	serverChange, err := json.Marshal(conflict.ServerChange)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.Save").
			Str("conflict_id", conflict.ConflictID).
			Msg("failed to marshal server change")
		return fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}

	_, err = r.DB.ExecContext(ctx, saveConflict,
		conflict.ConflictID,
		conflict.UserID,
		conflict.EntityType,
		conflict.EntityID,
		conflict.ConflictType,
		localChange,
		serverChange,
		string(conflict.ResolutionStrategy),
		conflict.ResolvedValue,
		conflict.IsResolved,
		nullableString(conflict.ResolvedBy),
		conflict.ResolvedAt,
		nullableString(conflict.ResolutionNotes),
		conflict.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_sync_conflicts_open") {
			log.Warn().
				Str("func", "conflictRepository.Save").
				Int64("user_id", conflict.UserID).
				Str("entity_id", conflict.EntityID).
				Msg("entity already has an unresolved conflict")
			return fmt.Errorf("%w: %w", ErrConflictAlreadyOpen, err)
		}
		log.Err(err).
			Str("func", "conflictRepository.Save").
			Str("conflict_id", conflict.ConflictID).
			Int64("user_id", conflict.UserID).
			Msg("failed to insert sync conflict")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	return nil
}

// GetByID returns the conflict or [ErrConflictNotFound].
func (r *conflictRepository) GetByID(ctx context.Context, conflictID string) (*models.SyncConflict, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, getConflictByID, conflictID)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		log.Err(err).
			Str("func", "conflictRepository.GetByID").
			Str("conflict_id", conflictID).
			Msg("failed to query sync conflict")
		return nil, err
	}

	return conflict, nil
}

// FindUnresolved returns the entity's single unresolved conflict, or
// (nil, nil) when there is none.
func (r *conflictRepository) FindUnresolved(ctx context.Context, userID int64, entityType models.EntityType, entityID string) (*models.SyncConflict, error) {
	log := logger.FromContext(ctx)

	row := r.DB.QueryRowContext(ctx, findUnresolvedConflict, userID, entityType, entityID)

	conflict, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Err(err).
			Str("func", "conflictRepository.FindUnresolved").
			Int64("user_id", userID).
			Str("entity_id", entityID).
			Msg("failed to query unresolved conflict")
		return nil, err
	}

	return conflict, nil
}

// ListUnresolved returns all of the user's unresolved conflicts, oldest
// first.
func (r *conflictRepository) ListUnresolved(ctx context.Context, userID int64) ([]models.SyncConflict, error) {
	log := logger.FromContext(ctx)

	rows, err := r.DB.QueryContext(ctx, listUnresolvedConflicts, userID)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.ListUnresolved").
			Int64("user_id", userID).
			Msg("failed to execute query for unresolved conflicts")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]models.SyncConflict, 0, 10)

	for rows.Next() {
		conflict, scanErr := scanConflict(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "conflictRepository.ListUnresolved").
				Int64("user_id", userID).
				Msg("failed to scan conflict row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		conflicts = append(conflicts, *conflict)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "conflictRepository.ListUnresolved").
			Int64("user_id", userID).
			Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrScanningRows, rowsErr)
	}

	return conflicts, nil
}

// MarkResolved writes the resolution fields onto a still-unresolved conflict.
//
// The CTE-based update returns two IDs: the resolved row's (NULL when the
// guard rejected the update) and the existing row's (NULL when the conflict
// does not exist), which distinguishes [ErrConflictNotFound] from
// [ErrConflictAlreadyResolved].
func (r *conflictRepository) MarkResolved(ctx context.Context, conflictID string, resolution models.ConflictResolution) error {
	log := logger.FromContext(ctx)

	var resolvedID, existingID *string

	err := r.DB.QueryRowContext(ctx, markConflictResolved,
		conflictID,
		resolution.Strategy,
		resolution.ResolvedValue,
		resolution.ResolvedBy,
		nullableString(resolution.Notes),
	).Scan(&resolvedID, &existingID)
	if err != nil {
		log.Err(err).
			Str("func", "conflictRepository.MarkResolved").
			Str("conflict_id", conflictID).
			Msg("failed to execute resolve query")
		return fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if existingID == nil {
		log.Warn().
			Str("func", "conflictRepository.MarkResolved").
			Str("conflict_id", conflictID).
			Msg("conflict not found")
		return ErrConflictNotFound
	}

	if resolvedID == nil {
		log.Warn().
			Str("func", "conflictRepository.MarkResolved").
			Str("conflict_id", conflictID).
			Msg("conflict is already resolved")
		return ErrConflictAlreadyResolved
	}

	log.Info().
		Str("func", "conflictRepository.MarkResolved").
		Str("conflict_id", conflictID).
		Str("strategy", string(resolution.Strategy)).
		Msg("successfully resolved sync conflict")

	return nil
}

func scanConflict(row rowScanner) (*models.SyncConflict, error) {
	var conflict models.SyncConflict
	var localChange, serverChange []byte
	var resolvedAt sql.NullTime

	err := row.Scan(
		&conflict.ConflictID,
		&conflict.UserID,
		&conflict.EntityType,
		&conflict.EntityID,
		&conflict.ConflictType,
		&localChange,
		&serverChange,
		&conflict.ResolutionStrategy,
		&conflict.ResolvedValue,
		&conflict.IsResolved,
		&conflict.ResolvedBy,
		&resolvedAt,
		&conflict.ResolutionNotes,
		&conflict.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal(localChange, &conflict.LocalChange); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}
	if err = json.Unmarshal(serverChange, &conflict.ServerChange); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingPayload, err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		conflict.ResolvedAt = &t
	}

	return &conflict, nil
}
