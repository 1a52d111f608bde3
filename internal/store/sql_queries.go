package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/therappio/clinsync/models"
)

const (
	saveChangeRecord = `INSERT INTO change_records (
			change_id,
			user_id,
			device_id,
			entity_type,
			entity_id,
			operation,
			changes,
			previous_values,
			new_values,
			created_at,
			sync_status,
			retry_count,
			last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	latestForeignChange = `SELECT change_id, user_id, device_id, entity_type, entity_id, operation,
			changes, previous_values, new_values, created_at, sync_status, retry_count, last_error
		FROM change_records
		WHERE user_id = $1
		  AND entity_type = $2
		  AND entity_id = $3
		  AND device_id <> $4
		  AND sync_status = 'synced'
		  AND created_at > $5
		ORDER BY created_at DESC
		LIMIT 1;`

	saveConflict = `INSERT INTO sync_conflicts (
			conflict_id,
			user_id,
			entity_type,
			entity_id,
			conflict_type,
			local_change,
			server_change,
			resolution_strategy,
			resolved_value,
			is_resolved,
			resolved_by,
			resolved_at,
			resolution_notes,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14);`

	getConflictByID = `SELECT conflict_id, user_id, entity_type, entity_id, conflict_type,
			local_change, server_change, COALESCE(resolution_strategy, ''), resolved_value,
			is_resolved, COALESCE(resolved_by, ''), resolved_at, COALESCE(resolution_notes, ''), created_at
		FROM sync_conflicts
		WHERE conflict_id = $1;`

	findUnresolvedConflict = `SELECT conflict_id, user_id, entity_type, entity_id, conflict_type,
			local_change, server_change, COALESCE(resolution_strategy, ''), resolved_value,
			is_resolved, COALESCE(resolved_by, ''), resolved_at, COALESCE(resolution_notes, ''), created_at
		FROM sync_conflicts
		WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3 AND NOT is_resolved;`

	listUnresolvedConflicts = `SELECT conflict_id, user_id, entity_type, entity_id, conflict_type,
			local_change, server_change, COALESCE(resolution_strategy, ''), resolved_value,
			is_resolved, COALESCE(resolved_by, ''), resolved_at, COALESCE(resolution_notes, ''), created_at
		FROM sync_conflicts
		WHERE user_id = $1 AND NOT is_resolved
		ORDER BY created_at ASC;`

	// markConflictResolved updates only when still unresolved; the CTE lets the
	// caller distinguish "not found" (both NULL) from "already resolved"
	// (resolved row ID NULL, existing ID non-NULL).
	markConflictResolved = `WITH target_record AS (
			SELECT conflict_id, is_resolved FROM sync_conflicts WHERE conflict_id = $1
		), resolved AS (
			UPDATE sync_conflicts
			SET resolution_strategy = $2,
			    resolved_value      = $3,
			    is_resolved         = TRUE,
			    resolved_by         = $4,
			    resolved_at         = now(),
			    resolution_notes    = $5
			WHERE conflict_id = $1 AND NOT is_resolved
			RETURNING conflict_id
		)
		SELECT
			(SELECT conflict_id FROM resolved),
			(SELECT conflict_id FROM target_record);`
)

const (
	createPatient = `INSERT INTO patients (
			patient_id, user_id, name, date_of_birth, contact, notes,
			is_active, created_at, updated_at, last_session_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	getPatient = `SELECT patient_id, user_id, name, date_of_birth, contact, notes,
			is_active, created_at, updated_at, last_session_at
		FROM patients
		WHERE user_id = $1 AND patient_id = $2;`

	listPatientsByUser = `SELECT patient_id, user_id, name, date_of_birth, contact, notes,
			is_active, created_at, updated_at, last_session_at
		FROM patients
		WHERE user_id = $1
		ORDER BY created_at ASC;`

	softDeletePatient = `UPDATE patients
		SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND patient_id = $2;`

	createSession = `INSERT INTO sessions (
			session_id, patient_id, user_id, scheduled_at, duration_minutes,
			status, notes, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	getSession = `SELECT session_id, patient_id, user_id, scheduled_at, duration_minutes,
			status, notes, is_active, created_at, updated_at
		FROM sessions
		WHERE user_id = $1 AND session_id = $2;`

	listSessionsByUser = `SELECT session_id, patient_id, user_id, scheduled_at, duration_minutes,
			status, notes, is_active, created_at, updated_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at ASC;`

	softDeleteSession = `UPDATE sessions
		SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND session_id = $2;`

	// bumpPatientOnSessionWrite keeps the parent patient's updated_at current
	// whenever one of its sessions changes; last_session_at advances only on
	// session create ($3 = TRUE).
	bumpPatientOnSessionWrite = `UPDATE patients
		SET updated_at = now(),
		    last_session_at = CASE WHEN $3 THEN now() ELSE last_session_at END
		WHERE user_id = $1 AND patient_id = $2;`

	sessionPatientID = `SELECT patient_id FROM sessions
		WHERE user_id = $1 AND session_id = $2;`

	createFile = `INSERT INTO files (
			file_id, user_id, name, mime_type, size_bytes, storage_path,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	getFile = `SELECT file_id, user_id, name, mime_type, size_bytes, storage_path,
			is_active, created_at, updated_at
		FROM files
		WHERE user_id = $1 AND file_id = $2;`

	listFilesByUser = `SELECT file_id, user_id, name, mime_type, size_bytes, storage_path,
			is_active, created_at, updated_at
		FROM files
		WHERE user_id = $1
		ORDER BY created_at ASC;`

	softDeleteFile = `UPDATE files
		SET is_active = FALSE, updated_at = now()
		WHERE user_id = $1 AND file_id = $2;`
)

const (
	enqueueMigration = `INSERT INTO migration_queue (user_id, priority, status, requested_at)
		VALUES ($1, $2, 'pending', now())
		RETURNING id, user_id, priority, status, requested_at;`

	getActiveMigration = `SELECT id, user_id, priority, status, requested_at, started_at, finished_at, COALESCE(error, '')
		FROM migration_queue
		WHERE user_id = $1 AND status IN ('pending', 'processing');`

	migrationHistory = `SELECT id, user_id, priority, status, requested_at, started_at, finished_at, COALESCE(error, '')
		FROM migration_queue
		WHERE user_id = $1
		ORDER BY requested_at DESC
		LIMIT $2;`

	lastTerminalMigration = `SELECT id, user_id, priority, status, requested_at, started_at, finished_at, COALESCE(error, '')
		FROM migration_queue
		WHERE user_id = $1 AND status IN ('completed', 'failed', 'skipped')
		ORDER BY finished_at DESC
		LIMIT 1;`

	hasCompletedMigration = `SELECT EXISTS (
			SELECT 1 FROM migration_queue WHERE user_id = $1 AND status = 'completed'
		);`

	countProcessingMigrations = `SELECT COUNT(*) FROM migration_queue WHERE status = 'processing';`

	// claimPendingMigrations promotes pending items to processing in priority
	// order. FOR UPDATE SKIP LOCKED makes concurrent sweeps claim disjoint
	// sets instead of blocking on each other.
	claimPendingMigrations = `UPDATE migration_queue
		SET status = 'processing', started_at = now()
		WHERE id IN (
			SELECT id FROM migration_queue
			WHERE status = 'pending'
			ORDER BY priority ASC, requested_at ASC, user_id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, priority, status, requested_at, started_at;`

	finishMigration = `UPDATE migration_queue
		SET status = $2, finished_at = now(), error = NULLIF($3, '')
		WHERE id = $1 AND status = 'processing';`

	saveMigrationBackup = `INSERT INTO migration_backups (user_id, snapshot)
		VALUES ($1, $2)
		RETURNING id;`

	latestMigrationBackup = `SELECT id, user_id, created_at, snapshot
		FROM migration_backups
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1;`

	deleteUserPatients = `DELETE FROM patients WHERE user_id = $1;`
	deleteUserSessions = `DELETE FROM sessions WHERE user_id = $1;`
	deleteUserFiles    = `DELETE FROM files WHERE user_id = $1;`
)

// buildListChangesQuery builds the incremental pull query. The entity-type
// filter is optional, so the query is assembled dynamically.
func buildListChangesQuery(userID int64, excludeDeviceID string, since any, entityTypes []models.EntityType) (string, []any, error) {
	builder := sq.Select(
		"change_id", "user_id", "device_id", "entity_type", "entity_id", "operation",
		"changes", "previous_values", "new_values", "created_at", "sync_status", "retry_count", "last_error",
	).
		From("change_records").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"sync_status": models.SyncSynced}).
		Where(sq.Gt{"created_at": since}).
		OrderBy("created_at ASC").
		PlaceholderFormat(sq.Dollar)

	if excludeDeviceID != "" {
		builder = builder.Where(sq.NotEq{"device_id": excludeDeviceID})
	}

	if len(entityTypes) > 0 {
		types := make([]string, 0, len(entityTypes))
		for _, t := range entityTypes {
			types = append(types, string(t))
		}
		builder = builder.Where(sq.Eq{"entity_type": types})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return query, args, nil
}

// buildEntityUpdateQuery builds a partial UPDATE for one entity table. Field
// names arrive already sanitized against the per-entity allow-lists, so they
// map one-to-one onto column names.
func buildEntityUpdateQuery(table, idColumn string, userID int64, entityID string, fields models.FieldMap) (string, []any, error) {
	builder := sq.Update(table).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"user_id": userID, idColumn: entityID}).
		PlaceholderFormat(sq.Dollar)

	for field, value := range fields {
		builder = builder.Set(field, value)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return query, args, nil
}
