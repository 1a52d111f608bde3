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

// syncService implements [SyncService] over the change log, the conflict
// store and the authoritative entity stores.
type syncService struct {
	changeRecords store.ChangeRecordRepository
	conflicts     store.ConflictRepository
	patients      store.PatientRepository
	sessions      store.SessionRepository
	files         store.FileRepository
	detector      ConflictDetector

	uuid   *utils.UUIDGenerator
	logger *logger.Logger
	now    func() time.Time
}

// NewSyncService constructs a [SyncService] on top of the given storages and
// conflict detector.
func NewSyncService(storages *store.Storages, detector ConflictDetector, log *logger.Logger) SyncService {
	return &syncService{
		changeRecords: storages.ChangeRecords,
		conflicts:     storages.Conflicts,
		patients:      storages.Patients,
		sessions:      storages.Sessions,
		files:         storages.Files,
		detector:      detector,
		uuid:          utils.NewUUIDGenerator(),
		logger:        log,
		now:           time.Now,
	}
}

// Push processes a device's batch of pending changes.
//
// Each change goes through the same pipeline: sanitize, check for an
// already-open conflict, detect new conflicts, apply to the entity store,
// and finally write the audit record. The audit record is deliberately the
// last write per change, so an interrupted request never leaves an audit row
// for a write that did not happen. Failures are isolated per change.
func (s *syncService) Push(ctx context.Context, userID int64, request *models.PushRequest) (*models.PushResponse, error) {
	log := logger.FromContext(ctx)

	if userID <= 0 {
		return nil, ErrValidationNoUserID
	}
	if request.DeviceID == "" {
		return nil, ErrValidationNoDeviceID
	}

	response := &models.PushResponse{
		Changes:       make([]models.ChangeRecord, 0, len(request.Changes)),
		ConflictsList: make([]models.SyncConflict, 0),
	}

	for i := range request.Changes {
		change := request.Changes[i]
		change.UserID = userID
		change.DeviceID = request.DeviceID
		if change.ChangeID == "" {
			change.ChangeID = s.uuid.Generate()
		}
		if change.Timestamp.IsZero() {
			change.Timestamp = s.now()
		}

		s.processChange(ctx, &change, request.LastSyncedAt, response)
	}

	log.Info().
		Str("func", "syncService.Push").
		Int64("user_id", userID).
		Str("device_id", request.DeviceID).
		Int("received", len(request.Changes)).
		Int("processed", response.ProcessedChanges).
		Int("conflicts", response.Conflicts).
		Msg("processed push batch")

	return response, nil
}

// processChange runs one change through the push pipeline and appends its
// outcome to the response.
func (s *syncService) processChange(ctx context.Context, change *models.ChangeRecord, lastSyncedAt time.Time, response *models.PushResponse) {
	log := logger.FromContext(ctx)

	if err := sanitizeChange(change); err != nil {
		log.Warn().
			Str("func", "syncService.processChange").
			Str("change_id", change.ChangeID).
			Str("entity_id", change.EntityID).
			Err(err).
			Msg("rejecting invalid change")
		s.recordChange(ctx, change, models.SyncFailed, err.Error())
		response.Changes = append(response.Changes, *change)
		return
	}

	// An entity with an open conflict accepts no further changes until the
	// conflict is settled.
	open, err := s.conflicts.FindUnresolved(ctx, change.UserID, change.EntityType, change.EntityID)
	if err != nil {
		s.recordChange(ctx, change, models.SyncFailed, "failed to check for open conflicts")
		response.Changes = append(response.Changes, *change)
		return
	}
	if open != nil {
		s.recordChange(ctx, change, models.SyncFailed, fmt.Sprintf("entity has unresolved conflict %s", open.ConflictID))
		response.Changes = append(response.Changes, *change)
		return
	}

	detection, err := s.detector.Detect(ctx, change, lastSyncedAt)
	if err != nil {
		// Fail closed: an undecidable change is never applied.
		s.recordChange(ctx, change, models.SyncFailed, "conflict detection failed")
		response.Changes = append(response.Changes, *change)
		return
	}

	if detection.Conflict != nil {
		s.processConflict(ctx, change, detection, response)
		return
	}

	if err = s.applyChange(ctx, change, change.Changes); err != nil {
		log.Err(err).
			Str("func", "syncService.processChange").
			Str("change_id", change.ChangeID).
			Str("entity_id", change.EntityID).
			Msg("failed to apply change to entity store")
		s.recordChange(ctx, change, models.SyncFailed, err.Error())
		response.Changes = append(response.Changes, *change)
		return
	}

	s.recordChange(ctx, change, models.SyncSynced, "")
	response.Changes = append(response.Changes, *change)
	response.ProcessedChanges++
}

// processConflict persists a detected conflict and, when an automatic
// resolution exists, applies it in the same pass.
func (s *syncService) processConflict(ctx context.Context, change *models.ChangeRecord, detection *Detection, response *models.PushResponse) {
	log := logger.FromContext(ctx)

	conflict := detection.Conflict

	if detection.AutoResolution == nil {
		if err := s.conflicts.Save(ctx, conflict); err != nil {
			// Lost a race with a concurrent push that opened a conflict
			// for the same entity first.
			if errors.Is(err, store.ErrConflictAlreadyOpen) {
				s.recordChange(ctx, change, models.SyncFailed, "entity has unresolved conflict")
				response.Changes = append(response.Changes, *change)
				return
			}
			s.recordChange(ctx, change, models.SyncFailed, "failed to record conflict")
			response.Changes = append(response.Changes, *change)
			return
		}

		response.ConflictsList = append(response.ConflictsList, *conflict)
		response.Conflicts++
		return
	}

	resolution := detection.AutoResolution

	resolvedAt := s.now()
	conflict.ResolutionStrategy = resolution.Strategy
	conflict.ResolvedValue = resolution.ResolvedValue
	conflict.IsResolved = true
	conflict.ResolvedBy = resolution.ResolvedBy
	conflict.ResolvedAt = &resolvedAt
	conflict.ResolutionNotes = resolution.Notes

	// The conflict row is the audit trail for the merge. Until it exists the
	// change counts as not conflict-checked, so nothing is applied without it.
	if err := s.conflicts.Save(ctx, conflict); err != nil {
		log.Err(err).
			Str("func", "syncService.processConflict").
			Str("conflict_id", conflict.ConflictID).
			Msg("failed to record auto-resolved conflict")
		s.recordChange(ctx, change, models.SyncFailed, "failed to record conflict")
		response.Changes = append(response.Changes, *change)
		return
	}

	if err := s.applyChange(ctx, change, resolution.ResolvedValue); err != nil {
		log.Err(err).
			Str("func", "syncService.processConflict").
			Str("conflict_id", conflict.ConflictID).
			Msg("failed to apply auto-resolved merge")
		s.recordChange(ctx, change, models.SyncFailed, err.Error())
		response.Changes = append(response.Changes, *change)
		return
	}

	change.NewValues = resolution.ResolvedValue
	s.recordChange(ctx, change, models.SyncSynced, "")

	response.Changes = append(response.Changes, *change)
	response.ConflictsList = append(response.ConflictsList, *conflict)
	response.Conflicts++
	response.ProcessedChanges++
}

// Pull returns foreign changes since the checkpoint plus all unresolved
// conflicts.
func (s *syncService) Pull(ctx context.Context, userID int64, deviceID string, since time.Time, entityTypes []models.EntityType) (*models.PullResponse, error) {
	log := logger.FromContext(ctx)

	if userID <= 0 {
		return nil, ErrValidationNoUserID
	}

	changes, err := s.changeRecords.ListSince(ctx, userID, deviceID, since, entityTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	// One entity can appear in many changes; resolve its current state once.
	stateCache := make(map[string]any)

	pulled := make([]models.PulledChange, 0, len(changes))
	for i := range changes {
		change := changes[i]
		pulled = append(pulled, models.PulledChange{
			ChangeRecord: change,
			CurrentState: s.currentState(ctx, stateCache, userID, change.EntityType, change.EntityID),
		})
	}

	conflicts, err := s.conflicts.ListUnresolved(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved conflicts: %w", err)
	}

	log.Info().
		Str("func", "syncService.Pull").
		Int64("user_id", userID).
		Str("device_id", deviceID).
		Time("since", since).
		Int("changes", len(pulled)).
		Int("conflicts", len(conflicts)).
		Msg("served pull request")

	return &models.PullResponse{
		Changes:        pulled,
		Conflicts:      conflicts,
		ServerTime:     s.now(),
		TotalChanges:   len(pulled),
		TotalConflicts: len(conflicts),
	}, nil
}

// Resolve settles one unresolved conflict with the requested strategy.
func (s *syncService) Resolve(ctx context.Context, userID int64, request *models.ResolveRequest) (*models.SyncConflict, error) {
	log := logger.FromContext(ctx)

	if userID <= 0 {
		return nil, ErrValidationNoUserID
	}
	if !request.ResolutionStrategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, request.ResolutionStrategy)
	}

	conflict, err := s.conflicts.GetByID(ctx, request.ConflictID)
	if err != nil {
		return nil, err
	}
	// A caller may only see and settle their own conflicts.
	if conflict.UserID != userID {
		return nil, store.ErrConflictNotFound
	}
	if conflict.IsResolved {
		return nil, store.ErrConflictAlreadyResolved
	}

	resolvedValue, applied, err := s.applyResolution(ctx, conflict, request)
	if err != nil {
		return nil, err
	}

	resolvedBy := request.DeviceID
	if resolvedBy == "" {
		resolvedBy = fmt.Sprintf("user:%d", userID)
	}

	resolution := models.ConflictResolution{
		Strategy:      request.ResolutionStrategy,
		ResolvedValue: resolvedValue,
		ResolvedBy:    resolvedBy,
		Notes:         request.ResolutionNotes,
	}

	if err = s.conflicts.MarkResolved(ctx, conflict.ConflictID, resolution); err != nil {
		return nil, err
	}

	// Audit the resolution itself; last write, as with pushes.
	if applied != nil {
		s.recordChange(ctx, applied, models.SyncSynced, "")
	}

	log.Info().
		Str("func", "syncService.Resolve").
		Str("conflict_id", conflict.ConflictID).
		Str("strategy", string(request.ResolutionStrategy)).
		Str("resolved_by", resolvedBy).
		Msg("resolved sync conflict")

	return s.conflicts.GetByID(ctx, conflict.ConflictID)
}

// applyResolution performs the entity-store write the chosen strategy calls
// for and returns the resolved value plus the audit record for the write
// (nil when the strategy keeps the server state).
func (s *syncService) applyResolution(ctx context.Context, conflict *models.SyncConflict, request *models.ResolveRequest) (models.FieldMap, *models.ChangeRecord, error) {
	local := conflict.LocalChange

	switch request.ResolutionStrategy {
	case models.ResolutionUseServer:
		// The authoritative store already holds the server change.
		return conflict.ServerChange.Changes, nil, nil

	case models.ResolutionUseLocal:
		record := s.resolutionRecord(conflict, local.Operation, local.Changes)
		if err := s.applyChange(ctx, record, local.Changes); err != nil {
			return nil, nil, err
		}
		return local.Changes, record, nil

	case models.ResolutionMerge:
		merged := request.ResolvedValue
		if merged == nil {
			var err error
			merged, err = mergeByRecency(&conflict.LocalChange, &conflict.ServerChange)
			if err != nil {
				return nil, nil, err
			}
		}
		record := s.resolutionRecord(conflict, models.OperationUpdate, merged)
		if err := s.applyChange(ctx, record, merged); err != nil {
			return nil, nil, err
		}
		return merged, record, nil

	case models.ResolutionManual:
		if len(request.ResolvedValue) == 0 {
			return nil, nil, ErrResolvedValueRequired
		}
		record := s.resolutionRecord(conflict, models.OperationUpdate, request.ResolvedValue)
		if err := s.applyChange(ctx, record, request.ResolvedValue); err != nil {
			return nil, nil, err
		}
		return request.ResolvedValue, record, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, request.ResolutionStrategy)
}

// resolutionRecord builds the audit record for a resolution write.
func (s *syncService) resolutionRecord(conflict *models.SyncConflict, op models.Operation, changes models.FieldMap) *models.ChangeRecord {
	return &models.ChangeRecord{
		ChangeID:   s.uuid.Generate(),
		UserID:     conflict.UserID,
		DeviceID:   conflict.LocalChange.DeviceID,
		EntityType: conflict.EntityType,
		EntityID:   conflict.EntityID,
		Operation:  op,
		Changes:    changes,
		Timestamp:  s.now(),
	}
}

// currentState returns the entity's present authoritative state, memoized
// per pull request. Missing entities yield nil.
func (s *syncService) currentState(ctx context.Context, cache map[string]any, userID int64, entityType models.EntityType, entityID string) any {
	key := string(entityType) + ":" + entityID
	if state, ok := cache[key]; ok {
		return state
	}

	var state any
	var err error

	switch entityType {
	case models.EntityPatient:
		state, err = s.patients.Get(ctx, userID, entityID)
	case models.EntitySession:
		state, err = s.sessions.Get(ctx, userID, entityID)
	case models.EntityFile:
		state, err = s.files.Get(ctx, userID, entityID)
	}
	if err != nil {
		state = nil
	}

	cache[key] = state
	return state
}

// applyChange writes one change into the authoritative entity store. The
// fields argument carries what to write, which may differ from
// change.Changes when a merge was computed.
func (s *syncService) applyChange(ctx context.Context, change *models.ChangeRecord, fields models.FieldMap) error {
	switch change.EntityType {
	case models.EntityPatient:
		return s.applyPatientChange(ctx, change, fields)
	case models.EntitySession:
		return s.applySessionChange(ctx, change, fields)
	case models.EntityFile:
		return s.applyFileChange(ctx, change, fields)
	}
	return fmt.Errorf("%w: unknown entity type %q", models.ErrInvalidChange, change.EntityType)
}

func (s *syncService) applyPatientChange(ctx context.Context, change *models.ChangeRecord, fields models.FieldMap) error {
	switch change.Operation {
	case models.OperationCreate:
		patient := &models.Patient{
			PatientID:   change.EntityID,
			UserID:      change.UserID,
			Name:        stringField(fields, "name"),
			DateOfBirth: timeField(fields, "date_of_birth"),
			Contact:     stringField(fields, "contact"),
			Notes:       stringField(fields, "notes"),
			IsActive:    true,
			CreatedAt:   change.Timestamp,
			UpdatedAt:   change.Timestamp,
		}
		return s.patients.Create(ctx, patient)
	case models.OperationUpdate:
		return s.patients.UpdateFields(ctx, change.UserID, change.EntityID, fields)
	case models.OperationDelete:
		return s.patients.SoftDelete(ctx, change.UserID, change.EntityID)
	}
	return fmt.Errorf("%w: unknown operation %q", models.ErrInvalidChange, change.Operation)
}

func (s *syncService) applySessionChange(ctx context.Context, change *models.ChangeRecord, fields models.FieldMap) error {
	switch change.Operation {
	case models.OperationCreate:
		session := &models.Session{
			SessionID:       change.EntityID,
			PatientID:       stringField(fields, "patient_id"),
			UserID:          change.UserID,
			ScheduledAt:     timeField(fields, "scheduled_at"),
			DurationMinutes: intField(fields, "duration_minutes"),
			Status:          stringField(fields, "status"),
			Notes:           stringField(fields, "notes"),
			IsActive:        true,
			CreatedAt:       change.Timestamp,
			UpdatedAt:       change.Timestamp,
		}
		return s.sessions.Create(ctx, session)
	case models.OperationUpdate:
		return s.sessions.UpdateFields(ctx, change.UserID, change.EntityID, fields)
	case models.OperationDelete:
		return s.sessions.SoftDelete(ctx, change.UserID, change.EntityID)
	}
	return fmt.Errorf("%w: unknown operation %q", models.ErrInvalidChange, change.Operation)
}

func (s *syncService) applyFileChange(ctx context.Context, change *models.ChangeRecord, fields models.FieldMap) error {
	switch change.Operation {
	case models.OperationCreate:
		file := &models.FileRecord{
			FileID:      change.EntityID,
			UserID:      change.UserID,
			Name:        stringField(fields, "name"),
			MimeType:    stringField(fields, "mime_type"),
			SizeBytes:   int64Field(fields, "size_bytes"),
			StoragePath: stringField(fields, "storage_path"),
			IsActive:    true,
			CreatedAt:   change.Timestamp,
			UpdatedAt:   change.Timestamp,
		}
		return s.files.Create(ctx, file)
	case models.OperationUpdate:
		return s.files.UpdateFields(ctx, change.UserID, change.EntityID, fields)
	case models.OperationDelete:
		return s.files.SoftDelete(ctx, change.UserID, change.EntityID)
	}
	return fmt.Errorf("%w: unknown operation %q", models.ErrInvalidChange, change.Operation)
}

// recordChange writes the audit record with its final status. Audit failures
// are logged but never override the change's outcome.
func (s *syncService) recordChange(ctx context.Context, change *models.ChangeRecord, status models.SyncStatus, lastError string) {
	log := logger.FromContext(ctx)

	change.SyncStatus = status
	change.LastError = lastError

	if err := s.changeRecords.Save(ctx, change); err != nil {
		log.Err(err).
			Str("func", "syncService.recordChange").
			Str("change_id", change.ChangeID).
			Str("entity_id", change.EntityID).
			Msg("failed to write audit record")
	}
}
