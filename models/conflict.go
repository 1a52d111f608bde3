package models

import "time"

// ConflictType classifies how two changes to the same entity collided.
type ConflictType string

const (
	// ConflictConcurrentUpdate: both sides updated the entity independently.
	ConflictConcurrentUpdate ConflictType = "concurrent_update"

	// ConflictUpdateAfterDelete: the device updated an entity another device
	// had already deleted.
	ConflictUpdateAfterDelete ConflictType = "update_after_delete"

	// ConflictDeleteAfterUpdate: the device deleted an entity another device
	// had updated in the meantime.
	ConflictDeleteAfterUpdate ConflictType = "delete_after_update"

	// ConflictDuplicateCreate: two devices created the same logical entity.
	ConflictDuplicateCreate ConflictType = "duplicate_create"
)

// ResolutionStrategy is the client- or server-chosen way out of a conflict.
type ResolutionStrategy string

const (
	ResolutionUseLocal  ResolutionStrategy = "use_local"
	ResolutionUseServer ResolutionStrategy = "use_server"
	ResolutionMerge     ResolutionStrategy = "merge"
	ResolutionManual    ResolutionStrategy = "manual"
)

// Valid reports whether s is one of the four supported strategies.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case ResolutionUseLocal, ResolutionUseServer, ResolutionMerge, ResolutionManual:
		return true
	}
	return false
}

// ResolvedByAuto marks conflicts the detector resolved without a human
// (deterministic disjoint-field merge).
const ResolvedByAuto = "auto"

// ConflictResolution carries the fields written onto a SyncConflict when it
// is resolved, either automatically by the detector or explicitly through
// the resolution endpoint.
type ConflictResolution struct {
	Strategy      ResolutionStrategy
	ResolvedValue FieldMap
	ResolvedBy    string
	Notes         string
}

// SyncConflict is one detected collision between a device's local change and
// a newer server-side change to the same entity.
//
// At most one unresolved conflict may exist per (user, entity type, entity)
// at a time; the store enforces this with a partial unique index. Conflicts
// are never deleted — resolution only mutates the resolution fields.
type SyncConflict struct {
	ConflictID   string       `json:"conflict_id"`
	UserID       int64        `json:"user_id"`
	EntityType   EntityType   `json:"entity_type"`
	EntityID     string       `json:"entity_id"`
	ConflictType ConflictType `json:"conflict_type"`

	// LocalChange is the device's rejected change; ServerChange is the
	// newer server-side change it collided with.
	LocalChange  ChangeRecord `json:"local_change"`
	ServerChange ChangeRecord `json:"server_change"`

	ResolutionStrategy ResolutionStrategy `json:"resolution_strategy,omitempty"`
	ResolvedValue      FieldMap           `json:"resolved_value,omitempty"`
	IsResolved         bool               `json:"is_resolved"`
	ResolvedBy         string             `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	ResolutionNotes    string             `json:"resolution_notes,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
