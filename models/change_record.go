package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EntityType identifies which authoritative collection a change targets.
type EntityType string

// Entity types that participate in synchronization.
const (
	EntityPatient EntityType = "patient"
	EntitySession EntityType = "session"
	EntityFile    EntityType = "file"
)

// KnownEntityTypes lists every EntityType accepted by the sync protocol.
// Any other value is rejected during validation.
var KnownEntityTypes = []EntityType{EntityPatient, EntitySession, EntityFile}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range KnownEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Operation is the kind of mutation a ChangeRecord describes.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is one of create, update or delete.
func (op Operation) Valid() bool {
	return op == OperationCreate || op == OperationUpdate || op == OperationDelete
}

// SyncStatus is the processing outcome recorded on a ChangeRecord.
//
// Allowed transitions: pending → synced, pending → failed. A record never
// moves back from synced to pending, and records are never deleted — failed
// records remain for audit.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// FieldMap is a field-level delta or snapshot keyed by field name.
// It is stored as jsonb and implements driver.Valuer / sql.Scanner so
// repositories can bind it directly.
type FieldMap map[string]any

// Value implements driver.Valuer. A nil map is stored as SQL NULL.
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for jsonb columns.
func (m *FieldMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into FieldMap", src)
	}
}

// Clone returns a shallow copy of the map. A nil receiver yields nil.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ChangeRecord is one immutable audit row describing a single attempted
// mutation of an entity. It is created by the sync protocol on push and by
// the data migrator during bulk transfer.
//
// Once written, only SyncStatus, RetryCount and LastError may change, and
// only along the transitions documented on [SyncStatus].
type ChangeRecord struct {
	ChangeID   string     `json:"change_id"`
	UserID     int64      `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Operation  Operation  `json:"operation"`

	// Changes is the field-level delta carried by the mutation.
	Changes FieldMap `json:"changes"`

	// PreviousValues and NewValues are optional full snapshots of the entity
	// before and after the mutation; clients may omit them.
	PreviousValues FieldMap `json:"previous_values,omitempty"`
	NewValues      FieldMap `json:"new_values,omitempty"`

	Timestamp  time.Time  `json:"timestamp"`
	SyncStatus SyncStatus `json:"sync_status"`
	RetryCount int        `json:"retry_count"`
	LastError  string     `json:"last_error,omitempty"`
}

// ErrInvalidChange is returned by [ChangeRecord.Validate] when a record is
// structurally unusable (unknown entity type, unknown operation, or missing
// entity identity).
var ErrInvalidChange = errors.New("invalid change record")

// Validate checks the structural fields every change must carry before any
// entity-specific sanitization happens.
func (c *ChangeRecord) Validate() error {
	if !c.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidChange, c.EntityType)
	}
	if !c.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidChange, c.Operation)
	}
	if c.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidChange)
	}
	if c.Operation != OperationDelete && len(c.Changes) == 0 {
		return fmt.Errorf("%w: %s carries no changed fields", ErrInvalidChange, c.Operation)
	}
	return nil
}
