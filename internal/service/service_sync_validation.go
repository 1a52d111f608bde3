package service

import (
	"fmt"

	"github.com/therappio/clinsync/models"
)

// writableFields lists, per entity type, the fields a device may set through
// the sync protocol. Anything else (identity, ownership, audit timestamps,
// the soft-delete flag) is server-managed and silently dropped during
// sanitization.
var writableFields = map[models.EntityType]map[string]struct{}{
	models.EntityPatient: {
		"name":          {},
		"date_of_birth": {},
		"contact":       {},
		"notes":         {},
	},
	models.EntitySession: {
		"patient_id":       {},
		"scheduled_at":     {},
		"duration_minutes": {},
		"status":           {},
		"notes":            {},
	},
	models.EntityFile: {
		"name":         {},
		"mime_type":    {},
		"size_bytes":   {},
		"storage_path": {},
	},
}

// sanitizeChange validates the change structurally and strips every field
// the device may not write. Returns an error when, after stripping, a
// create or update carries no writable fields at all.
func sanitizeChange(change *models.ChangeRecord) error {
	if err := change.Validate(); err != nil {
		return err
	}

	if change.Operation == models.OperationDelete {
		return nil
	}

	allowed := writableFields[change.EntityType]

	sanitized := make(models.FieldMap, len(change.Changes))
	for field, value := range change.Changes {
		if _, ok := allowed[field]; ok {
			sanitized[field] = value
		}
	}

	if len(sanitized) == 0 {
		return fmt.Errorf("%w: no writable fields for %s", models.ErrInvalidChange, change.EntityType)
	}

	change.Changes = sanitized

	return nil
}

// disjointFields reports whether the two field maps touch no common field.
func disjointFields(a, b models.FieldMap) bool {
	for field := range a {
		if _, ok := b[field]; ok {
			return false
		}
	}
	return true
}
