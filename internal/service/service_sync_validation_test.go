package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therappio/clinsync/models"
)

func TestSanitizeChange(t *testing.T) {
	tests := []struct {
		name       string
		change     models.ChangeRecord
		wantErr    error
		wantFields models.FieldMap
	}{
		{
			name: "valid patient update passes through",
			change: models.ChangeRecord{
				EntityType: models.EntityPatient,
				EntityID:   "pat-1",
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"name": "Alice", "notes": "n"},
			},
			wantFields: models.FieldMap{"name": "Alice", "notes": "n"},
		},
		{
			name: "server-managed fields are stripped",
			change: models.ChangeRecord{
				EntityType: models.EntityPatient,
				EntityID:   "pat-1",
				Operation:  models.OperationUpdate,
				Changes: models.FieldMap{
					"name":      "Alice",
					"user_id":   int64(7),
					"is_active": false,
					"icd_code":  "F32.1",
				},
			},
			wantFields: models.FieldMap{"name": "Alice"},
		},
		{
			name: "delete needs no fields",
			change: models.ChangeRecord{
				EntityType: models.EntitySession,
				EntityID:   "ses-1",
				Operation:  models.OperationDelete,
			},
		},
		{
			name: "unknown entity type",
			change: models.ChangeRecord{
				EntityType: "appointment",
				EntityID:   "apt-1",
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"notes": "n"},
			},
			wantErr: models.ErrInvalidChange,
		},
		{
			name: "unknown operation",
			change: models.ChangeRecord{
				EntityType: models.EntityPatient,
				EntityID:   "pat-1",
				Operation:  "upsert",
				Changes:    models.FieldMap{"notes": "n"},
			},
			wantErr: models.ErrInvalidChange,
		},
		{
			name: "missing entity id",
			change: models.ChangeRecord{
				EntityType: models.EntityPatient,
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"notes": "n"},
			},
			wantErr: models.ErrInvalidChange,
		},
		{
			name: "update without fields",
			change: models.ChangeRecord{
				EntityType: models.EntityFile,
				EntityID:   "file-1",
				Operation:  models.OperationUpdate,
			},
			wantErr: models.ErrInvalidChange,
		},
		{
			name: "update with only disallowed fields",
			change: models.ChangeRecord{
				EntityType: models.EntityFile,
				EntityID:   "file-1",
				Operation:  models.OperationUpdate,
				Changes:    models.FieldMap{"user_id": int64(1), "created_at": "2026-01-01"},
			},
			wantErr: models.ErrInvalidChange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := tt.change
			err := sanitizeChange(&change)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFields, change.Changes)
		})
	}
}

func TestDisjointFields(t *testing.T) {
	assert.True(t, disjointFields(models.FieldMap{"a": 1}, models.FieldMap{"b": 2}))
	assert.True(t, disjointFields(nil, models.FieldMap{"b": 2}))
	assert.True(t, disjointFields(nil, nil))
	assert.False(t, disjointFields(models.FieldMap{"a": 1, "c": 3}, models.FieldMap{"b": 2, "c": 4}))
}
