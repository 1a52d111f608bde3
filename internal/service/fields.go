package service

import (
	"time"

	"github.com/therappio/clinsync/models"
)

// Field maps arrive from JSON, so values are string, float64 or bool. These
// helpers coerce them into the entity struct types; a missing or mistyped
// field yields the zero value rather than an error, matching how partial
// updates tolerate absent fields.

func stringField(fields models.FieldMap, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func timeField(fields models.FieldMap, key string) *time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return &v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

func intField(fields models.FieldMap, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func int64Field(fields models.FieldMap, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
