package models

import "time"

// Patient is the authoritative current state of one patient record.
//
// Deletion is always soft (IsActive=false): a physically removed row would
// orphan the change-record history that pull responses resolve current state
// against.
type Patient struct {
	PatientID   string     `json:"patient_id"`
	UserID      int64      `json:"user_id"`
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// LastSessionAt tracks the most recent session created under this
	// patient. Maintained by the session store in the same transaction as
	// the session write.
	LastSessionAt *time.Time `json:"last_session_at,omitempty"`
}

// Session is one therapy session. Sessions are first-class rows referencing
// their owning patient; session writes bump the parent patient's UpdatedAt
// (and LastSessionAt on create) atomically.
type Session struct {
	SessionID       string     `json:"session_id"`
	PatientID       string     `json:"patient_id"`
	UserID          int64      `json:"user_id"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Status          string     `json:"status,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FileRecord describes one stored clinical document. The payload itself
// lives in external storage; only the descriptor syncs.
type FileRecord struct {
	FileID      string    `json:"file_id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
