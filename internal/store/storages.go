package store

import "github.com/therappio/clinsync/internal/logger"

// Storages aggregates every repository the service layer depends on.
type Storages struct {
	ChangeRecords ChangeRecordRepository
	Conflicts     ConflictRepository
	Patients      PatientRepository
	Sessions      SessionRepository
	Files         FileRepository
	Migrations    MigrationRepository
}

// NewStorages wires every PostgreSQL-backed repository onto the shared
// database connection.
func NewStorages(db *DB, log *logger.Logger) *Storages {
	return &Storages{
		ChangeRecords: NewChangeRecordRepository(db, log),
		Conflicts:     NewConflictRepository(db, log),
		Patients:      NewPatientRepository(db, log),
		Sessions:      NewSessionRepository(db, log),
		Files:         NewFileRepository(db, log),
		Migrations:    NewMigrationRepository(db, log),
	}
}
