package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known
// failure conditions. Callers should use [errors.Is] to match against them.
var (
	// ErrChangeRecordNotFound is returned when a change-record lookup by ID
	// produces no row.
	ErrChangeRecordNotFound = errors.New("change record was not found")

	// ErrConflictNotFound is returned when a conflict lookup by ID produces
	// no row.
	ErrConflictNotFound = errors.New("sync conflict was not found")

	// ErrConflictAlreadyOpen is returned when inserting a new unresolved
	// conflict for an entity that already has one; the partial unique index
	// on (user_id, entity_type, entity_id) enforces the invariant.
	ErrConflictAlreadyOpen = errors.New("unresolved conflict already exists for entity")

	// ErrConflictAlreadyResolved is returned when a resolution targets a
	// conflict whose resolution fields are already set.
	ErrConflictAlreadyResolved = errors.New("sync conflict is already resolved")

	// ErrEntityNotFound is returned when an entity-store operation targets
	// a row that does not exist for the given user.
	ErrEntityNotFound = errors.New("entity was not found")

	// ErrEntityAlreadyExists is returned when a create collides with an
	// existing row for the same (user_id, entity_id).
	ErrEntityAlreadyExists = errors.New("entity already exists")

	// ErrMigrationAlreadyQueued is returned when a user with a live
	// (pending or processing) queue item requests another migration.
	ErrMigrationAlreadyQueued = errors.New("migration is already queued for user")

	// ErrNoBackupFound is returned by rollback when the user has no
	// migration backup to restore from.
	ErrNoBackupFound = errors.New("no migration backup found for user")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain
// logic can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a parameterised SQL
	// query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a query against the
	// database fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the database driver cannot
	// start a new transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open
	// transaction fails. The transaction is considered rolled back.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrScanningRow is returned when scanning column values from a single
	// result row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrScanningRows is returned when scanning fails during multi-row
	// iteration, typically mid-result-set.
	ErrScanningRows = errors.New("failed to scan rows")

	// ErrEncodingPayload is returned when a jsonb payload cannot be
	// marshalled or unmarshalled.
	ErrEncodingPayload = errors.New("failed to encode jsonb payload")
)
