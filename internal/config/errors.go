package config

import "errors"

// Sentinel errors reported by config validation. The builder joins every
// violation into one error so operators see all problems at once.
var (
	// ErrNoDatabaseDSN is returned when no PostgreSQL DSN was provided by
	// any configuration source.
	ErrNoDatabaseDSN = errors.New("database DSN is not configured")

	// ErrNoTokenSignKey is returned when the JWT verification key is
	// missing; the service cannot authenticate any request without it.
	ErrNoTokenSignKey = errors.New("token sign key is not configured")

	// ErrInvalidRolloutPercentage is returned when the rollout percentage
	// falls outside the [0, 100] range.
	ErrInvalidRolloutPercentage = errors.New("rollout percentage must be between 0 and 100")
)
