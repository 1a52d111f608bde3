package service

import "errors"

var (
	// ErrValidationNoDeviceID is returned when a push or resolve request
	// does not identify the originating device.
	ErrValidationNoDeviceID = errors.New("no device ID provided")

	// ErrValidationNoUserID is returned when an operation is attempted
	// without an authenticated user.
	ErrValidationNoUserID = errors.New("no user ID provided")

	// ErrInvalidStrategy is returned when a resolve request names an
	// unknown resolution strategy.
	ErrInvalidStrategy = errors.New("invalid resolution strategy")

	// ErrResolvedValueRequired is returned when the manual strategy is
	// requested without the resolved field values.
	ErrResolvedValueRequired = errors.New("manual resolution requires a resolved value")

	// ErrRolloutDisabled is returned by the migration surface when the
	// rollout feature flag is off.
	ErrRolloutDisabled = errors.New("migration rollout is disabled")

	// ErrNotEligible is returned when a privileged migration action targets
	// a user the rollout gates reject.
	ErrNotEligible = errors.New("user is not eligible for migration")
)
