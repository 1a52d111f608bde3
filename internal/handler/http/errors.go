package http

import "errors"

// Sentinel errors used by the authentication middleware when parsing the
// "Authorization" HTTP header. Callers can match against them with [errors.Is].
var (
	// ErrEmptyAuthorizationHeader is returned by the auth middleware when the
	// incoming request does not include an "Authorization" header at all.
	ErrEmptyAuthorizationHeader = errors.New("empty `Authorization` header")

	// ErrInvalidToken is returned when the bearer token fails signature,
	// issuer or expiry validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAdminRequired is returned by the privileged-route middleware when
	// the caller's role claim is not admin.
	ErrAdminRequired = errors.New("admin role required")

	// ErrMissingSince is returned by the pull handler when the mandatory
	// "since" query parameter is absent.
	ErrMissingSince = errors.New("missing required `since` query parameter")
)
