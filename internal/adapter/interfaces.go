// Package adapter provides transport-layer access to the clinsync server for
// device-side tooling.
//
// The primary abstraction is [ServerGateway], which decouples callers from the
// underlying protocol. The package ships an HTTP/REST implementation
// ([NewHTTPServerGateway]) built on resty.
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can use [errors.Is] for transport-agnostic error
// handling (e.g. [ErrConflict] for 409, [ErrUnauthorized] for 401).
package adapter

import (
	"context"
	"time"

	"github.com/therappio/clinsync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/server_gateway_mock.go -package=mock

// ServerGateway defines transport-agnostic communication with the clinsync
// server. Implementations are responsible for serialisation, authentication
// header management, and mapping transport-level errors to the sentinel values
// defined in this package.
type ServerGateway interface {
	// SetToken stores the bearer token that will be attached to all subsequent
	// authenticated requests.
	SetToken(token string)

	// Token returns the bearer token currently stored in the gateway, or an
	// empty string if no token has been set yet.
	Token() string

	// Ping checks server availability and returns the reported server version.
	Ping(ctx context.Context) (string, error)

	// Push uploads a batch of local change records and returns the server's
	// per-change outcome, including any conflicts that were detected.
	Push(ctx context.Context, req models.PushRequest) (*models.PushResponse, error)

	// Pull downloads changes recorded on the server after since, excluding
	// changes originating from deviceID. entityTypes narrows the result to the
	// given record kinds; an empty slice means all of them.
	Pull(ctx context.Context, deviceID string, since time.Time, entityTypes []models.EntityType) (*models.PullResponse, error)

	// Resolve submits a resolution for an open sync conflict and returns the
	// resolved conflict record.
	Resolve(ctx context.Context, req models.ResolveRequest) (*models.SyncConflict, error)

	// MigrationStatus fetches the caller's migration eligibility and queue
	// state. appVersion is reported to the server for rollout gating.
	MigrationStatus(ctx context.Context, appVersion string) (*models.MigrationStatusResponse, error)

	// RequestMigration asks the server to enqueue the caller for migration.
	// The returned response says whether the request was accepted and why not
	// otherwise.
	RequestMigration(ctx context.Context, req models.MigrationRequest, appVersion string) (*models.MigrationRequestResponse, error)
}
