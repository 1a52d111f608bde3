package http

import (
	"github.com/therappio/clinsync/internal/config"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/ratelimit"
	"github.com/therappio/clinsync/internal/service"
)

// Handler owns the HTTP routes and the middleware state they share.
type Handler struct {
	services     *service.Services
	limiter      ratelimit.Limiter
	appCfg       config.App
	migrationCfg config.Migration

	logger *logger.Logger
}

// NewHandler constructs the HTTP handler. The limiter guards the
// migration-facing routes; appCfg supplies the token verification
// parameters; migrationCfg supplies the retry policy for privileged
// migration runs.
func NewHandler(services *service.Services, limiter ratelimit.Limiter, appCfg config.App, migrationCfg config.Migration, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		services:     services,
		limiter:      limiter,
		appCfg:       appCfg,
		migrationCfg: migrationCfg,
		logger:       logger,
	}
}
