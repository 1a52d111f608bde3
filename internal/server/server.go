package server

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/therappio/clinsync/internal/config"
	handlerhttp "github.com/therappio/clinsync/internal/handler/http"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/workers"
)

type server struct {
	httpServer *httpServer
	workers    *workers.Workers
	logger     *logger.Logger
}

// NewServer builds the transport server around the HTTP handler and the
// background workers that must stop with it.
func NewServer(handler *handlerhttp.Handler, background *workers.Workers, cfg config.Server, logger *logger.Logger) (Server, error) {
	logger.Info().Msg("creating new server...")

	if cfg.HTTPAddress == "" {
		return nil, errNoServersAreCreated
	}

	return &server{
		httpServer: newHTTPServer(handler.Init(), cfg, logger),
		workers:    background,
		logger:     logger,
	}, nil
}

// RunServer starts the workers and the HTTP server, blocks until a stop
// signal arrives, then shuts everything down gracefully.
func (s *server) RunServer() {
	idleConnectionsClosed := make(chan struct{})
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	// listen for stop signals
	go func() {
		<-ctx.Done()

		s.Shutdown()

		close(idleConnectionsClosed)
	}()

	if s.workers != nil {
		s.logger.Info().Msg("Launching background workers")
		s.workers.Run()
	}

	s.logger.Info().Msg("Launching HTTP server")
	go s.httpServer.RunServer()

	<-idleConnectionsClosed
	s.logger.Info().Msg("server Shutdown gracefully")
}

// Shutdown stops the HTTP server first so no new work arrives, then the
// workers.
func (s *server) Shutdown() {
	s.httpServer.Shutdown()

	if s.workers != nil {
		s.workers.Stop()
	}
}
