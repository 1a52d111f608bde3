package workers

import (
	"github.com/therappio/clinsync/internal/config"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/service"
)

// Workers aggregates every background worker of the application.
type Workers struct {
	workers []Worker
}

// NewWorkers constructs the worker set: currently the rollout queue sweep.
func NewWorkers(services *service.Services, cfg config.Workers, log *logger.Logger) *Workers {
	return &Workers{
		workers: []Worker{
			NewSweepWorker(services.RolloutService, cfg.SweepInterval, log),
		},
	}
}

// Run starts every worker.
func (w *Workers) Run() {
	for _, worker := range w.workers {
		worker.Run()
	}
}

// Stop stops every worker and blocks until all of them have exited.
func (w *Workers) Stop() {
	for _, worker := range w.workers {
		worker.Stop()
	}
}
