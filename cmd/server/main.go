package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/therappio/clinsync/internal/config"
	handlerhttp "github.com/therappio/clinsync/internal/handler/http"
	"github.com/therappio/clinsync/internal/logger"
	"github.com/therappio/clinsync/internal/ratelimit"
	"github.com/therappio/clinsync/internal/server"
	"github.com/therappio/clinsync/internal/service"
	"github.com/therappio/clinsync/internal/store"
	"github.com/therappio/clinsync/internal/workers"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("clinsync-server")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	ctx := context.Background()

	db, err := store.NewConnectPostgres(ctx, cfg.Storage.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to database")
	}
	if err = db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("error applying database migrations")
	}

	local, err := store.NewLocalSQLite(cfg.Storage.LocalDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error opening local database")
	}

	storages := store.NewStorages(db, log)
	services := service.NewServices(storages, local, cfg, log)

	handler := handlerhttp.NewHandler(services, newLimiter(cfg), cfg.App, cfg.Migration, log)
	background := workers.NewWorkers(services, cfg.Workers, log)

	srv, err := server.NewServer(handler, background, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	srv.RunServer()
}

// newLimiter selects the migration-endpoint rate limiter: Redis-backed when an
// address is configured, otherwise an in-process token bucket.
func newLimiter(cfg *config.StructuredConfig) ratelimit.Limiter {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedisLimiter(client, cfg.RateLimit.Capacity, cfg.RateLimit.RefillInterval)
	}

	return ratelimit.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillInterval)
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
