package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied after all sources merge, before validation.
const (
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultRequestTimeout = 30 * time.Second

	defaultRolloutPercentage = 0
	defaultMaxConcurrent     = 3
	defaultCooldown          = 24 * time.Hour

	defaultMigrationMaxRetries = 3
	defaultMigrationRetryDelay = 2 * time.Second

	defaultRateLimitCapacity = 10
	defaultRateLimitRefill   = 6 * time.Second

	defaultSweepInterval = 15 * time.Second
)

func (c *StructuredConfig) applyDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = defaultHTTPAddress
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Rollout.MaxConcurrentMigrations <= 0 {
		c.Rollout.MaxConcurrentMigrations = defaultMaxConcurrent
	}
	if c.Rollout.Cooldown <= 0 {
		c.Rollout.Cooldown = defaultCooldown
	}
	if c.Migration.MaxRetries < 0 {
		c.Migration.MaxRetries = defaultMigrationMaxRetries
	}
	if c.Migration.RetryDelay <= 0 {
		c.Migration.RetryDelay = defaultMigrationRetryDelay
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = defaultRateLimitCapacity
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRateLimitRefill
	}
	if c.Workers.SweepInterval <= 0 {
		c.Workers.SweepInterval = defaultSweepInterval
	}
}

// validate checks the merged configuration for values the service cannot
// run with. It is called once from the builder after defaults are applied.
func (c *StructuredConfig) validate() error {
	var errs []error

	if c.Storage.DB.DSN == "" {
		errs = append(errs, ErrNoDatabaseDSN)
	}
	if c.App.TokenSignKey == "" {
		errs = append(errs, ErrNoTokenSignKey)
	}
	if c.Rollout.Percentage < 0 || c.Rollout.Percentage > 100 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidRolloutPercentage, c.Rollout.Percentage))
	}

	return errors.Join(errs...)
}
