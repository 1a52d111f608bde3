package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Duration wraps time.Duration so JSON configs can use human-readable
// strings ("30s", "1h30m") as well as raw nanosecond numbers.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler for both string and numeric
// duration representations.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return errors.New("duration must be a string or a number")
	}
}

// StructuredJSONConfig mirrors StructuredConfig with JSON tags and
// string-friendly durations for the optional config file.
type StructuredJSONConfig struct {
	App struct {
		TokenSignKey string `json:"token_sign_key"`
		TokenIssuer  string `json:"token_issuer"`
		Version      string `json:"version"`
	} `json:"app,omitempty"`

	Server struct {
		HTTPAddress    string   `json:"http_address"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"server,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`
		LocalDBPath string `json:"local_db_path"`
	} `json:"storage,omitempty"`

	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis,omitempty"`

	Rollout struct {
		Enabled                 bool     `json:"enabled"`
		Percentage              int      `json:"percentage"`
		RequiredRole            string   `json:"required_role"`
		MinAppVersion           string   `json:"min_app_version"`
		MaxConcurrentMigrations int      `json:"max_concurrent_migrations"`
		Cooldown                Duration `json:"cooldown"`
		AutoRollbackOnFailure   bool     `json:"auto_rollback_on_failure"`
	} `json:"rollout,omitempty"`

	Migration struct {
		MaxRetries      int      `json:"max_retries"`
		RetryDelay      Duration `json:"retry_delay"`
		BackupLocalData bool     `json:"backup_local_data"`
	} `json:"migration,omitempty"`

	RateLimit struct {
		Capacity       int      `json:"capacity"`
		RefillInterval Duration `json:"refill_interval"`
	} `json:"rate_limit,omitempty"`

	Workers struct {
		SweepInterval Duration `json:"sweep_interval"`
	} `json:"workers,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			TokenSignKey: jsonCfg.App.TokenSignKey,
			TokenIssuer:  jsonCfg.App.TokenIssuer,
			Version:      jsonCfg.App.Version,
		},
		Server: Server{
			HTTPAddress:    jsonCfg.Server.HTTPAddress,
			RequestTimeout: time.Duration(jsonCfg.Server.RequestTimeout),
		},
		Storage: Storage{
			DB: DB{
				DSN: jsonCfg.Storage.DB.DSN,
			},
			LocalDBPath: jsonCfg.Storage.LocalDBPath,
		},
		Redis: Redis{
			Addr:     jsonCfg.Redis.Addr,
			Password: jsonCfg.Redis.Password,
			DB:       jsonCfg.Redis.DB,
		},
		Rollout: Rollout{
			Enabled:                 jsonCfg.Rollout.Enabled,
			Percentage:              jsonCfg.Rollout.Percentage,
			RequiredRole:            jsonCfg.Rollout.RequiredRole,
			MinAppVersion:           jsonCfg.Rollout.MinAppVersion,
			MaxConcurrentMigrations: jsonCfg.Rollout.MaxConcurrentMigrations,
			Cooldown:                time.Duration(jsonCfg.Rollout.Cooldown),
			AutoRollbackOnFailure:   jsonCfg.Rollout.AutoRollbackOnFailure,
		},
		Migration: Migration{
			MaxRetries:      jsonCfg.Migration.MaxRetries,
			RetryDelay:      time.Duration(jsonCfg.Migration.RetryDelay),
			BackupLocalData: jsonCfg.Migration.BackupLocalData,
		},
		RateLimit: RateLimit{
			Capacity:       jsonCfg.RateLimit.Capacity,
			RefillInterval: time.Duration(jsonCfg.RateLimit.RefillInterval),
		},
		Workers: Workers{
			SweepInterval: time.Duration(jsonCfg.Workers.SweepInterval),
		},
	}

	return cfg, nil
}
