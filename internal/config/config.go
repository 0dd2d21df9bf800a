// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, also writes logs to a size-rotated file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the record store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseDSN is the postgres connection string, required for the postgres driver.
	DatabaseDSN string `koanf:"database_dsn"`

	// DatabaseMaxOpenConns bounds the postgres connection pool.
	DatabaseMaxOpenConns int `koanf:"database_max_open_conns"`

	// MigrationsEnabled applies the embedded schema migrations on start.
	MigrationsEnabled bool `koanf:"migrations_enabled"`

	// CatalogPath points to the surgery catalog YAML. Empty uses the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// IdempotencySize caps the number of remembered Idempotency-Keys.
	IdempotencySize int `koanf:"idempotency_size"`

	// ScaleHistoryLimit is the default length of the summary-scale history. 0 returns every entry.
	ScaleHistoryLimit int `koanf:"scale_history_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		StoreDriver:          "memory",
		DatabaseMaxOpenConns: 10,
		MigrationsEnabled:    true,
		IdempotencySize:      10_000,
	}
}

// Validate reports the first unusable setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.StoreDriver != "memory" && c.StoreDriver != "postgres":
		return fmt.Errorf("%w: store_driver must be memory or postgres, got %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "postgres" && c.DatabaseDSN == "":
		return fmt.Errorf("%w: database_dsn is required for the postgres driver", ErrInvalidConfig)
	case c.DatabaseMaxOpenConns < 1:
		return fmt.Errorf("%w: database_max_open_conns must be positive", ErrInvalidConfig)
	case c.IdempotencySize < 1:
		return fmt.Errorf("%w: idempotency_size must be positive", ErrInvalidConfig)
	case c.ScaleHistoryLimit < 0:
		return fmt.Errorf("%w: scale_history_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
