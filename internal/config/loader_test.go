package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/surgilog/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.IdempotencySize, convey.ShouldEqual, 10_000)
				convey.So(cfg.ScaleHistoryLimit, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SURGILOG_ADDR", ":8080")
			_ = os.Setenv("SURGILOG_LOG_LEVEL", "debug")
			_ = os.Setenv("SURGILOG_STORE_DRIVER", "postgres")
			_ = os.Setenv("SURGILOG_DATABASE_DSN", "postgres://db/surgilog")
			_ = os.Setenv("SURGILOG_DATABASE_MAX_OPEN_CONNS", "25")
			_ = os.Setenv("SURGILOG_MIGRATIONS_ENABLED", "false")
			_ = os.Setenv("SURGILOG_IDEMPOTENCY_SIZE", "500")
			_ = os.Setenv("SURGILOG_SCALE_HISTORY_LIMIT", "8")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "postgres")
				convey.So(cfg.DatabaseDSN, convey.ShouldEqual, "postgres://db/surgilog")
				convey.So(cfg.DatabaseMaxOpenConns, convey.ShouldEqual, 25)
				convey.So(cfg.MigrationsEnabled, convey.ShouldBeFalse)
				convey.So(cfg.IdempotencySize, convey.ShouldEqual, 500)
				convey.So(cfg.ScaleHistoryLimit, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := createTempConfigFile(`
addr: ":7070"
log_format: json
catalog_path: /etc/surgilog/catalog.yaml
idempotency_size: 42
`)
			defer func() { _ = os.Remove(path) }()
			_ = os.Setenv(config.EnvConfig, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load values from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.CatalogPath, convey.ShouldEqual, "/etc/surgilog/catalog.yaml")
				convey.So(cfg.IdempotencySize, convey.ShouldEqual, 42)
			})

			convey.Convey("Then it should merge with defaults for missing fields", func() {
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
				convey.So(cfg.ScaleHistoryLimit, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When env vars and a YAML file both set a value", func() {
			path := createTempConfigFile("addr: \":7070\"\n")
			defer func() { _ = os.Remove(path) }()
			_ = os.Setenv(config.EnvConfig, path)
			_ = os.Setenv("SURGILOG_ADDR", ":6060")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := createTempConfigFile("addr: [unterminated\n")
			defer func() { _ = os.Remove(path) }()
			_ = os.Setenv(config.EnvConfig, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv(config.EnvConfig, "/nonexistent/surgilog.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SURGILOG_IDEMPOTENCY_SIZE", "lots")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the postgres driver is selected without a dsn", func() {
			_ = os.Setenv("SURGILOG_STORE_DRIVER", "postgres")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a YAML file empties the addr", func() {
			path := createTempConfigFile(`
# listen address left blank on purpose
addr: ""
`)
			defer func() { _ = os.Remove(path) }()
			_ = os.Setenv(config.EnvConfig, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SURGILOG_CONFIG",
		"SURGILOG_ADDR",
		"SURGILOG_LOG_LEVEL",
		"SURGILOG_LOG_FORMAT",
		"SURGILOG_LOG_FILE",
		"SURGILOG_STORE_DRIVER",
		"SURGILOG_DATABASE_DSN",
		"SURGILOG_DATABASE_MAX_OPEN_CONNS",
		"SURGILOG_MIGRATIONS_ENABLED",
		"SURGILOG_CATALOG_PATH",
		"SURGILOG_IDEMPOTENCY_SIZE",
		"SURGILOG_SCALE_HISTORY_LIMIT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "surgilog-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
