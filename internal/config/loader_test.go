package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/lighttrace/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.BasePath, convey.ShouldEqual, "/monitoring")
				convey.So(cfg.EnableUI, convey.ShouldBeTrue)
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 15)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LIGHTTRACE_ADDR", ":8080")
			_ = os.Setenv("LIGHTTRACE_BASE_PATH", "/diag")
			_ = os.Setenv("LIGHTTRACE_ENABLE_UI", "false")
			_ = os.Setenv("LIGHTTRACE_REFRESH_INTERVAL_SECONDS", "30")
			_ = os.Setenv("LIGHTTRACE_MAX_ENTRIES", "500")
			_ = os.Setenv("LIGHTTRACE_QUEUE_SIZE", "64")
			_ = os.Setenv("LIGHTTRACE_WORKER_COUNT", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BasePath, convey.ShouldEqual, "/diag")
				convey.So(cfg.EnableUI, convey.ShouldBeFalse)
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 30)
				convey.So(cfg.MaxEntries, convey.ShouldEqual, 500)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
base_path: "/trace-ui"
refresh_interval_seconds: 5
max_entries: 2000
log_level: debug
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LIGHTTRACE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.BasePath, convey.ShouldEqual, "/trace-ui")
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 5)
				convey.So(cfg.MaxEntries, convey.ShouldEqual, 2000)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.EnableUI, convey.ShouldBeTrue) // From defaults
				convey.So(cfg.QueueSize, convey.ShouldEqual, 4096)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
base_path: "/trace-ui"
worker_count: 4
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LIGHTTRACE_CONFIG", tmpFile)
			_ = os.Setenv("LIGHTTRACE_ADDR", ":8080")
			_ = os.Setenv("LIGHTTRACE_WORKER_COUNT", "8")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")         // Overridden by env
				convey.So(cfg.BasePath, convey.ShouldEqual, "/trace-ui") // From file
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)        // Overridden by env
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LIGHTTRACE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LIGHTTRACE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("LIGHTTRACE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When selecting the sqlite store through env", func() {
			_ = os.Setenv("LIGHTTRACE_STORE", "sqlite")
			_ = os.Setenv("LIGHTTRACE_SQLITE_PATH", "/tmp/traces.db")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the store settings are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/traces.db")
			})
		})

		convey.Convey("When loading config with a root base path", func() {
			_ = os.Setenv("LIGHTTRACE_BASE_PATH", "/")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"LIGHTTRACE_CONFIG",
		"LIGHTTRACE_LOG_LEVEL",
		"LIGHTTRACE_ADDR",
		"LIGHTTRACE_BASE_PATH",
		"LIGHTTRACE_ENABLE_UI",
		"LIGHTTRACE_REFRESH_INTERVAL_SECONDS",
		"LIGHTTRACE_MAX_ENTRIES",
		"LIGHTTRACE_QUEUE_SIZE",
		"LIGHTTRACE_WORKER_COUNT",
		"LIGHTTRACE_STORE",
		"LIGHTTRACE_SQLITE_PATH",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "lighttrace-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
