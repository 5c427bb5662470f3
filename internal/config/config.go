// Package config defines process configuration for the LightTrace demo host.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers a YAML file and environment variables over those defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// BasePath is where the LightTrace UI and API are mounted.
	BasePath string `koanf:"base_path"`

	// EnableUI toggles the dashboard; the API stays available either way.
	EnableUI bool `koanf:"enable_ui"`

	// RefreshIntervalSeconds is the dashboard's auto-refresh period.
	RefreshIntervalSeconds int `koanf:"refresh_interval_seconds"`

	// MaxEntries bounds the trace store; the oldest entries are evicted first.
	MaxEntries int `koanf:"max_entries"`

	// QueueSize bounds the capture queue between recorders and the store.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of capture workers.
	WorkerCount int `koanf:"worker_count"`

	// Store selects the trace store: "memory" or "sqlite".
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is "sqlite".
	SQLitePath string `koanf:"sqlite_path"`
}

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// New creates a Config with defaults. Context is accepted first to follow
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		BasePath:               "/monitoring",
		EnableUI:               true,
		RefreshIntervalSeconds: 15,
		MaxEntries:             10_000,
		QueueSize:              4096,
		WorkerCount:            max(2, runtime.NumCPU()/2),
		Store:                  StoreMemory,
		SQLitePath:             "lighttrace.db",
	}
}
