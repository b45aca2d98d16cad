// Package config loads, validates, and watches GanttForge configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root of all GanttForge settings.
type Config struct {
	// App carries application identity and runtime mode.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log controls structured logging output.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Solver tunes the scheduling engine.
	Solver SolverConfig `mapstructure:"solver" validate:"required"`

	// Server configures the HTTP API.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Storage selects where solved schedules are persisted.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Render sets chart output defaults.
	Render RenderConfig `mapstructure:"render"`

	// Watch controls plan-file watching.
	Watch WatchConfig `mapstructure:"watch"`
}

// AppConfig identifies the application instance.
type AppConfig struct {
	// Name of the application, used in logs and metrics labels.
	Name string `mapstructure:"name" validate:"required"`

	// Version string reported by the version endpoint.
	Version string `mapstructure:"version"`

	// Environment the instance runs in.
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug turns on verbose diagnostics.
	Debug bool `mapstructure:"debug"`
}

// LogConfig shapes structured log output.
type LogConfig struct {
	// Level below which records are dropped.
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format of records: json or text.
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output destination: stdout, stderr, or a file path.
	Output string `mapstructure:"output"`
}

// SolverConfig tunes the scheduling engine.
type SolverConfig struct {
	// Restarts is the number of randomized restart attempts after the
	// deterministic baseline pass.
	Restarts int `mapstructure:"restarts" validate:"min=0"`

	// Seed is the base seed for randomized restarts. The same seed with
	// the same plan always yields the same schedule.
	Seed int64 `mapstructure:"seed"`

	// Parallelism is the number of workers running restarts concurrently.
	// Zero or one runs restarts sequentially.
	Parallelism int `mapstructure:"parallelism" validate:"min=0"`

	// AllowNegativeLag permits lead times (negative lag) on dependencies.
	AllowNegativeLag bool `mapstructure:"allow_negative_lag"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Host to bind.
	Host string `mapstructure:"host"`

	// Port to listen on.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP carries server timeout knobs.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS carries cross-origin settings.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig carries net/http server timeouts and limits.
type HTTPConfig struct {
	// ReadTimeout bounds reading a whole request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout bounds keep-alive waits between requests.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout bounds graceful drain on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout is the per-request deadline applied by middleware.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes caps request header size.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig carries cross-origin request settings.
type CORSConfig struct {
	// Enabled turns the CORS middleware on.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins that may call the API; "*" permits any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods permitted cross-origin.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders permitted cross-origin.
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// StorageConfig selects the schedule persistence backend.
type StorageConfig struct {
	// Type of backend: memory or badger.
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger settings, used when Type is badger.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig tunes the embedded BadgerDB store.
type BadgerConfig struct {
	// Path of the database directory.
	Path string `mapstructure:"path"`

	// SyncWrites flushes every write to disk before acking.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize caps each value log file, in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep retained per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns metric collection on.
	Enabled bool `mapstructure:"enabled"`

	// Path of the scrape endpoint.
	Path string `mapstructure:"path"`

	// Port the metrics server listens on.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// RenderConfig sets chart output defaults.
type RenderConfig struct {
	// Format of output: text or svg.
	Format string `mapstructure:"format" validate:"oneof=text svg"`

	// Width in cells (text) or pixels (svg).
	Width int `mapstructure:"width" validate:"min=0"`

	// Color enables ANSI color in terminal output.
	Color bool `mapstructure:"color"`
}

// WatchConfig controls plan-file watching.
type WatchConfig struct {
	// Enabled re-solves the plan whenever the plan file changes.
	Enabled bool `mapstructure:"enabled"`

	// Debounce is the quiet period after a file event before reloading.
	Debounce time.Duration `mapstructure:"debounce"`
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String renders a one-line summary safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Restarts: %d}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Solver.Restarts)
}
