// Package config provides process configuration loading for sessionrotor.
//
// Process configuration covers how the service runs (listen address, log
// output, timeouts, collaborator endpoints). It is distinct from the
// operator-edited settings document managed by the settings package, which
// holds schedule and per-target credentials.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The defaults work out of the box.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. Environment variables (SESSIONROTOR_ prefix, e.g. SESSIONROTOR_SERVER_LISTEN_ADDR)
//  2. Config file specified by SESSIONROTOR_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/sessionrotor/config.yaml
//     - macOS: ~/Library/Application Support/sessionrotor/config.yaml
//     - Windows: %APPDATA%\sessionrotor\config.yaml
//  4. ./config.yaml
//  5. [DefaultConfig] defaults
package config

import "time"

// Config represents the root configuration structure.
type Config struct {
	// Server configures the HTTP control surface.
	Server ServerConfig `mapstructure:"server"`

	// Settings locates the operator settings document.
	Settings SettingsConfig `mapstructure:"settings"`

	// Log configures the process logger.
	Log LogConfig `mapstructure:"log"`

	// Engine configures workflow execution.
	Engine EngineConfig `mapstructure:"engine"`

	// Scheduler configures the background loop.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Pruner configures session pruning.
	Pruner PrunerConfig `mapstructure:"pruner"`

	// Docker configures container restarts.
	Docker DockerConfig `mapstructure:"docker"`

	// Automation configures the HTTP automation session.
	Automation AutomationConfig `mapstructure:"automation"`

	// IPDetect configures external and VPN address detection.
	IPDetect IPDetectConfig `mapstructure:"ip_detect"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	// ListenAddr is the address the server binds to.
	// Default: ":5000"
	ListenAddr string `mapstructure:"listen_addr"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SettingsConfig locates the settings document.
type SettingsConfig struct {
	// Path is the settings.json location. Its directory is created on first save.
	// Default: "/app/data/settings.json"
	Path string `mapstructure:"path"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is a logrus level name: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `mapstructure:"level"`

	// Format is "text" or "json".
	// Default: "text"
	Format string `mapstructure:"format"`
}

// EngineConfig configures workflow execution.
type EngineConfig struct {
	// StepTimeout bounds every step that does not set its own timeout.
	// Default: 2m
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// SchedulerConfig configures the background loop.
type SchedulerConfig struct {
	// PollInterval is how often the loop checks whether a run is due.
	// Default: 30s
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PrunerConfig configures session pruning.
type PrunerConfig struct {
	// SettleDelay is waited after each verified removal before re-listing.
	// Default: 2s
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// DockerConfig configures container restarts.
type DockerConfig struct {
	// StopTimeout is the grace period before Docker kills the container.
	// Default: 10s
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// RestartTimeout bounds the whole restart step, including the wait for
	// the container to report running and healthy.
	// Default: 5m
	RestartTimeout time.Duration `mapstructure:"restart_timeout"`
}

// AutomationConfig configures the HTTP automation session.
type AutomationConfig struct {
	// RequestTimeout bounds each request made by the session.
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IPDetectConfig configures address detection.
type IPDetectConfig struct {
	// ExternalURL returns the caller's address as plain text.
	// Default: "https://api.ipify.org"
	ExternalURL string `mapstructure:"external_url"`

	// FallbackURL returns IP info JSON with an "ip" field.
	// Default: "https://ipinfo.io/json"
	FallbackURL string `mapstructure:"fallback_url"`

	// Timeout bounds each lookup.
	// Default: 5s
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":5000",
			ShutdownTimeout: 10 * time.Second,
		},
		Settings: SettingsConfig{
			Path: "/app/data/settings.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			StepTimeout: 2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Pruner: PrunerConfig{
			SettleDelay: 2 * time.Second,
		},
		Docker: DockerConfig{
			StopTimeout:    10 * time.Second,
			RestartTimeout: 5 * time.Minute,
		},
		Automation: AutomationConfig{
			RequestTimeout: 30 * time.Second,
		},
		IPDetect: IPDetectConfig{
			ExternalURL: "https://api.ipify.org",
			FallbackURL: "https://ipinfo.io/json",
			Timeout:     5 * time.Second,
		},
	}
}
