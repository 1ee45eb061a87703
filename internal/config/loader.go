package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName        = "sessionrotor"
	configFileName = "config.yaml"
	envPrefix      = "SESSIONROTOR"
	envConfigPath  = "SESSIONROTOR_CONFIG_PATH"
	dotEnvFile     = ".env"
)

// Loader handles Viper-based configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults and environment bindings applied.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// setDefaults registers every key so that environment overrides are seen by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("settings.path", d.Settings.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("engine.step_timeout", d.Engine.StepTimeout)
	v.SetDefault("scheduler.poll_interval", d.Scheduler.PollInterval)
	v.SetDefault("pruner.settle_delay", d.Pruner.SettleDelay)
	v.SetDefault("docker.stop_timeout", d.Docker.StopTimeout)
	v.SetDefault("docker.restart_timeout", d.Docker.RestartTimeout)
	v.SetDefault("automation.request_timeout", d.Automation.RequestTimeout)
	v.SetDefault("ip_detect.external_url", d.IPDetect.ExternalURL)
	v.SetDefault("ip_detect.fallback_url", d.IPDetect.FallbackURL)
	v.SetDefault("ip_detect.timeout", d.IPDetect.Timeout)
}

// Load resolves the configuration following the package priority order.
//
// A missing config file is not an error; defaults and environment variables
// still apply. Variables from a .env file in the working directory are
// exported first, without overriding ones already set.
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			return nil, fmt.Errorf("error reading %s: %w", dotEnvFile, err)
		}
	}

	if path := os.Getenv(envConfigPath); path != "" {
		return l.LoadFromFile(path)
	}

	if path, err := DefaultConfigPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return l.LoadFromFile(path)
		}
	}

	if _, err := os.Stat(configFileName); err == nil {
		return l.LoadFromFile(configFileName)
	}

	return l.unmarshal()
}

// LoadFromFile reads configuration from path. The format follows the file extension.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if c.Settings.Path == "" {
		errs = append(errs, errors.New("settings.path is required"))
	}
	if c.Engine.StepTimeout <= 0 {
		errs = append(errs, errors.New("engine.step_timeout must be positive"))
	}
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("scheduler.poll_interval must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MustLoad loads configuration and panics on error. Intended for main.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ConfigDir returns the platform-standard configuration directory for sessionrotor.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigPath returns the path of the config file in [ConfigDir].
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// EnsureConfigDir creates [ConfigDir] if it does not exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
