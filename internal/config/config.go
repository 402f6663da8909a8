// Package config loads the host configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (SERVICEHOST_*, e.g. SERVICEHOST_LOGGING_LEVEL=DEBUG)
//  2. Configuration file (YAML)
//  3. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goletan/servicehost/shared/types"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "SERVICEHOST"
	appDirName     = "servicehost"
	configFileName = "servicehost.yaml"
)

// Config is the host configuration.
type Config struct {
	Logging   types.LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry types.TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   types.MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	API       types.APIConfig       `mapstructure:"api" yaml:"api"`

	// DataDir holds the seeded server config, the database, PID and log files.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`

	Prefs    types.PrefsConfig    `mapstructure:"prefs" yaml:"prefs"`
	Seed     types.SeedConfig     `mapstructure:"seed" yaml:"seed"`
	Database types.DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Services are bound in order and released in reverse order.
	Services []types.Descriptor `mapstructure:"services" yaml:"services" validate:"required,min=1,unique=Name,dive"`

	// ShutdownTimeout bounds stopping and terminating all services on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// Service returns the descriptor with the given name.
func (c *Config) Service(name string) (types.Descriptor, bool) {
	for _, d := range c.Services {
		if d.Name == name {
			return d, true
		}
	}
	return types.Descriptor{}, false
}

// Load reads configPath (or the default location when empty), overlays
// the environment and fills in defaults. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for an explicitly named file, which must exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field references.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if _, ok := cfg.Service(cfg.Database.Service); !ok {
		return fmt.Errorf("database.service %q is not a configured service", cfg.Database.Service)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys need a default to be picked up from the environment.
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("data_dir", "")
	v.SetDefault("prefs.path", "")
	v.SetDefault("prefs.in_memory", false)
	v.SetDefault("seed.template", "")
	v.SetDefault("seed.target", "")
	v.SetDefault("database.path", "")
	v.SetDefault("database.service", "")
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName(strings.TrimSuffix(configFileName, filepath.Ext(configFileName)))
	v.SetConfigType("yaml")
}

// ConfigDir returns $XDG_CONFIG_HOME/servicehost, falling back to
// ~/.config/servicehost and then the working directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", appDirName)
}

// DefaultConfigPath returns the file Load reads when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), configFileName)
}
