package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goletan/servicehost/internal/assets"
	"github.com/goletan/servicehost/shared/types"
)

const (
	DefaultAPIListen       = "127.0.0.1:7070"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultReadyTimeout    = 30 * time.Second
	DefaultStopTimeout     = 10 * time.Second

	DefaultServiceName = "mapleserver"
	defaultControlAddr = "127.0.0.1:8484"
	defaultDatabase    = "maple.db"
)

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.API.Listen == "" {
		cfg.API.Listen = DefaultAPIListen
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DataDir()
	}
	if cfg.Prefs.Path == "" {
		cfg.Prefs.Path = filepath.Join(cfg.DataDir, "prefs")
	}
	if cfg.Seed.Template == "" {
		cfg.Seed.Template = assets.ConfigTemplate
	}
	if cfg.Seed.Target == "" {
		cfg.Seed.Target = filepath.Join(cfg.DataDir, assets.ConfigTemplate)
	}

	if len(cfg.Services) == 0 {
		cfg.Services = []types.Descriptor{{
			Name:        DefaultServiceName,
			Command:     DefaultServiceName,
			ControlAddr: defaultControlAddr,
		}}
	}
	for i := range cfg.Services {
		applyServiceDefaults(&cfg.Services[i], cfg.DataDir)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, defaultDatabase)
	}
	if cfg.Database.Service == "" {
		cfg.Database.Service = cfg.Services[0].Name
	}
}

func applyLoggingDefaults(cfg *types.LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *types.TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyServiceDefaults(d *types.Descriptor, dataDir string) {
	if d.Dir == "" {
		d.Dir = dataDir
	}
	if d.PIDFile == "" {
		d.PIDFile = filepath.Join(dataDir, d.Name+".pid")
	}
	if d.LogFile == "" {
		d.LogFile = filepath.Join(dataDir, d.Name+".log")
	}
	if d.ReadyTimeout == 0 {
		d.ReadyTimeout = DefaultReadyTimeout
	}
	if d.StopTimeout == 0 {
		d.StopTimeout = DefaultStopTimeout
	}
}

// DataDir returns $XDG_DATA_HOME/servicehost, falling back to
// ~/.local/share/servicehost.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Metrics: types.MetricsConfig{Enabled: true},
		API:     types.APIConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
