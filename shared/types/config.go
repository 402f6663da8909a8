package types

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"` // stdout, stderr or a file path
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig toggles the /metrics endpoint on the control API.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

// PrefsConfig configures the persisted flag store.
type PrefsConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory"`
}

// SeedConfig names the bundled template and where it is copied on first run.
type SeedConfig struct {
	Template string `mapstructure:"template" yaml:"template" validate:"required"`
	Target   string `mapstructure:"target" yaml:"target" validate:"required"`
}

// DatabaseConfig locates the server database used by import and export.
type DatabaseConfig struct {
	Path    string `mapstructure:"path" yaml:"path" validate:"required"`
	Service string `mapstructure:"service" yaml:"service" validate:"required"` // service that owns the database file
}
