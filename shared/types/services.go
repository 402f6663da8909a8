package types

import (
	"context"
	"time"
)

// Descriptor identifies a background process the host starts and binds to.
type Descriptor struct {
	Name         string            `mapstructure:"name" yaml:"name" validate:"required"`
	Command      string            `mapstructure:"command" yaml:"command,omitempty"`                   // Executable launched when the process is not running.
	Args         []string          `mapstructure:"args" yaml:"args,omitempty"`                         // Arguments passed to Command.
	Dir          string            `mapstructure:"dir" yaml:"dir,omitempty"`                           // Working directory (e.g. the data dir holding config.yaml).
	Env          []string          `mapstructure:"env" yaml:"env,omitempty"`                           // Extra KEY=VALUE pairs appended to the host environment.
	ControlAddr  string            `mapstructure:"control_addr" yaml:"control_addr" validate:"required"` // host:port or dns+srv:// reference.
	PIDFile      string            `mapstructure:"pid_file" yaml:"pid_file,omitempty"`
	LogFile      string            `mapstructure:"log_file" yaml:"log_file,omitempty"`
	ReadyTimeout time.Duration     `mapstructure:"ready_timeout" yaml:"ready_timeout,omitempty" validate:"gte=0"`
	StopTimeout  time.Duration     `mapstructure:"stop_timeout" yaml:"stop_timeout,omitempty" validate:"gte=0"`
	Tags         map[string]string `mapstructure:"tags" yaml:"tags,omitempty"`
}

// Connection is the opaque handle to a live binding.
type Connection interface {
	ID() string
	Close() error
}

// Notifier receives the outcome of a bind request. Calls may arrive on any
// goroutine and are the only source of truth for binding state.
type Notifier interface {
	// Connected reports that the bind request produced a live connection.
	Connected(conn Connection)
	// Failed reports that the bind request could not be completed.
	Failed(err error)
	// Disconnected reports that a live connection was lost without Unbind.
	Disconnected(err error)
}

// Binder issues bind, unbind and terminate requests against background processes.
type Binder interface {
	// Bind requests a connection to the process. A returned error means the
	// request could not be issued at all; otherwise exactly one of
	// Notifier.Connected or Notifier.Failed follows.
	Bind(ctx context.Context, desc Descriptor, n Notifier) error
	// Unbind releases a connection obtained from Bind.
	Unbind(ctx context.Context, conn Connection) error
	// Terminate asks the background process itself to exit.
	Terminate(ctx context.Context, desc Descriptor) error
}

// Endpoint is a resolved network location of a background process.
type Endpoint struct {
	Host     string // The IP or hostname.
	Port     int    // The port number.
	Priority uint16 // SRV priority, lower first.
	Weight   uint16
}
