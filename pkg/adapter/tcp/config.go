package tcp

import (
	"fmt"
	"net"
	"time"
)

// Config holds the listener parameters shared by the gateway and the nodes.
//
// All timeout values are optional: zero means no timeout, which is the
// default for Read, Write and Idle.
//
// Default values (applied by NewServer if zero):
//   - ShutdownTimeout: 30s
type Config struct {
	// Bind is the listen address; empty listens on every interface.
	Bind string `mapstructure:"bind"`

	// Port is the TCP port to listen on. 0 lets the OS pick one.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections.
	// When reached, new connections are rejected until existing ones close.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts"`

	// ShutdownTimeout is the maximum duration to wait for active sessions
	// during graceful shutdown. Remaining connections are then force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which the active connection
	// count is logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// TimeoutsConfig bounds per-connection I/O.
type TimeoutsConfig struct {
	// Read bounds reading one command and its payload.
	Read time.Duration `mapstructure:"read" validate:"min=0"`

	// Write bounds writing one reply and its payload.
	Write time.Duration `mapstructure:"write" validate:"min=0"`

	// Idle closes a connection that sends no command for this long.
	Idle time.Duration `mapstructure:"idle" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid timeouts %+v: must be >= 0", c.Timeouts)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// ArmIdle sets the deadline for waiting on the next command.
func (t TimeoutsConfig) ArmIdle(conn net.Conn) error {
	if t.Idle <= 0 {
		return conn.SetDeadline(time.Time{})
	}
	return conn.SetDeadline(time.Now().Add(t.Idle))
}

// ArmCommand replaces the idle deadline with the read and write bounds of
// one command.
func (t TimeoutsConfig) ArmCommand(conn net.Conn) error {
	var rd, wd time.Time
	now := time.Now()
	if t.Read > 0 {
		rd = now.Add(t.Read)
	}
	if t.Write > 0 {
		wd = now.Add(t.Write)
	}
	if err := conn.SetReadDeadline(rd); err != nil {
		return err
	}
	return conn.SetWriteDeadline(wd)
}
