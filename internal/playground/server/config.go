// Package server exposes the playground over HTTP.
package server

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
)

// Config defines the configuration for the playground HTTP server.
type Config struct {
	// Address is the listen address.
	Address string `yaml:"address" json:"address" env:"ADDRESS" default:":8080" desc:"Listen address"`

	// AwaitTimeout bounds how long a request waits for its analytics call to
	// settle before answering 202 Accepted.
	AwaitTimeout time.Duration `yaml:"await_timeout" json:"await_timeout" env:"AWAIT_TIMEOUT" default:"2s" desc:"Wait for analytics results"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"10s" desc:"Graceful shutdown timeout"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AwaitTimeout == 0 {
		c.AwaitTimeout = 2 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.AwaitTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", modular.ErrConfigValidationFailed)
	}
	return nil
}
