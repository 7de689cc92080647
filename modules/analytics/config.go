// Package analytics provides a Segment analytics module for the modular framework.
package analytics

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/go-playground/validator/v10"
)

// InitializationMode decides when the analytics SDK is loaded.
type InitializationMode string

const (
	// InitializationModeAutomatic loads the SDK as soon as the service is built.
	InitializationModeAutomatic InitializationMode = "automatic"
	// InitializationModeManual waits for an explicit Initialize call, for
	// example once the user has given consent.
	InitializationModeManual InitializationMode = "manual"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config defines the configuration for the analytics module.
//
// Example YAML configuration:
//
//	analytics:
//	  writeKey: "YOUR_WRITE_KEY"
//	  cdnURL: "https://analytics.example.com"
//	  initializationMode: manual
//	  debug: true
//	  timeout: 500
//	  integrations:
//	    Amplitude: false
//
// Example environment variables:
//
//	WRITE_KEY=abc123
//	INITIALIZATION_MODE=manual
type Config struct {
	// WriteKey identifies the source. Required.
	WriteKey string `yaml:"writeKey" json:"writeKey" env:"WRITE_KEY" required:"true" validate:"required" desc:"Source write key"`

	// CDNURL overrides the settings CDN, typically to proxy through your own
	// domain.
	// Default: "https://cdn.segment.com"
	CDNURL string `yaml:"cdnURL" json:"cdnURL" env:"CDN_URL" default:"https://cdn.segment.com" validate:"omitempty,url" desc:"Settings CDN base URL"`

	// APIHost overrides the collection API host. When empty the host from the
	// project settings is used.
	APIHost string `yaml:"apiHost" json:"apiHost" env:"API_HOST" desc:"Collection API host"`

	// InitializationMode is either "automatic" or "manual".
	// Default: automatic
	InitializationMode InitializationMode `yaml:"initializationMode" json:"initializationMode" env:"INITIALIZATION_MODE" default:"automatic" desc:"automatic or manual"`

	// Debug turns on verbose SDK logging once loaded.
	Debug bool `yaml:"debug" json:"debug" env:"DEBUG" desc:"Enable SDK debug logging"`

	// Timeout is the callback timeout in milliseconds. Nil keeps the SDK
	// default of 300ms.
	Timeout *int `yaml:"timeout" json:"timeout" env:"TIMEOUT" desc:"Callback timeout in milliseconds"`

	// Disable turns every analytics call into a no-op with no network access.
	Disable bool `yaml:"disable" json:"disable" env:"DISABLE" desc:"Disable event sending"`

	// Obfuscate is passed through to the SDK.
	Obfuscate bool `yaml:"obfuscate" json:"obfuscate" env:"OBFUSCATE" desc:"Obfuscate destination script paths"`

	// Integrations enables, disables or configures destinations for every call.
	Integrations map[string]any `yaml:"integrations" json:"integrations" desc:"Per-destination settings"`

	// DisableAutoISOConversion keeps ISO-8601 strings as strings.
	DisableAutoISOConversion bool `yaml:"disableAutoISOConversion" json:"disableAutoISOConversion" env:"DISABLE_AUTO_ISO_CONVERSION" desc:"Keep ISO date strings as strings"`

	// FlushAt is the number of queued events that triggers a batch upload.
	// Default: 20
	FlushAt int `yaml:"flushAt" json:"flushAt" env:"FLUSH_AT" default:"20" desc:"Batch size"`

	// FlushInterval is the maximum time events stay queued.
	// Default: 10s
	FlushInterval time.Duration `yaml:"flushInterval" json:"flushInterval" env:"FLUSH_INTERVAL" default:"10s" desc:"Batch flush interval"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.InitializationMode == "" {
		c.InitializationMode = InitializationModeAutomatic
	}
	if c.CDNURL == "" {
		c.CDNURL = sdk.DefaultCDNURL
	}

	switch c.InitializationMode {
	case InitializationModeAutomatic, InitializationModeManual:
	default:
		return fmt.Errorf("%w: %w: %q", modular.ErrConfigValidationFailed, ErrInvalidInitializationMode, c.InitializationMode)
	}
	if c.Timeout != nil && *c.Timeout < 0 {
		return fmt.Errorf("%w: %w", modular.ErrConfigValidationFailed, ErrNegativeTimeout)
	}
	if c.FlushAt < 0 {
		return fmt.Errorf("%w: %w", modular.ErrConfigValidationFailed, ErrNegativeFlushAt)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", modular.ErrConfigValidationFailed, err)
	}
	return nil
}

// Settings returns the SDK settings derived from the configuration.
func (c *Config) Settings() sdk.Settings {
	return sdk.Settings{
		WriteKey: c.WriteKey,
		CDNURL:   c.CDNURL,
		APIHost:  c.APIHost,
	}
}

// InitOptions returns the SDK init options derived from the configuration.
func (c *Config) InitOptions() sdk.InitOptions {
	return sdk.InitOptions{
		Disable:                  c.Disable,
		Obfuscate:                c.Obfuscate,
		Integrations:             c.Integrations,
		DisableAutoISOConversion: c.DisableAutoISOConversion,
		FlushAt:                  c.FlushAt,
		FlushInterval:            c.FlushInterval,
	}
}

// CallbackTimeout returns the configured timeout and whether one was set.
func (c *Config) CallbackTimeout() (time.Duration, bool) {
	if c.Timeout == nil {
		return 0, false
	}
	return time.Duration(*c.Timeout) * time.Millisecond, true
}

// Mode returns the initialization mode, defaulting to automatic.
func (c *Config) Mode() InitializationMode {
	if c.InitializationMode == "" {
		return InitializationModeAutomatic
	}
	return c.InitializationMode
}
