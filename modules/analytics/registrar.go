package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// FactoryContext is handed to every extension factory. Factories look up the
// services they need through App instead of reaching for globals.
type FactoryContext struct {
	App    modular.Application
	Config *Config
	Logger modular.Logger
}

// SourceMiddlewareFactory builds a source middleware.
type SourceMiddlewareFactory func(fc FactoryContext) (sdk.SourceMiddleware, error)

// DestinationMiddlewareFactory builds a destination middleware.
type DestinationMiddlewareFactory func(fc FactoryContext) (sdk.DestinationMiddleware, error)

// PluginFactory builds a plugin.
type PluginFactory func(fc FactoryContext) (sdk.Plugin, error)

// DestinationMiddlewareGroup binds middlewares to one integration.
type DestinationMiddlewareGroup struct {
	IntegrationName string
	Middlewares     []DestinationMiddlewareFactory
}

// Extensions lists what the Client registers at construction.
type Extensions struct {
	SourceMiddlewares      []SourceMiddlewareFactory
	DestinationMiddlewares []DestinationMiddlewareGroup
	Plugins                []PluginFactory
}

// Len returns the number of registrations the extensions produce.
func (e Extensions) Len() int {
	return len(e.SourceMiddlewares) + len(e.DestinationMiddlewares) + len(e.Plugins)
}

const (
	kindSourceMiddleware      = "source_middleware"
	kindDestinationMiddleware = "destination_middleware"
	kindPlugin                = "plugin"
)

// registerExtensions registers source middlewares, then destination
// middleware groups, then plugins. Every entry succeeds or fails on its own.
func (c *Client) registerExtensions(fc FactoryContext) {
	for i, factory := range c.extensions.SourceMiddlewares {
		name := fmt.Sprintf("source[%d]", i)
		var result *sdk.Future[*sdk.Analytics]
		err := guard(func() error {
			if factory == nil {
				return ErrNilFactory
			}
			mw, err := factory(fc)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFactoryFailed, err)
			}
			result = c.sdk.AddSourceMiddleware(mw)
			return nil
		})
		c.watchRegistration(kindSourceMiddleware, name, result, err, "Source middleware registration failed")
	}

	for _, group := range c.extensions.DestinationMiddlewares {
		var result *sdk.Future[*sdk.Analytics]
		err := guard(func() error {
			if group.IntegrationName == "" {
				return ErrEmptyIntegration
			}
			mws := make([]sdk.DestinationMiddleware, 0, len(group.Middlewares))
			for _, factory := range group.Middlewares {
				if factory == nil {
					return ErrNilFactory
				}
				mw, err := factory(fc)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrFactoryFailed, err)
				}
				mws = append(mws, mw)
			}
			result = c.sdk.AddDestinationMiddleware(group.IntegrationName, mws...)
			return nil
		})
		c.watchRegistration(kindDestinationMiddleware, group.IntegrationName, result, err, "Destination middleware registration failed")
	}

	for i, factory := range c.extensions.Plugins {
		name := fmt.Sprintf("plugin[%d]", i)
		var result *sdk.Future[*sdk.Analytics]
		err := guard(func() error {
			if factory == nil {
				return ErrNilFactory
			}
			p, err := factory(fc)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFactoryFailed, err)
			}
			if p == nil {
				return fmt.Errorf("%w: %w", ErrFactoryFailed, sdk.ErrNilPlugin)
			}
			name = p.Name()
			result = c.sdk.Register(context.Background(), p)
			return nil
		})
		c.watchRegistration(kindPlugin, name, result, err, "Could not register plugin")
	}
}

// guard runs fn and turns a panic into ErrRegistrationPanic.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRegistrationPanic, r)
		}
	}()
	return fn()
}

// watchRegistration reports a synchronous failure straight away and waits
// for the SDK's verdict otherwise. The SDK settles registrations made before
// load only once it has loaded.
func (c *Client) watchRegistration(kind, name string, result *sdk.Future[*sdk.Analytics], err error, failure string) {
	if err != nil || result == nil {
		if err == nil {
			err = fmt.Errorf("%w: no result", ErrRegistrationPanic)
		}
		c.registrationFailed(kind, name, err, failure)
		return
	}

	go func() {
		if _, err := result.Await(context.Background()); err != nil {
			if errors.Is(err, sdk.ErrBrowserClosed) {
				c.logger.Debug("Analytics extension dropped, client closed", "kind", kind, "name", name)
				return
			}
			c.registrationFailed(kind, name, err, failure)
			return
		}
		c.registered.Add(1)
		c.logger.Debug("Registered analytics extension", "kind", kind, "name", name)
		c.notify(context.Background(), EventTypeExtensionRegistered, map[string]any{"kind": kind, "name": name})
	}()
}

func (c *Client) registrationFailed(kind, name string, err error, failure string) {
	c.failed.Add(1)
	key := "name"
	switch kind {
	case kindPlugin:
		key = "plugin"
	case kindDestinationMiddleware:
		key = "integration"
	}
	c.logger.Error(failure, key, name, "error", err)
	c.notify(context.Background(), EventTypeExtensionFailed, map[string]any{"kind": kind, "name": name, "error": err.Error()})
}

// Registrations returns how many extensions have been registered and how many
// failed so far.
func (c *Client) Registrations() (registered, failed int) {
	return int(c.registered.Load()), int(c.failed.Load())
}
