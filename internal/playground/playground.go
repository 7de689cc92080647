// Package playground wires the analytics module, the demo extensions and the
// playground HTTP server into a modular application.
package playground

import (
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/internal/playground/extensions"
	"github.com/GoCodeAlone/modular-segment/internal/playground/feed"
	"github.com/GoCodeAlone/modular-segment/internal/playground/hasher"
	"github.com/GoCodeAlone/modular-segment/internal/playground/server"
	"github.com/GoCodeAlone/modular-segment/internal/playground/store"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// FeedLimit caps the number of events kept by the live feed.
const FeedLimit = 100

// Services returns the helper services the demo extensions and the server
// look up, keyed by service name.
func Services() map[string]any {
	return map[string]any{
		hasher.ServiceName: hasher.New(),
		feed.ServiceName:   feed.New(FeedLimit),
		store.ServiceName:  store.New(),
	}
}

// Options tune the modules built by Register.
type Options struct {
	SDK    []sdk.Option
	Server []server.ModuleOption
}

// Modules returns the analytics module carrying the demo extensions, and
// the playground server module.
func Modules(opts Options) []modular.Module {
	return []modular.Module{
		analytics.NewModule(
			analytics.WithSourceMiddlewares(extensions.PIIHasher),
			analytics.WithPlugins(extensions.CurrencyInjector, extensions.LiveFeedInterceptor),
			analytics.WithSDKOptions(opts.SDK...),
		),
		server.NewModule(opts.Server...),
	}
}

// Register adds the helper services and the playground modules to app. It
// must run before app.Init so the extension factories can find their
// services. A service name that is already taken is an error; the
// extensions look services up by their exact name.
func Register(app modular.Application, opts Options) (*server.Module, error) {
	services := Services()
	for name := range services {
		if _, exists := app.SvcRegistry()[name]; exists {
			return nil, fmt.Errorf("%w: %s", modular.ErrServiceAlreadyRegistered, name)
		}
	}
	for name, svc := range services {
		if err := app.RegisterService(name, svc); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	var srv *server.Module
	for _, m := range Modules(opts) {
		if s, ok := m.(*server.Module); ok {
			srv = s
		}
		app.RegisterModule(m)
	}
	return srv, nil
}
