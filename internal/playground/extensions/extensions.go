// Package extensions contains the playground's demo middleware and plugins.
// Each factory looks its collaborators up in the application's service
// registry.
package extensions

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// ErrNoApplication is returned by factories built without an application.
var ErrNoApplication = errors.New("extension factory needs an application")

func lookup[T any](app modular.Application, name string) (T, error) {
	var svc T
	if app == nil {
		return svc, ErrNoApplication
	}
	if err := app.GetService(name, &svc); err != nil {
		return svc, fmt.Errorf("failed to get service %s: %w", name, err)
	}
	return svc, nil
}

// plugin carries the fields every demo plugin shares.
type plugin struct {
	name    string
	kind    sdk.PluginType
	version string
}

func (p plugin) Name() string                               { return p.name }
func (p plugin) Type() sdk.PluginType                       { return p.kind }
func (p plugin) Version() string                            { return p.version }
func (p plugin) IsLoaded() bool                             { return true }
func (p plugin) Load(context.Context, *sdk.Analytics) error { return nil }
