package sdk

import (
	"context"
	"fmt"
	"sync/atomic"
)

// PluginType decides where in the pipeline a plugin runs.
type PluginType string

// Plugin types in pipeline order. Utility plugins are loaded but never see
// events.
const (
	PluginTypeBefore      PluginType = "before"
	PluginTypeEnrichment  PluginType = "enrichment"
	PluginTypeDestination PluginType = "destination"
	PluginTypeAfter       PluginType = "after"
	PluginTypeUtility     PluginType = "utility"
)

// Plugin is a named, versioned extension. Event hooks are optional and
// discovered through the Tracker, Identifier, Pager, Grouper and Aliaser
// interfaces.
type Plugin interface {
	Name() string
	Type() PluginType
	Version() string
	IsLoaded() bool
	Load(ctx context.Context, a *Analytics) error
}

// Tracker handles track events.
type Tracker interface {
	Track(c *Context) (*Context, error)
}

// Identifier handles identify events.
type Identifier interface {
	Identify(c *Context) (*Context, error)
}

// Pager handles page events.
type Pager interface {
	Page(c *Context) (*Context, error)
}

// Grouper handles group events.
type Grouper interface {
	Group(c *Context) (*Context, error)
}

// Aliaser handles alias events.
type Aliaser interface {
	Alias(c *Context) (*Context, error)
}

// HookFunc is a single event hook.
type HookFunc func(c *Context) (*Context, error)

// BasicPlugin builds a Plugin from plain functions. Nil hooks pass the
// context through untouched.
type BasicPlugin struct {
	PluginName    string
	PluginType    PluginType
	PluginVersion string

	LoadFunc     func(ctx context.Context, a *Analytics) error
	TrackFunc    HookFunc
	IdentifyFunc HookFunc
	PageFunc     HookFunc
	GroupFunc    HookFunc
	AliasFunc    HookFunc

	loaded atomic.Bool
}

func (p *BasicPlugin) Name() string     { return p.PluginName }
func (p *BasicPlugin) Type() PluginType { return p.PluginType }
func (p *BasicPlugin) Version() string  { return p.PluginVersion }
func (p *BasicPlugin) IsLoaded() bool   { return p.loaded.Load() }

func (p *BasicPlugin) Load(ctx context.Context, a *Analytics) error {
	if p.LoadFunc != nil {
		if err := p.LoadFunc(ctx, a); err != nil {
			return err
		}
	}
	p.loaded.Store(true)
	return nil
}

func (p *BasicPlugin) Track(c *Context) (*Context, error)    { return callHook(p.TrackFunc, c) }
func (p *BasicPlugin) Identify(c *Context) (*Context, error) { return callHook(p.IdentifyFunc, c) }
func (p *BasicPlugin) Page(c *Context) (*Context, error)     { return callHook(p.PageFunc, c) }
func (p *BasicPlugin) Group(c *Context) (*Context, error)    { return callHook(p.GroupFunc, c) }
func (p *BasicPlugin) Alias(c *Context) (*Context, error)    { return callHook(p.AliasFunc, c) }

func callHook(fn HookFunc, c *Context) (*Context, error) {
	if fn == nil {
		return c, nil
	}
	return fn(c)
}

// runHook invokes the hook matching the event type, converting a panic into
// an error so one plugin cannot take down the dispatch.
func runHook(p Plugin, c *Context) (out *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = c, fmt.Errorf("%w: %s: %v", ErrPluginPanic, p.Name(), r)
		}
	}()

	var res *Context
	switch c.Event.Type {
	case EventTypeTrack:
		if h, ok := p.(Tracker); ok {
			res, err = h.Track(c)
		}
	case EventTypeIdentify:
		if h, ok := p.(Identifier); ok {
			res, err = h.Identify(c)
		}
	case EventTypePage:
		if h, ok := p.(Pager); ok {
			res, err = h.Page(c)
		}
	case EventTypeGroup:
		if h, ok := p.(Grouper); ok {
			res, err = h.Group(c)
		}
	case EventTypeAlias:
		if h, ok := p.(Aliaser); ok {
			res, err = h.Alias(c)
		}
	}
	if res == nil {
		res = c
	}
	return res, err
}

// loadPlugin loads p and recovers a panicking Load.
func loadPlugin(ctx context.Context, p Plugin, a *Analytics) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPluginPanic, p.Name(), r)
		}
	}()
	if err := p.Load(ctx, a); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPluginLoad, p.Name(), err)
	}
	return nil
}
