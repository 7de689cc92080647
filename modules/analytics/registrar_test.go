package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFactory = errors.New("factory exploded")

func trailMiddleware(mark string) SourceMiddlewareFactory {
	return func(FactoryContext) (sdk.SourceMiddleware, error) {
		return func(p sdk.SourceMiddlewareParams) {
			if p.Payload.Obj.Properties == nil {
				p.Payload.Obj.Properties = sdk.Properties{}
			}
			trail, _ := p.Payload.Obj.Properties["trail"].(string)
			p.Payload.Obj.Properties["trail"] = trail + mark
			p.Next(p.Payload)
		}, nil
	}
}

// capturePlugin records the properties of every track call it sees.
type capturePlugin struct {
	mu    sync.Mutex
	props []sdk.Properties
}

func (c *capturePlugin) factory(name string) PluginFactory {
	return func(FactoryContext) (sdk.Plugin, error) {
		return &sdk.BasicPlugin{
			PluginName:    name,
			PluginType:    sdk.PluginTypeAfter,
			PluginVersion: "1.0.0",
			TrackFunc: func(ctx *sdk.Context) (*sdk.Context, error) {
				c.mu.Lock()
				c.props = append(c.props, ctx.Event.Properties)
				c.mu.Unlock()
				return ctx, nil
			},
		}, nil
	}
}

func (c *capturePlugin) seen() []sdk.Properties {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sdk.Properties(nil), c.props...)
}

func brokenPlugin(name string) PluginFactory {
	return func(FactoryContext) (sdk.Plugin, error) {
		return &sdk.BasicPlugin{
			PluginName:    name,
			PluginType:    sdk.PluginTypeEnrichment,
			PluginVersion: "0.1.0",
			LoadFunc: func(context.Context, *sdk.Analytics) error {
				return errors.New("script blocked")
			},
		}, nil
	}
}

func TestRegistrarKeepsOrderAndIsolatesFailures(t *testing.T) {
	srv := newSegmentServer(t)
	capture := &capturePlugin{}
	ext := Extensions{
		SourceMiddlewares: []SourceMiddlewareFactory{
			trailMiddleware("a"),
			func(FactoryContext) (sdk.SourceMiddleware, error) { return nil, errFactory },
			trailMiddleware("b"),
		},
		Plugins: []PluginFactory{
			brokenPlugin("Broken Enricher"),
			capture.factory("Capture"),
		},
	}
	client, _, logger := newTestClient(t, testConfig(srv, InitializationModeManual), WithExtensions(ext))

	failures := logger.find("ERROR", "Source middleware registration failed")
	require.Len(t, failures, 1)
	assert.Equal(t, "source[1]", failures[0].value("name"))
	assert.ErrorIs(t, failures[0].value("error").(error), ErrFactoryFailed)

	initialize(client)
	require.Eventually(t, client.Initialized, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		registered, failed := client.Registrations()
		return registered == 3 && failed == 2
	}, 2*time.Second, 10*time.Millisecond)

	pluginFailures := logger.find("ERROR", "Could not register plugin")
	require.Len(t, pluginFailures, 1)
	assert.Equal(t, "Broken Enricher", pluginFailures[0].value("plugin"))

	_, err := client.SDK().Track(context.Background(), "Order Completed", nil, nil, nil).Await(context.Background())
	require.NoError(t, err)

	seen := capture.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "ab", seen[0]["trail"])
}

func TestRegistrarDestinationMiddlewareScopedToIntegration(t *testing.T) {
	srv := newSegmentServer(t)
	capture := &capturePlugin{}
	tag := func(FactoryContext) (sdk.DestinationMiddleware, error) {
		return func(p sdk.DestinationMiddlewareParams) {
			props := sdk.Properties{}
			for k, v := range p.Payload.Obj.Properties {
				props[k] = v
			}
			props["integration"] = p.Integration
			p.Payload.Obj.Properties = props
			p.Next(p.Payload)
		}, nil
	}
	ext := Extensions{
		DestinationMiddlewares: []DestinationMiddlewareGroup{
			{IntegrationName: sdk.SegmentIntegration, Middlewares: []DestinationMiddlewareFactory{tag}},
		},
		Plugins: []PluginFactory{capture.factory("Capture")},
	}
	client, _, _ := newTestClient(t, testConfig(srv, InitializationModeManual), WithExtensions(ext))

	initialize(client)
	require.Eventually(t, client.Initialized, 2*time.Second, 10*time.Millisecond)

	_, err := client.SDK().Track(context.Background(), "Viewed", sdk.Properties{"plan": "pro"}, nil, nil).Await(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(srv.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sdk.SegmentIntegration, srv.received()[0].Properties["integration"])

	seen := capture.seen()
	require.Len(t, seen, 1)
	assert.NotContains(t, seen[0], "integration")
}

func TestRegistrarRejectsInvalidEntries(t *testing.T) {
	srv := newSegmentServer(t)
	ext := Extensions{
		SourceMiddlewares: []SourceMiddlewareFactory{nil},
		DestinationMiddlewares: []DestinationMiddlewareGroup{
			{IntegrationName: "", Middlewares: nil},
			{IntegrationName: "Amplitude", Middlewares: []DestinationMiddlewareFactory{
				func(FactoryContext) (sdk.DestinationMiddleware, error) { return nil, errFactory },
			}},
		},
		Plugins: []PluginFactory{
			func(FactoryContext) (sdk.Plugin, error) { panic("boom") },
			func(FactoryContext) (sdk.Plugin, error) { return nil, nil },
		},
	}
	client, _, logger := newTestClient(t, testConfig(srv, InitializationModeManual), WithExtensions(ext))

	_, failed := client.Registrations()
	assert.Equal(t, 5, failed)

	source := logger.find("ERROR", "Source middleware registration failed")
	require.Len(t, source, 1)
	assert.ErrorIs(t, source[0].value("error").(error), ErrNilFactory)

	dest := logger.find("ERROR", "Destination middleware registration failed")
	require.Len(t, dest, 2)
	assert.ErrorIs(t, dest[0].value("error").(error), ErrEmptyIntegration)
	assert.Equal(t, "Amplitude", dest[1].value("integration"))
	assert.ErrorIs(t, dest[1].value("error").(error), ErrFactoryFailed)

	plugins := logger.find("ERROR", "Could not register plugin")
	require.Len(t, plugins, 2)
	assert.ErrorIs(t, plugins[0].value("error").(error), ErrRegistrationPanic)
	assert.ErrorIs(t, plugins[1].value("error").(error), sdk.ErrNilPlugin)

	// Failed registrations never stop the client from loading.
	initialize(client)
	assert.Eventually(t, client.Initialized, 2*time.Second, 10*time.Millisecond)
}

func TestRegistrarPassesFactoryContext(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeManual)
	var got FactoryContext
	ext := Extensions{
		SourceMiddlewares: []SourceMiddlewareFactory{
			func(fc FactoryContext) (sdk.SourceMiddleware, error) {
				got = fc
				return func(p sdk.SourceMiddlewareParams) { p.Next(p.Payload) }, nil
			},
		},
	}
	_, _, logger := newTestClient(t, cfg, WithExtensions(ext))

	assert.Same(t, cfg, got.Config)
	assert.Same(t, logger, got.Logger)
	assert.Nil(t, got.App)
}

func TestExtensionsLen(t *testing.T) {
	ext := Extensions{
		SourceMiddlewares:      make([]SourceMiddlewareFactory, 2),
		DestinationMiddlewares: make([]DestinationMiddlewareGroup, 1),
		Plugins:                make([]PluginFactory, 3),
	}
	assert.Equal(t, 6, ext.Len())
}

func TestRegistrarSettlesPendingExtensionsOnClose(t *testing.T) {
	srv := newSegmentServer(t)
	capture := &capturePlugin{}
	ext := Extensions{
		SourceMiddlewares: []SourceMiddlewareFactory{trailMiddleware("a")},
		Plugins:           []PluginFactory{capture.factory("Capture")},
	}
	logger := &capturingLogger{}
	client := NewClient(newGatedSDK(logger), testConfig(srv, InitializationModeManual), logger, WithExtensions(ext))

	require.NoError(t, client.Close(context.Background()))

	require.Eventually(t, func() bool {
		return len(logger.find("DEBUG", "Analytics extension dropped, client closed")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	registered, failed := client.Registrations()
	assert.Zero(t, registered)
	assert.Zero(t, failed)
}
