package extensions

import (
	"github.com/GoCodeAlone/modular-segment/internal/playground/feed"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// LiveFeedInterceptorName is the plugin name.
const LiveFeedInterceptorName = "Live Feed Interceptor"

type liveFeedInterceptor struct {
	plugin
	feed *feed.Feed
}

// LiveFeedInterceptor builds an after plugin that copies track, identify and
// page events into the live feed.
func LiveFeedInterceptor(fc analytics.FactoryContext) (sdk.Plugin, error) {
	f, err := lookup[*feed.Feed](fc.App, feed.ServiceName)
	if err != nil {
		return nil, err
	}
	return &liveFeedInterceptor{
		plugin: plugin{name: LiveFeedInterceptorName, kind: sdk.PluginTypeAfter, version: "1.0.0"},
		feed:   f,
	}, nil
}

func (p *liveFeedInterceptor) log(c *sdk.Context) (*sdk.Context, error) {
	p.feed.Log(c.Event.Clone())
	return c, nil
}

func (p *liveFeedInterceptor) Track(c *sdk.Context) (*sdk.Context, error)    { return p.log(c) }
func (p *liveFeedInterceptor) Identify(c *sdk.Context) (*sdk.Context, error) { return p.log(c) }
func (p *liveFeedInterceptor) Page(c *sdk.Context) (*sdk.Context, error)     { return p.log(c) }
