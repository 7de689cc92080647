// Package sdk is a server-side analytics SDK speaking the Segment
// collection protocol.
//
// A Browser accepts calls before it is loaded and buffers them; Load fetches
// the project settings, installs the batch delivery destination, loads every
// plugin registered so far and then replays the buffered calls in the order
// they were made. Every call returns a Future that settles once the call has
// actually been dispatched.
//
// Events flow through source middlewares, then before, enrichment,
// destination and after plugins. Destination plugins additionally run the
// destination middlewares registered under their integration name.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Version is reported in the library context of every event.
const Version = "1.0.0"

const tracerName = "github.com/GoCodeAlone/modular-segment/sdk"

// maxConcurrentPluginLoads bounds plugin loading during Load.
const maxConcurrentPluginLoads = 4

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the logger used by the SDK and its HTTP transport.
func WithLogger(logger Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHTTPClient sets the base HTTP client for settings and delivery.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Browser) {
		b.httpClient = client
	}
}

// WithTracerProvider sets the provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Browser) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}

type pendingPlugin struct {
	plugin Plugin
	result *Future[*Analytics]
}

// queuedCall is a call buffered until Load. Exactly one of run or reject is
// invoked.
type queuedCall struct {
	run    func(a *Analytics)
	reject func(err error)
}

// Browser is the entry point of the SDK. It is safe for concurrent use.
type Browser struct {
	logger     Logger
	httpClient *http.Client
	tracer     trace.Tracer
	loads      singleflight.Group

	mu        sync.Mutex
	instance  *Analytics
	replaying bool
	closed    bool
	queue     []queuedCall
	plugins   []pendingPlugin
	ready     chan struct{}
}

// NewBrowser creates an unloaded Browser.
func NewBrowser(opts ...Option) *Browser {
	b := &Browser{
		logger: nopLogger{},
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Instance returns the loaded Analytics, or nil before Load succeeds.
func (b *Browser) Instance() *Analytics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.instance
}

// Loaded is closed once Load has succeeded.
func (b *Browser) Loaded() <-chan struct{} {
	return b.ready
}

// Load initialises the SDK. Concurrent callers share one load; once loaded,
// further calls return the existing instance.
func (b *Browser) Load(ctx context.Context, settings Settings, options InitOptions) (*Analytics, error) {
	b.mu.Lock()
	if b.instance != nil {
		a := b.instance
		b.mu.Unlock()
		return a, nil
	}
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	b.mu.Unlock()

	v, err, _ := b.loads.Do("load", func() (any, error) {
		return b.load(ctx, settings, options)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Analytics), nil
}

func (b *Browser) load(ctx context.Context, settings Settings, options InitOptions) (*Analytics, error) {
	b.mu.Lock()
	if b.instance != nil {
		a := b.instance
		b.mu.Unlock()
		return a, nil
	}
	b.mu.Unlock()

	if settings.WriteKey == "" {
		return nil, ErrMissingWriteKey
	}

	client := newHTTPClient(b.httpClient, b.logger, settings.WriteKey)

	cdn := settings.CDNSettings
	if cdn == nil && !options.Disable {
		fetched, err := FetchSettings(ctx, client, settings.CDNURL, settings.WriteKey)
		if err != nil {
			return nil, err
		}
		cdn = fetched
	}
	if cdn == nil {
		cdn = &CDNSettings{}
	}

	a := newAnalytics(settings, options, cdn, b.logger, b.tracer)
	if !options.Disable {
		apiHost := settings.APIHost
		if apiHost == "" {
			apiHost = cdn.APIHost()
		}
		a.delivery = newBatchDestination(settings.WriteKey, apiHost, client, b.logger, options.FlushAt, options.FlushInterval)
	}

	b.mu.Lock()
	pending := b.plugins
	b.plugins = nil
	b.mu.Unlock()

	if err := b.loadPlugins(ctx, a, pending); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn("Failed to close analytics after browser closed", "error", err)
		}
		return nil, ErrBrowserClosed
	}
	b.instance = a
	b.replaying = true
	late := b.plugins
	b.plugins = nil
	close(b.ready)
	b.mu.Unlock()

	for _, pp := range late {
		if err := a.register(ctx, pp.plugin); err != nil {
			pp.result.resolve(nil, err)
			continue
		}
		pp.result.resolve(a, nil)
	}

	b.logger.Info("Analytics loaded", "writeKey", ObscureWriteKey(settings.WriteKey), "plugins", len(a.Plugins()))
	b.drain(a)
	return a, nil
}

// loadPlugins loads the delivery destination and every plugin registered
// before Load. Only a delivery failure fails the load; a failing plugin
// settles its own registration future.
func (b *Browser) loadPlugins(ctx context.Context, a *Analytics, pending []pendingPlugin) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPluginLoads)

	if a.delivery != nil {
		g.Go(func() error {
			return loadPlugin(gctx, a.delivery, a)
		})
	}

	loaded := make([]bool, len(pending))
	for i, pp := range pending {
		g.Go(func() error {
			if err := loadPlugin(gctx, pp.plugin, a); err != nil {
				b.logger.Warn("Plugin failed to load", "plugin", pp.plugin.Name(), "error", err)
				pp.result.resolve(nil, err)
				return nil
			}
			loaded[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, pp := range pending {
			pp.result.resolve(nil, fmt.Errorf("analytics failed to load: %w", err))
		}
		return err
	}

	// Registration order is kept regardless of which load finished first.
	if a.delivery != nil {
		a.addPlugin(a.delivery)
	}
	for i, pp := range pending {
		if loaded[i] {
			a.addPlugin(pp.plugin)
			pp.result.resolve(a, nil)
		}
	}
	return nil
}

// enqueue runs call now when loaded, buffers it before Load, and rejects it
// once the Browser is closed.
func (b *Browser) enqueue(run func(a *Analytics), reject func(err error)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		reject(ErrBrowserClosed)
		return
	}
	if b.instance == nil || b.replaying {
		b.queue = append(b.queue, queuedCall{run: run, reject: reject})
		b.mu.Unlock()
		return
	}
	a := b.instance
	b.mu.Unlock()
	run(a)
}

// drain replays buffered calls in FIFO order, including calls buffered while
// the replay is running.
func (b *Browser) drain(a *Analytics) {
	for {
		b.mu.Lock()
		pending := b.queue
		b.queue = nil
		if len(pending) == 0 {
			b.replaying = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		for _, call := range pending {
			call.run(a)
		}
	}
}

// Register adds plugins. Before Load they are loaded together with the SDK;
// afterwards they are loaded immediately.
func (b *Browser) Register(ctx context.Context, plugins ...Plugin) *Future[*Analytics] {
	if len(plugins) == 0 || containsNil(plugins) {
		return Rejected[*Analytics](ErrNilPlugin)
	}

	b.mu.Lock()
	if b.instance == nil && !b.closed {
		futures := make([]*Future[*Analytics], 0, len(plugins))
		for _, p := range plugins {
			f := newFuture[*Analytics]()
			b.plugins = append(b.plugins, pendingPlugin{plugin: p, result: f})
			futures = append(futures, f)
		}
		b.mu.Unlock()
		return joinFutures(futures)
	}
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return Rejected[*Analytics](ErrBrowserClosed)
	}

	f := newFuture[*Analytics]()
	b.enqueue(func(a *Analytics) {
		if err := a.Register(context.WithoutCancel(ctx), plugins...); err != nil {
			f.resolve(nil, err)
			return
		}
		f.resolve(a, nil)
	}, rejectWith(f))
	return f
}

func containsNil(plugins []Plugin) bool {
	for _, p := range plugins {
		if p == nil {
			return true
		}
	}
	return false
}

func joinFutures(futures []*Future[*Analytics]) *Future[*Analytics] {
	if len(futures) == 1 {
		return futures[0]
	}
	out := newFuture[*Analytics]()
	go func() {
		var (
			a    *Analytics
			errs []error
		)
		for _, f := range futures {
			<-f.Done()
			if f.err != nil {
				errs = append(errs, f.err)
				continue
			}
			a = f.val
		}
		out.resolve(a, errors.Join(errs...))
	}()
	return out
}

// AddSourceMiddleware appends a source middleware.
func (b *Browser) AddSourceMiddleware(mw SourceMiddleware) *Future[*Analytics] {
	if mw == nil {
		return Rejected[*Analytics](ErrNilMiddleware)
	}
	f := newFuture[*Analytics]()
	b.enqueue(func(a *Analytics) {
		f.resolve(a, a.AddSourceMiddleware(mw))
	}, rejectWith(f))
	return f
}

// AddDestinationMiddleware appends middlewares for one integration.
func (b *Browser) AddDestinationMiddleware(integration string, mws ...DestinationMiddleware) *Future[*Analytics] {
	if integration == "" {
		return Rejected[*Analytics](ErrInvalidIntegration)
	}
	f := newFuture[*Analytics]()
	b.enqueue(func(a *Analytics) {
		f.resolve(a, a.AddDestinationMiddleware(integration, mws...))
	}, rejectWith(f))
	return f
}

// Identify identifies the user.
func (b *Browser) Identify(ctx context.Context, userID string, traits Traits, opts *Options, cb Callback) *Future[*Context] {
	return b.dispatch(func(a *Analytics) (*Context, error) {
		return a.Identify(context.WithoutCancel(ctx), userID, traits, opts, cb)
	})
}

// Track records an event.
func (b *Browser) Track(ctx context.Context, event string, props Properties, opts *Options, cb Callback) *Future[*Context] {
	return b.dispatch(func(a *Analytics) (*Context, error) {
		return a.Track(context.WithoutCancel(ctx), event, props, opts, cb)
	})
}

// Page records a page view.
func (b *Browser) Page(ctx context.Context, category, name string, props Properties, opts *Options, cb Callback) *Future[*Context] {
	return b.dispatch(func(a *Analytics) (*Context, error) {
		return a.Page(context.WithoutCancel(ctx), category, name, props, opts, cb)
	})
}

// Group associates the user with a group.
func (b *Browser) Group(ctx context.Context, groupID string, traits Traits, opts *Options, cb Callback) *Future[*Context] {
	return b.dispatch(func(a *Analytics) (*Context, error) {
		return a.Group(context.WithoutCancel(ctx), groupID, traits, opts, cb)
	})
}

// Alias links two user identities.
func (b *Browser) Alias(ctx context.Context, userID, previousID string, opts *Options, cb Callback) *Future[*Context] {
	return b.dispatch(func(a *Analytics) (*Context, error) {
		return a.Alias(context.WithoutCancel(ctx), userID, previousID, opts, cb)
	})
}

// Ready runs cb with the loaded instance once Load has succeeded. cb runs on
// its own goroutine, so it may make calls and await their futures.
func (b *Browser) Ready(cb func(a *Analytics)) *Future[*Analytics] {
	f := newFuture[*Analytics]()
	b.enqueue(func(a *Analytics) {
		if cb == nil {
			f.resolve(a, nil)
			return
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					f.resolve(a, fmt.Errorf("ready callback panicked: %v", r))
				}
			}()
			cb(a)
			f.resolve(a, nil)
		}()
	}, rejectWith(f))
	return f
}

// Reset clears the stored identity.
func (b *Browser) Reset() *Future[struct{}] {
	f := newFuture[struct{}]()
	b.enqueue(func(a *Analytics) {
		a.Reset()
		f.resolve(struct{}{}, nil)
	}, rejectWith(f))
	return f
}

func (b *Browser) dispatch(call func(a *Analytics) (*Context, error)) *Future[*Context] {
	f := newFuture[*Context]()
	b.enqueue(func(a *Analytics) {
		f.resolve(call(a))
	}, rejectWith(f))
	return f
}

func rejectWith[T any](f *Future[T]) func(err error) {
	return func(err error) {
		var zero T
		f.resolve(zero, err)
	}
}

// Close flushes and stops a loaded instance. Buffered calls and pending
// plugin registrations are rejected with ErrBrowserClosed, as is every call
// made afterwards.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	a := b.instance
	queued := b.queue
	plugins := b.plugins
	b.queue = nil
	b.plugins = nil
	b.mu.Unlock()

	for _, call := range queued {
		call.reject(ErrBrowserClosed)
	}
	for _, pp := range plugins {
		pp.result.resolve(nil, ErrBrowserClosed)
	}
	if a == nil {
		return nil
	}
	return a.Close(ctx)
}
