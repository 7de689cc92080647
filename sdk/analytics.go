package sdk

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// pipelineStages is the order plugins see an event in.
var pipelineStages = []PluginType{
	PluginTypeBefore,
	PluginTypeEnrichment,
	PluginTypeDestination,
	PluginTypeAfter,
}

// Analytics is a loaded SDK instance. Every call dispatches immediately;
// buffering of calls made before load lives in Browser.
type Analytics struct {
	settings Settings
	options  InitOptions
	cdn      *CDNSettings
	logger   Logger
	tracer   trace.Tracer
	user     *User

	mu          sync.RWMutex
	plugins     []Plugin
	sourceMW    []SourceMiddleware
	destMW      map[string][]DestinationMiddleware
	groupID     string
	groupTraits Traits
	timeout     time.Duration
	debug       bool
	delivery    *batchDestination
	closed      bool
}

func newAnalytics(settings Settings, options InitOptions, cdn *CDNSettings, logger Logger, tracer trace.Tracer) *Analytics {
	return &Analytics{
		settings:    settings,
		options:     options,
		cdn:         cdn,
		logger:      logger,
		tracer:      tracer,
		user:        newUser(),
		destMW:      make(map[string][]DestinationMiddleware),
		groupTraits: Traits{},
		timeout:     DefaultCallbackTimeout,
	}
}

// Settings returns the settings the instance was loaded with.
func (a *Analytics) Settings() Settings { return a.settings }

// Options returns the init options the instance was loaded with.
func (a *Analytics) Options() InitOptions { return a.options }

// CDNSettings returns the project settings fetched at load.
func (a *Analytics) CDNSettings() *CDNSettings { return a.cdn }

// User returns the current identity.
func (a *Analytics) User() *User { return a.user }

// Timeout sets how long callbacks wait before firing.
func (a *Analytics) Timeout(d time.Duration) {
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
}

// CallbackTimeout returns the current callback timeout.
func (a *Analytics) CallbackTimeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeout
}

// Debug toggles verbose pipeline logging.
func (a *Analytics) Debug(enabled bool) {
	a.mu.Lock()
	a.debug = enabled
	a.mu.Unlock()
}

// IsDebug reports whether debug logging is on.
func (a *Analytics) IsDebug() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.debug
}

// Plugins returns the registered plugins in registration order.
func (a *Analytics) Plugins() []Plugin {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.plugins)
}

// Register loads each plugin and adds it to the pipeline. A plugin whose
// Load fails is not added; the remaining plugins are still registered.
func (a *Analytics) Register(ctx context.Context, plugins ...Plugin) error {
	var errs []error
	for _, p := range plugins {
		if err := a.register(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Analytics) register(ctx context.Context, p Plugin) error {
	if p == nil {
		return ErrNilPlugin
	}
	if err := loadPlugin(ctx, p, a); err != nil {
		return err
	}
	a.addPlugin(p)
	return nil
}

func (a *Analytics) addPlugin(p Plugin) {
	a.mu.Lock()
	a.plugins = append(a.plugins, p)
	a.mu.Unlock()
	a.logger.Debug("Registered plugin", "plugin", p.Name(), "type", p.Type(), "version", p.Version())
}

// Deregister removes plugins by name.
func (a *Analytics) Deregister(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plugins = slices.DeleteFunc(a.plugins, func(p Plugin) bool {
		return slices.Contains(names, p.Name())
	})
}

// AddSourceMiddleware appends mw to the source middleware chain.
func (a *Analytics) AddSourceMiddleware(mw SourceMiddleware) error {
	if mw == nil {
		return ErrNilMiddleware
	}
	a.mu.Lock()
	a.sourceMW = append(a.sourceMW, mw)
	a.mu.Unlock()
	return nil
}

// AddDestinationMiddleware appends mws to the chain for integration.
func (a *Analytics) AddDestinationMiddleware(integration string, mws ...DestinationMiddleware) error {
	if integration == "" {
		return ErrInvalidIntegration
	}
	if len(mws) == 0 {
		return ErrNilMiddleware
	}
	for _, mw := range mws {
		if mw == nil {
			return ErrNilMiddleware
		}
	}
	a.mu.Lock()
	a.destMW[integration] = append(a.destMW[integration], mws...)
	a.mu.Unlock()
	return nil
}

// Identify records the user and dispatches an identify event.
func (a *Analytics) Identify(ctx context.Context, userID string, traits Traits, opts *Options, cb Callback) (*Context, error) {
	a.user.identify(userID, traits)
	ev := a.newEvent(EventTypeIdentify, opts)
	ev.Traits = a.user.Traits()
	return a.dispatch(ctx, ev, cb)
}

// Track dispatches a track event.
func (a *Analytics) Track(ctx context.Context, event string, props Properties, opts *Options, cb Callback) (*Context, error) {
	if event == "" {
		return nil, ErrEmptyEventName
	}
	ev := a.newEvent(EventTypeTrack, opts)
	ev.Event = event
	ev.Properties = maps.Clone(props)
	return a.dispatch(ctx, ev, cb)
}

// Page dispatches a page event.
func (a *Analytics) Page(ctx context.Context, category, name string, props Properties, opts *Options, cb Callback) (*Context, error) {
	ev := a.newEvent(EventTypePage, opts)
	ev.Category = category
	ev.Name = name
	ev.Properties = maps.Clone(props)
	if ev.Properties == nil {
		ev.Properties = Properties{}
	}
	if name != "" {
		ev.Properties["name"] = name
	}
	if category != "" {
		ev.Properties["category"] = category
	}
	return a.dispatch(ctx, ev, cb)
}

// Group associates the user with groupID and dispatches a group event.
func (a *Analytics) Group(ctx context.Context, groupID string, traits Traits, opts *Options, cb Callback) (*Context, error) {
	if groupID == "" {
		return nil, ErrEmptyGroupID
	}
	a.mu.Lock()
	if groupID != a.groupID {
		a.groupTraits = Traits{}
	}
	a.groupID = groupID
	maps.Copy(a.groupTraits, traits)
	merged := maps.Clone(a.groupTraits)
	a.mu.Unlock()

	ev := a.newEvent(EventTypeGroup, opts)
	ev.GroupID = groupID
	ev.Traits = merged
	return a.dispatch(ctx, ev, cb)
}

// Alias links userID to previousID, which defaults to the current identity.
func (a *Analytics) Alias(ctx context.Context, userID, previousID string, opts *Options, cb Callback) (*Context, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if previousID == "" {
		previousID = a.user.ID()
		if previousID == "" {
			previousID = a.user.AnonymousID()
		}
	}
	ev := a.newEvent(EventTypeAlias, opts)
	ev.UserID = userID
	ev.PreviousID = previousID
	return a.dispatch(ctx, ev, cb)
}

// Reset clears the user and group identity.
func (a *Analytics) Reset() {
	a.user.reset()
	a.mu.Lock()
	a.groupID = ""
	a.groupTraits = Traits{}
	a.mu.Unlock()
}

// Flush delivers queued events immediately.
func (a *Analytics) Flush(ctx context.Context) error {
	if a.delivery == nil {
		return nil
	}
	return a.delivery.Flush(ctx)
}

// Close drains the delivery queue and stops background work.
func (a *Analytics) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.delivery == nil {
		return nil
	}
	return a.delivery.Close(ctx)
}

func (a *Analytics) newEvent(t EventType, opts *Options) *Event {
	ev := &Event{
		Type:         t,
		UserID:       a.user.ID(),
		AnonymousID:  a.user.AnonymousID(),
		Context:      map[string]any{"library": map[string]any{"name": "modular-segment", "version": Version}},
		Integrations: maps.Clone(a.options.Integrations),
		MessageID:    "ajs-next-" + uuid.NewString(),
		Timestamp:    time.Now().UTC(),
	}
	if opts == nil {
		return ev
	}
	maps.Copy(ev.Context, opts.Context)
	if opts.Integrations != nil {
		if ev.Integrations == nil {
			ev.Integrations = map[string]any{}
		}
		maps.Copy(ev.Integrations, opts.Integrations)
	}
	if opts.Timestamp != nil {
		ev.Timestamp = opts.Timestamp.UTC()
	}
	if opts.AnonymousID != "" {
		ev.AnonymousID = opts.AnonymousID
	}
	return ev
}

type pipelineSnapshot struct {
	plugins  []Plugin
	sourceMW []SourceMiddleware
	destMW   map[string][]DestinationMiddleware
	timeout  time.Duration
	debug    bool
}

func (a *Analytics) snapshot() pipelineSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	dest := make(map[string][]DestinationMiddleware, len(a.destMW))
	for k, v := range a.destMW {
		dest[k] = slices.Clone(v)
	}
	return pipelineSnapshot{
		plugins:  slices.Clone(a.plugins),
		sourceMW: slices.Clone(a.sourceMW),
		destMW:   dest,
		timeout:  a.timeout,
		debug:    a.debug,
	}
}

// dispatch runs ev through the pipeline. Failures in before plugins abort
// the dispatch; failures anywhere later are recorded on the context.
func (a *Analytics) dispatch(ctx context.Context, ev *Event, cb Callback) (*Context, error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "analytics."+string(ev.Type), trace.WithAttributes(
		attribute.String("analytics.event_type", string(ev.Type)),
		attribute.String("analytics.message_id", ev.MessageID),
	))
	defer span.End()

	c := newContext(ev)
	if a.options.Disable {
		return c, nil
	}

	snap := a.snapshot()
	if !a.options.DisableAutoISOConversion {
		convertISODates(ev.Properties)
		convertISODates(ev.Traits)
	}

	out, ok := a.applySourceMiddlewares(snap.sourceMW, ev)
	if !ok {
		c.drop()
		span.SetAttributes(attribute.Bool("analytics.dropped", true))
		if snap.debug {
			a.logger.Debug("Event dropped by source middleware", "type", ev.Type, "messageId", ev.MessageID)
		}
		a.scheduleCallback(c, cb, snap.timeout, start)
		return c, nil
	}
	c.Event = out

	for _, stage := range pipelineStages {
		for _, p := range snap.plugins {
			if p.Type() != stage {
				continue
			}
			var err error
			if stage == PluginTypeDestination {
				err = a.deliver(c, p, snap.destMW[p.Name()])
			} else {
				var res *Context
				res, err = runHook(p, c)
				if err == nil && res != nil {
					c = res
				}
			}
			if err == nil {
				continue
			}
			c.recordFailure(p.Name(), err)
			if stage == PluginTypeBefore {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return c, fmt.Errorf("before plugin %s: %w", p.Name(), err)
			}
			a.logger.Warn("Plugin failed to handle event", "plugin", p.Name(), "type", ev.Type, "error", err)
		}
	}

	if snap.debug {
		a.logger.Debug("Dispatched event", "type", ev.Type, "event", c.Event.Event, "messageId", ev.MessageID, "duration_ms", time.Since(start).Milliseconds())
	}
	a.scheduleCallback(c, cb, snap.timeout, start)
	return c, nil
}

func (a *Analytics) applySourceMiddlewares(chain []SourceMiddleware, ev *Event) (out *Event, ok bool) {
	if len(chain) == 0 {
		return ev, true
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Source middleware panicked, dropping event", "type", ev.Type, "panic", r)
			out, ok = nil, false
		}
	}()
	return runSourceMiddlewares(chain, ev, ev.Integrations)
}

// deliver hands a copy of the context to destination p after its
// destination middleware chain.
func (a *Analytics) deliver(c *Context, p Plugin, chain []DestinationMiddleware) (err error) {
	if !integrationEnabled(p.Name(), c.Event.Integrations) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPluginPanic, p.Name(), r)
		}
	}()

	ev := c.Event
	if len(chain) > 0 {
		var ok bool
		ev, ok = runDestinationMiddlewares(chain, p.Name(), c.Event)
		if !ok {
			return nil
		}
	}
	dc := &Context{ID: c.ID, Event: ev}
	_, err = runHook(p, dc)
	return err
}

// integrationEnabled applies the integrations map: an explicit entry wins,
// then the "All" flag, then enabled by default.
func integrationEnabled(name string, integrations map[string]any) bool {
	if v, ok := integrations[name]; ok {
		if b, isBool := v.(bool); isBool {
			return b
		}
		return true
	}
	if all, ok := integrations["All"].(bool); ok {
		return all
	}
	return true
}

func (a *Analytics) scheduleCallback(c *Context, cb Callback, timeout time.Duration, start time.Time) {
	if cb == nil {
		return
	}
	delay := max(timeout-time.Since(start), 0)
	time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("Event callback panicked", "panic", r)
			}
		}()
		cb(c)
	})
}
