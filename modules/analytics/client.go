package analytics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// SDK is the analytics SDK driven by the Client. *sdk.Browser implements it;
// calls made before Load are buffered by the SDK, not by the Client.
type SDK interface {
	Load(ctx context.Context, settings sdk.Settings, options sdk.InitOptions) (*sdk.Analytics, error)
	Register(ctx context.Context, plugins ...sdk.Plugin) *sdk.Future[*sdk.Analytics]
	AddSourceMiddleware(mw sdk.SourceMiddleware) *sdk.Future[*sdk.Analytics]
	AddDestinationMiddleware(integration string, mws ...sdk.DestinationMiddleware) *sdk.Future[*sdk.Analytics]
	Identify(ctx context.Context, userID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Track(ctx context.Context, event string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Page(ctx context.Context, category, name string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Group(ctx context.Context, groupID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Alias(ctx context.Context, userID, previousID string, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	TrackLink(ctx context.Context, links []sdk.Link, name sdk.EventName, props sdk.LinkProperties, opts *sdk.Options) *sdk.Future[*sdk.Analytics]
	Ready(cb func(a *sdk.Analytics)) *sdk.Future[*sdk.Analytics]
	Reset() *sdk.Future[struct{}]
	Close(ctx context.Context) error
}

// TransitionHook is told about lifecycle and registration outcomes. The
// module uses it to emit CloudEvents.
type TransitionHook func(ctx context.Context, eventType string, data map[string]any)

// State is a snapshot of the client lifecycle flags.
type State struct {
	Loading     bool   `json:"loading"`
	Ready       bool   `json:"ready"`
	Error       bool   `json:"error"`
	Initialized bool   `json:"initialized"`
	LastError   string `json:"lastError,omitempty"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithExtensions sets the middlewares and plugins registered at construction.
func WithExtensions(ext Extensions) ClientOption {
	return func(c *Client) {
		c.extensions = ext
	}
}

// WithApplication exposes app to extension factories.
func WithApplication(app modular.Application) ClientOption {
	return func(c *Client) {
		c.app = app
	}
}

// WithTransitionHook sets the hook notified of state changes.
func WithTransitionHook(hook TransitionHook) ClientOption {
	return func(c *Client) {
		c.hook = hook
	}
}

// Client owns the single SDK instance and its lifecycle state. Build one per
// application and share it by reference.
type Client struct {
	sdk        SDK
	config     *Config
	logger     modular.Logger
	app        modular.Application
	extensions Extensions
	hook       TransitionHook

	mu        sync.RWMutex
	isLoading bool
	isReady   bool
	hasError  bool
	lastErr   error
	closed    bool

	loads      atomic.Int32
	registered atomic.Int32
	failed     atomic.Int32
	inflight   sync.WaitGroup
}

// NewClient builds the client and registers every configured extension with
// the SDK, in the order supplied.
func NewClient(s SDK, cfg *Config, logger modular.Logger, opts ...ClientOption) *Client {
	c := &Client{
		sdk:    s,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registerExtensions(FactoryContext{App: c.app, Config: cfg, Logger: logger})
	return c
}

// SDK returns the wrapped SDK.
func (c *Client) SDK() SDK {
	return c.sdk
}

// Initialize starts loading the SDK and returns without waiting. While a load
// is in flight further calls are ignored; once ready they log a warning.
// Load failures are logged and recorded, never returned.
func (c *Client) Initialize(settings sdk.Settings, options sdk.InitOptions) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("Analytics client closed, ignoring initialize")
		c.notify(context.Background(), EventTypeInitializeSkipped, map[string]any{"reason": "closed"})
		return
	}
	if c.isLoading {
		c.mu.Unlock()
		c.logger.Debug("Analytics load already in progress")
		return
	}
	if c.isReady {
		c.mu.Unlock()
		c.logger.Warn("Analytics already initialized, skipping")
		c.notify(context.Background(), EventTypeInitializeSkipped, map[string]any{"reason": "already_ready"})
		return
	}
	c.isLoading = true
	c.inflight.Add(1)
	c.mu.Unlock()

	attempt := c.loads.Add(1)
	c.notify(context.Background(), EventTypeLoadStarted, map[string]any{
		"writeKey": sdk.ObscureWriteKey(settings.WriteKey),
		"attempt":  attempt,
	})

	go c.load(settings, options)
}

func (c *Client) load(settings sdk.Settings, options sdk.InitOptions) {
	defer c.inflight.Done()
	ctx := context.Background()

	a, err := c.safeLoad(ctx, settings, options)

	c.mu.Lock()
	if err != nil {
		c.hasError = true
		c.lastErr = err
	} else {
		c.isReady = true
		c.hasError = false
		c.lastErr = nil
	}
	c.isLoading = false
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Analytics initialization failed", "error", err)
		c.notify(ctx, EventTypeLoadFailed, map[string]any{"error": err.Error()})
		return
	}

	// Tuning is applied once the client reports ready.
	timeout, hasTimeout := c.config.CallbackTimeout()
	c.logger.Debug("Applying analytics settings", "timeout", timeout, "debug", c.config.Debug)
	if hasTimeout {
		a.Timeout(timeout)
	}
	a.Debug(c.config.Debug)
	c.logger.Info("Analytics initialized", "writeKey", sdk.ObscureWriteKey(settings.WriteKey), "debug", c.config.Debug)
	c.notify(ctx, EventTypeLoadSucceeded, map[string]any{"debug": c.config.Debug})
}

func (c *Client) safeLoad(ctx context.Context, settings sdk.Settings, options sdk.InitOptions) (a *sdk.Analytics, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()
	a, err = c.sdk.Load(ctx, settings, options)
	if err == nil && a == nil {
		err = fmt.Errorf("%w: load returned no instance", ErrLoadPanic)
	}
	return a, err
}

// Initialized reports whether the SDK is ready and no load is in progress.
func (c *Client) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isReady && !c.isLoading
}

// IsLoading reports whether a load is in progress.
func (c *Client) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLoading
}

// IsReady reports whether a load has succeeded.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isReady
}

// HasError reports whether the last load failed.
func (c *Client) HasError() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasError
}

// State returns a snapshot of the lifecycle flags.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := State{
		Loading:     c.isLoading,
		Ready:       c.isReady,
		Error:       c.hasError,
		Initialized: c.isReady && !c.isLoading,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// LoadAttempts returns how many loads have been started.
func (c *Client) LoadAttempts() int {
	return int(c.loads.Load())
}

// Close waits for an in-flight load and shuts the SDK down. Initialize calls
// made after Close are ignored.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCloseTimeout, ctx.Err())
	}
	if err := c.sdk.Close(ctx); err != nil {
		return fmt.Errorf("failed to close analytics sdk: %w", err)
	}
	return nil
}

func (c *Client) notify(ctx context.Context, eventType string, data map[string]any) {
	if c.hook == nil {
		return
	}
	c.hook(ctx, eventType, data)
}
