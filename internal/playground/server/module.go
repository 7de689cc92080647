package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/internal/playground/feed"
	"github.com/GoCodeAlone/modular-segment/internal/playground/store"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
)

// ModuleName is the name of this module
const ModuleName = "playground"

// ErrNotStarted is returned by Addr before Start.
var ErrNotStarted = errors.New("playground server not started")

// Module serves the playground API.
type Module struct {
	config   *Config
	logger   modular.Logger
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	address  string
}

// ModuleOption configures the server module.
type ModuleOption func(*Module)

// WithAddress overrides the configured listen address.
func WithAddress(addr string) ModuleOption {
	return func(m *Module) {
		m.address = addr
	}
}

// NewModule creates the playground server module.
func NewModule(opts ...ModuleOption) modular.Module {
	m := &Module{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the name of the module
func (m *Module) Name() string {
	return ModuleName
}

// Dependencies makes sure the analytics facade exists before Init.
func (m *Module) Dependencies() []string {
	return []string{analytics.ModuleName}
}

// RegisterConfig registers the module's configuration structure
func (m *Module) RegisterConfig(app modular.Application) error {
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}
	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(&Config{
		Address:         ":8080",
		AwaitTimeout:    2 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}))
	return nil
}

// Init resolves the analytics facade, feed and store and builds the router.
func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	config, ok := cfg.GetConfig().(*Config)
	if !ok {
		return fmt.Errorf("%w: unexpected config type %T", modular.ErrConfigValidationFailed, cfg.GetConfig())
	}
	if m.address != "" {
		config.Address = m.address
	}
	if err := config.Validate(); err != nil {
		return err
	}
	m.config = config
	m.logger = app.Logger()

	var svc *analytics.Service
	if err := app.GetService(analytics.ServiceName, &svc); err != nil {
		return fmt.Errorf("failed to get analytics service: %w", err)
	}
	var f *feed.Feed
	if err := app.GetService(feed.ServiceName, &f); err != nil {
		return fmt.Errorf("failed to get feed service: %w", err)
	}
	var s *store.State
	if err := app.GetService(store.ServiceName, &s); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}

	m.handler = NewHandler(svc, f, s, m.logger, m.config.AwaitTimeout)
	return nil
}

// Start listens on the configured address and serves in the background.
func (m *Module) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Address, err)
	}
	m.listener = ln
	m.server = &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Playground listening", "address", ln.Addr().String())
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Playground server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (m *Module) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	m.logger.Info("Stopping playground server")
	if err := m.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop playground server: %w", err)
	}
	return nil
}

// Addr returns the address the server listens on.
func (m *Module) Addr() (string, error) {
	if m.listener == nil {
		return "", ErrNotStarted
	}
	return m.listener.Addr().String(), nil
}

// Handler returns the router built during Init.
func (m *Module) Handler() http.Handler {
	return m.handler
}
