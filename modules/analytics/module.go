package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the name of this module
const ModuleName = "analytics"

// ServiceName is the name of the facade service provided by this module
const ServiceName = "analytics.service"

// ClientServiceName is the name of the client service provided by this module
const ClientServiceName = "analytics.client"

// Module wires the analytics client and facade into a modular application.
//
// Init builds one Client, registers the configured extensions with the SDK
// and builds the Service, which starts loading right away in automatic mode.
// Stop waits for an in-flight load and flushes queued events.
type Module struct {
	name       string
	config     *Config
	logger     modular.Logger
	app        modular.Application
	sdk        SDK
	sdkOptions []sdk.Option
	extensions Extensions
	client     *Client
	service    *Service
	subject    modular.Subject
}

// ModuleOption configures the module.
type ModuleOption func(*Module)

// WithSourceMiddlewares appends source middleware factories.
func WithSourceMiddlewares(factories ...SourceMiddlewareFactory) ModuleOption {
	return func(m *Module) {
		m.extensions.SourceMiddlewares = append(m.extensions.SourceMiddlewares, factories...)
	}
}

// WithDestinationMiddlewares appends a destination middleware group.
func WithDestinationMiddlewares(integration string, factories ...DestinationMiddlewareFactory) ModuleOption {
	return func(m *Module) {
		m.extensions.DestinationMiddlewares = append(m.extensions.DestinationMiddlewares, DestinationMiddlewareGroup{
			IntegrationName: integration,
			Middlewares:     factories,
		})
	}
}

// WithPlugins appends plugin factories.
func WithPlugins(factories ...PluginFactory) ModuleOption {
	return func(m *Module) {
		m.extensions.Plugins = append(m.extensions.Plugins, factories...)
	}
}

// WithSDK replaces the default SDK.
func WithSDK(s SDK) ModuleOption {
	return func(m *Module) {
		m.sdk = s
	}
}

// WithSDKOptions passes options to the default SDK.
func WithSDKOptions(opts ...sdk.Option) ModuleOption {
	return func(m *Module) {
		m.sdkOptions = append(m.sdkOptions, opts...)
	}
}

// NewModule creates a new instance of the analytics module
func NewModule(opts ...ModuleOption) modular.Module {
	m := &Module{
		name: ModuleName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the name of the module
func (m *Module) Name() string {
	return m.name
}

// RegisterConfig registers the module's configuration structure
func (m *Module) RegisterConfig(app modular.Application) error {
	// If a config provider is already registered (e.g., tests), don't override it
	if existing, err := app.GetConfigSection(m.Name()); err == nil && existing != nil {
		return nil
	}

	defaultConfig := &Config{
		CDNURL:             sdk.DefaultCDNURL,
		InitializationMode: InitializationModeAutomatic,
		FlushAt:            sdk.DefaultFlushAt,
		FlushInterval:      sdk.DefaultFlushInterval,
	}

	app.RegisterConfigSection(m.Name(), modular.NewStdConfigProvider(defaultConfig))
	return nil
}

// Init initializes the module
func (m *Module) Init(app modular.Application) error {
	cfg, err := app.GetConfigSection(m.name)
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.name, err)
	}

	config, ok := cfg.GetConfig().(*Config)
	if !ok {
		return fmt.Errorf("%w: unexpected config type %T", modular.ErrConfigValidationFailed, cfg.GetConfig())
	}
	if err := config.Validate(); err != nil {
		return err
	}

	m.config = config
	m.logger = app.Logger()
	m.app = app
	if subject, ok := app.(modular.Subject); ok && m.subject == nil {
		m.subject = subject
	}

	m.emitEvent(context.Background(), EventTypeConfigLoaded, map[string]any{
		"writeKey":           sdk.ObscureWriteKey(config.WriteKey),
		"initializationMode": string(config.Mode()),
		"debug":              config.Debug,
		"disable":            config.Disable,
	})

	if m.sdk == nil {
		opts := append([]sdk.Option{sdk.WithLogger(m.logger)}, m.sdkOptions...)
		m.sdk = sdk.NewBrowser(opts...)
	}

	m.client = NewClient(m.sdk, m.config, m.logger,
		WithApplication(app),
		WithExtensions(m.extensions),
		WithTransitionHook(m.emitEvent),
	)
	m.service = NewService(m.client, m.config, m.logger)

	m.logger.Info("Analytics module initialized",
		"mode", m.config.Mode(),
		"extensions", m.extensions.Len(),
	)
	return nil
}

// Start performs startup logic for the module
func (m *Module) Start(ctx context.Context) error {
	m.logger.Info("Starting analytics module", "initialized", m.client.Initialized())
	m.emitEvent(ctx, EventTypeModuleStarted, map[string]any{
		"mode":    string(m.config.Mode()),
		"loading": m.client.IsLoading(),
	})
	return nil
}

// Stop performs shutdown logic for the module
func (m *Module) Stop(ctx context.Context) error {
	m.logger.Info("Stopping analytics module")
	err := m.client.Close(ctx)
	m.emitEvent(ctx, EventTypeModuleStopped, map[string]any{"clean": err == nil})
	return err
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return nil
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Analytics facade for identify, track, page, group and alias calls",
			Instance:    m.service,
		},
		{
			Name:        ClientServiceName,
			Description: "Analytics client owning the SDK instance and its lifecycle state",
			Instance:    m.client,
		},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return nil
}

// Constructor provides a dependency injection constructor for the module
func (m *Module) Constructor() modular.ModuleConstructor {
	return func(app modular.Application, services map[string]any) (modular.Module, error) {
		return m, nil
	}
}

// Service returns the facade built during Init.
func (m *Module) Service() *Service {
	return m.service
}

// Client returns the client built during Init.
func (m *Module) Client() *Client {
	return m.client
}

// RegisterObservers implements the ObservableModule interface.
func (m *Module) RegisterObservers(subject modular.Subject) error {
	m.subject = subject
	return nil
}

// EmitEvent implements the ObservableModule interface.
func (m *Module) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	if m.subject == nil {
		return ErrNoSubjectForEventEmission
	}
	if err := m.subject.NotifyObservers(ctx, event); err != nil {
		return fmt.Errorf("failed to notify observers: %w", err)
	}
	return nil
}

// emitEvent creates and emits a CloudEvent, skipping quietly when the
// application is not observable.
func (m *Module) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if m.subject == nil {
		return
	}

	event := modular.NewCloudEvent(eventType, "analytics-service", data, nil)
	if emitErr := m.EmitEvent(ctx, event); emitErr != nil {
		if errors.Is(emitErr, ErrNoSubjectForEventEmission) {
			return
		}
		if m.logger != nil {
			m.logger.Warn("Failed to emit analytics event", "eventType", eventType, "error", emitErr)
		}
	}
}

// GetRegisteredEventTypes implements the ObservableModule interface.
func (m *Module) GetRegisteredEventTypes() []string {
	return EventTypes()
}
