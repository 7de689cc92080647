package analytics

import (
	"context"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// Service is the facade application code uses. Every analytics call is
// forwarded unchanged to the SDK, which buffers calls made before it has
// loaded. The returned futures carry the SDK's own result or failure.
type Service struct {
	client *Client
	config *Config
	logger modular.Logger
}

// NewService builds the facade. In automatic mode it starts initialization
// immediately; in manual mode nothing is loaded until Initialize is called.
func NewService(client *Client, cfg *Config, logger modular.Logger) *Service {
	s := &Service{
		client: client,
		config: cfg,
		logger: logger,
	}
	if cfg.Mode() == InitializationModeAutomatic {
		s.Initialize()
	} else {
		logger.Debug("Analytics waiting for manual initialization")
	}
	return s
}

// Initialize loads the SDK with the configured settings. It is safe to call
// more than once.
func (s *Service) Initialize() {
	s.client.Initialize(s.config.Settings(), s.config.InitOptions())
}

// Initialized reports whether the SDK is loaded and ready.
func (s *Service) Initialized() bool {
	return s.client.Initialized()
}

// State returns the client lifecycle snapshot.
func (s *Service) State() State {
	return s.client.State()
}

// Identify ties the current user to userID and records traits.
func (s *Service) Identify(ctx context.Context, userID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context] {
	return s.client.sdk.Identify(ctx, userID, traits, opts, cb)
}

// Track records an event.
func (s *Service) Track(ctx context.Context, event string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context] {
	return s.client.sdk.Track(ctx, event, props, opts, cb)
}

// Page records a page view.
func (s *Service) Page(ctx context.Context, category, name string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context] {
	return s.client.sdk.Page(ctx, category, name, props, opts, cb)
}

// Group associates the current user with a group.
func (s *Service) Group(ctx context.Context, groupID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context] {
	return s.client.sdk.Group(ctx, groupID, traits, opts, cb)
}

// Alias links userID to previousID.
func (s *Service) Alias(ctx context.Context, userID, previousID string, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context] {
	return s.client.sdk.Alias(ctx, userID, previousID, opts, cb)
}

// TrackLink tracks clicks on links.
func (s *Service) TrackLink(ctx context.Context, links []sdk.Link, name sdk.EventName, props sdk.LinkProperties, opts *sdk.Options) *sdk.Future[*sdk.Analytics] {
	return s.client.sdk.TrackLink(ctx, links, name, props, opts)
}

// WhenReady runs cb once the SDK has loaded.
func (s *Service) WhenReady(cb func(a *sdk.Analytics)) *sdk.Future[*sdk.Analytics] {
	return s.client.sdk.Ready(cb)
}

// Reset clears the stored user and group identity.
func (s *Service) Reset() *sdk.Future[struct{}] {
	return s.client.sdk.Reset()
}
