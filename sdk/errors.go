package sdk

import "errors"

// Error definitions for the analytics SDK
var (
	// Load errors
	ErrMissingWriteKey = errors.New("write key is required")
	ErrSettingsFetch   = errors.New("failed to fetch CDN settings")
	ErrBrowserClosed   = errors.New("analytics browser is closed")

	// Registration errors
	ErrNilMiddleware      = errors.New("middleware must not be nil")
	ErrInvalidIntegration = errors.New("integration name must not be empty")
	ErrNilPlugin          = errors.New("plugin must not be nil")
	ErrPluginLoad         = errors.New("plugin failed to load")
	ErrPluginPanic        = errors.New("plugin panicked")

	// Dispatch errors
	ErrDeliveryFailed = errors.New("event delivery failed")
	ErrBatchRejected  = errors.New("collection API rejected batch")
	ErrEmptyEventName = errors.New("event name must not be empty")
	ErrEmptyGroupID   = errors.New("group id must not be empty")
	ErrEmptyUserID    = errors.New("user id must not be empty")
)
