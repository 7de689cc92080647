package analytics

import (
	"errors"
)

// Error definitions for the analytics module
var (
	// Configuration errors
	ErrInvalidInitializationMode = errors.New("initialization mode must be automatic or manual")
	ErrNegativeTimeout           = errors.New("timeout must not be negative")
	ErrNegativeFlushAt           = errors.New("flushAt must not be negative")

	// Extension errors
	ErrFactoryFailed     = errors.New("extension factory failed")
	ErrNilFactory        = errors.New("extension factory is nil")
	ErrRegistrationPanic = errors.New("extension registration panicked")
	ErrEmptyIntegration  = errors.New("destination middleware group has no integration name")

	// Lifecycle errors
	ErrLoadPanic    = errors.New("analytics load panicked")
	ErrCloseTimeout = errors.New("timed out waiting for analytics load to finish")

	// Event observation errors
	ErrNoSubjectForEventEmission = errors.New("no subject available for event emission")
)
