package analytics

// Event type constants for analytics module events.
// Following CloudEvents specification reverse domain notation.
const (
	// Configuration events
	EventTypeConfigLoaded = "com.modular.analytics.config.loaded"

	// Load lifecycle events
	EventTypeLoadStarted       = "com.modular.analytics.load.started"
	EventTypeLoadSucceeded     = "com.modular.analytics.load.succeeded"
	EventTypeLoadFailed        = "com.modular.analytics.load.failed"
	EventTypeInitializeSkipped = "com.modular.analytics.initialize.skipped"

	// Extension registration events
	EventTypeExtensionRegistered = "com.modular.analytics.extension.registered"
	EventTypeExtensionFailed     = "com.modular.analytics.extension.failed"

	// Module lifecycle events
	EventTypeModuleStarted = "com.modular.analytics.module.started"
	EventTypeModuleStopped = "com.modular.analytics.module.stopped"
)

// EventTypes lists every event type the module emits.
func EventTypes() []string {
	return []string{
		EventTypeConfigLoaded,
		EventTypeLoadStarted,
		EventTypeLoadSucceeded,
		EventTypeLoadFailed,
		EventTypeInitializeSkipped,
		EventTypeExtensionRegistered,
		EventTypeExtensionFailed,
		EventTypeModuleStarted,
		EventTypeModuleStopped,
	}
}
