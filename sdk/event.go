package sdk

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of call that produced an event.
type EventType string

// Event types understood by the pipeline.
const (
	EventTypeTrack    EventType = "track"
	EventTypeIdentify EventType = "identify"
	EventTypePage     EventType = "page"
	EventTypeGroup    EventType = "group"
	EventTypeAlias    EventType = "alias"
)

// Properties holds free-form event properties.
type Properties map[string]any

// Traits holds free-form user or group traits.
type Traits map[string]any

// Event is the envelope handed to middlewares, plugins and the delivery
// destination. Its JSON form matches the collection API payload.
type Event struct {
	Type         EventType      `json:"type"`
	Event        string         `json:"event,omitempty"`
	Name         string         `json:"name,omitempty"`
	Category     string         `json:"category,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	AnonymousID  string         `json:"anonymousId,omitempty"`
	GroupID      string         `json:"groupId,omitempty"`
	PreviousID   string         `json:"previousId,omitempty"`
	Properties   Properties     `json:"properties,omitempty"`
	Traits       Traits         `json:"traits,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Integrations map[string]any `json:"integrations,omitempty"`
	MessageID    string         `json:"messageId"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Clone returns a copy of the event whose top level maps can be mutated
// without affecting the original.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = maps.Clone(e.Properties)
	out.Traits = maps.Clone(e.Traits)
	out.Context = maps.Clone(e.Context)
	out.Integrations = maps.Clone(e.Integrations)
	return &out
}

// Options are per-call overrides.
type Options struct {
	// Integrations enables or disables destinations for this call only.
	Integrations map[string]any
	// Context is merged into the event context.
	Context map[string]any
	// Timestamp overrides the event timestamp.
	Timestamp *time.Time
	// AnonymousID overrides the stored anonymous id for this call.
	AnonymousID string
}

// Callback is invoked once an event has been dispatched or the callback
// timeout has elapsed, whichever is later.
type Callback func(c *Context)

// Context tracks one event through the pipeline.
type Context struct {
	ID    string
	Event *Event

	mu       sync.Mutex
	dropped  bool
	failures []Failure
}

// Failure records a plugin that could not process the event.
type Failure struct {
	Plugin string
	Err    error
}

func newContext(ev *Event) *Context {
	return &Context{ID: uuid.NewString(), Event: ev}
}

// Dropped reports whether a middleware stopped the event.
func (c *Context) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Failures returns the plugins that failed while handling the event.
func (c *Context) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	return out
}

func (c *Context) drop() {
	c.mu.Lock()
	c.dropped = true
	c.mu.Unlock()
}

func (c *Context) recordFailure(plugin string, err error) {
	c.mu.Lock()
	c.failures = append(c.failures, Failure{Plugin: plugin, Err: err})
	c.mu.Unlock()
}
