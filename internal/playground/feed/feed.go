// Package feed keeps the live list of events seen by the playground.
package feed

import (
	"slices"
	"sync"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/sdk"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ServiceName is the name the feed is registered under.
const ServiceName = "playground.feed"

// EventTypePrefix prefixes the CloudEvent type of every feed entry; the
// analytics call type is appended.
const EventTypePrefix = "com.modular.playground.feed."

const source = "playground-live-feed"

// Feed holds events newest first. A positive limit caps its length.
type Feed struct {
	mu     sync.RWMutex
	limit  int
	events []cloudevents.Event
}

// New creates an empty feed. limit <= 0 keeps every event.
func New(limit int) *Feed {
	return &Feed{limit: limit}
}

// Log prepends ev to the feed.
func (f *Feed) Log(ev *sdk.Event) {
	if ev == nil {
		return
	}
	entry := modular.NewCloudEvent(EventTypePrefix+string(ev.Type), source, ev, nil)
	entry.SetSubject(ev.MessageID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = slices.Insert(f.events, 0, entry)
	if f.limit > 0 && len(f.events) > f.limit {
		f.events = f.events[:f.limit]
	}
}

// Events returns a copy of the feed, newest first.
func (f *Feed) Events() []cloudevents.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.events)
}

// Len returns the number of events held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.events)
}

// Clear removes every event.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}
