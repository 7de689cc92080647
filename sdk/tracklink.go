package sdk

import (
	"context"
	"sync"
	"time"
)

// Link is anything that can report clicks, such as a rendered anchor.
type Link interface {
	Href() string
	OnClick(handler func())
}

// Navigator is implemented by links that follow their target after the
// click has been tracked.
type Navigator interface {
	Navigate()
}

// EventName resolves the tracked event name for a clicked link.
type EventName func(link Link) string

// StaticName always tracks the same event name.
func StaticName(name string) EventName {
	return func(Link) string { return name }
}

// LinkProperties resolves the properties tracked for a clicked link.
type LinkProperties func(link Link) Properties

// StaticProperties always tracks the same properties.
func StaticProperties(props Properties) LinkProperties {
	return func(Link) Properties { return props }
}

// TrackLink binds a click handler to every link. A click tracks the event
// and then navigates once the callback timeout has elapsed.
func (a *Analytics) TrackLink(ctx context.Context, links []Link, name EventName, props LinkProperties, opts *Options) {
	for _, link := range links {
		if link == nil {
			continue
		}
		link.OnClick(func() {
			var p Properties
			if props != nil {
				p = props(link)
			}
			eventName := ""
			if name != nil {
				eventName = name(link)
			}

			var once sync.Once
			navigate := func() {
				once.Do(func() {
					if nav, ok := link.(Navigator); ok {
						nav.Navigate()
					}
				})
			}

			if _, err := a.Track(ctx, eventName, p, opts, func(*Context) { navigate() }); err != nil {
				a.logger.Warn("Link click could not be tracked", "href", link.Href(), "error", err)
				navigate()
				return
			}
			// Navigate even if the callback never fires.
			time.AfterFunc(a.CallbackTimeout()+50*time.Millisecond, navigate)
		})
	}
}

// TrackLink binds click tracking to links once the SDK has loaded.
func (b *Browser) TrackLink(ctx context.Context, links []Link, name EventName, props LinkProperties, opts *Options) *Future[*Analytics] {
	f := newFuture[*Analytics]()
	b.enqueue(func(a *Analytics) {
		a.TrackLink(context.WithoutCancel(ctx), links, name, props, opts)
		f.resolve(a, nil)
	}, rejectWith(f))
	return f
}
