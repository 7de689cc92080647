package sdk

// MiddlewarePayload carries the event through a middleware chain.
type MiddlewarePayload struct {
	Obj *Event
}

// SourceMiddlewareParams is passed to a SourceMiddleware.
type SourceMiddlewareParams struct {
	Payload      *MiddlewarePayload
	Integrations map[string]any
	// Next continues the chain. It must be called at most once and before the
	// middleware returns; a middleware that never calls it drops the event.
	Next func(p *MiddlewarePayload)
}

// SourceMiddleware transforms every outgoing event before any plugin sees it.
type SourceMiddleware func(params SourceMiddlewareParams)

// DestinationMiddlewareParams is passed to a DestinationMiddleware.
type DestinationMiddlewareParams struct {
	Payload     *MiddlewarePayload
	Integration string
	Next        func(p *MiddlewarePayload)
}

// DestinationMiddleware transforms events bound for one integration.
type DestinationMiddleware func(params DestinationMiddlewareParams)

// runSourceMiddlewares applies the chain to a copy of ev. It returns false
// when a middleware dropped the event.
func runSourceMiddlewares(chain []SourceMiddleware, ev *Event, integrations map[string]any) (*Event, bool) {
	payload := &MiddlewarePayload{Obj: ev.Clone()}
	for _, mw := range chain {
		next, ok := step(payload, func(nextFn func(*MiddlewarePayload)) {
			mw(SourceMiddlewareParams{Payload: payload, Integrations: integrations, Next: nextFn})
		})
		if !ok {
			return nil, false
		}
		payload = next
	}
	return payload.Obj, true
}

// runDestinationMiddlewares applies the chain registered for integration to
// a copy of ev.
func runDestinationMiddlewares(chain []DestinationMiddleware, integration string, ev *Event) (*Event, bool) {
	payload := &MiddlewarePayload{Obj: ev.Clone()}
	for _, mw := range chain {
		next, ok := step(payload, func(nextFn func(*MiddlewarePayload)) {
			mw(DestinationMiddlewareParams{Payload: payload, Integration: integration, Next: nextFn})
		})
		if !ok {
			return nil, false
		}
		payload = next
	}
	return payload.Obj, true
}

func step(current *MiddlewarePayload, invoke func(next func(*MiddlewarePayload))) (*MiddlewarePayload, bool) {
	var (
		called bool
		out    *MiddlewarePayload
	)
	invoke(func(p *MiddlewarePayload) {
		if called {
			return
		}
		called = true
		out = p
	})
	if !called {
		return nil, false
	}
	if out == nil || out.Obj == nil {
		out = current
	}
	return out, true
}
