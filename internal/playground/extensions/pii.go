package extensions

import (
	"github.com/GoCodeAlone/modular-segment/internal/playground/hasher"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// piiProperties are hashed whenever they hold a string.
var piiProperties = []string{"email", "first_name", "last_name"}

// PIIHasher builds a source middleware that hashes personal properties before
// any plugin sees them.
func PIIHasher(fc analytics.FactoryContext) (sdk.SourceMiddleware, error) {
	h, err := lookup[*hasher.Hasher](fc.App, hasher.ServiceName)
	if err != nil {
		return nil, err
	}

	return func(p sdk.SourceMiddlewareParams) {
		props := p.Payload.Obj.Properties
		for _, key := range piiProperties {
			if v, ok := props[key].(string); ok {
				props[key] = h.Hash(v)
			}
		}
		p.Next(p.Payload)
	}, nil
}
