package extensions

import (
	"maps"

	"github.com/GoCodeAlone/modular-segment/internal/playground/store"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
)

// RequiresCurrencyKey is the context flag asking for the selected currency.
const RequiresCurrencyKey = "requiresCurrency"

// CurrencyInjectorName is the plugin name.
const CurrencyInjectorName = "Currency Injector"

type currencyInjector struct {
	plugin
	store *store.State
}

// CurrencyInjector builds an enrichment plugin that sets properties.currency
// on track events whose context has requiresCurrency set to true. The flag is
// removed from the context either way.
func CurrencyInjector(fc analytics.FactoryContext) (sdk.Plugin, error) {
	s, err := lookup[*store.State](fc.App, store.ServiceName)
	if err != nil {
		return nil, err
	}
	return &currencyInjector{
		plugin: plugin{name: CurrencyInjectorName, kind: sdk.PluginTypeEnrichment, version: "1.0"},
		store:  s,
	}, nil
}

func (p *currencyInjector) Track(c *sdk.Context) (*sdk.Context, error) {
	ev := c.Event
	if ev.Context == nil {
		return c, nil
	}

	if required, ok := ev.Context[RequiresCurrencyKey].(bool); ok && required {
		props := maps.Clone(ev.Properties)
		if props == nil {
			props = sdk.Properties{}
		}
		props["currency"] = string(p.store.SelectedCurrency())
		ev.Properties = props
	}

	rest := maps.Clone(ev.Context)
	delete(rest, RequiresCurrencyKey)
	ev.Context = rest
	return c, nil
}
