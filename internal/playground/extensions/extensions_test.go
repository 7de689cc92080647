package extensions

import (
	"testing"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/internal/playground/feed"
	"github.com/GoCodeAlone/modular-segment/internal/playground/hasher"
	"github.com/GoCodeAlone/modular-segment/internal/playground/store"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (l *testLogger) Debug(msg string, args ...any) {}
func (l *testLogger) Info(msg string, args ...any)  {}
func (l *testLogger) Warn(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) {}

type fixture struct {
	fc    analytics.FactoryContext
	feed  *feed.Feed
	store *store.State
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	app := modular.NewStdApplication(modular.NewStdConfigProvider(struct{}{}), &testLogger{})
	f := feed.New(0)
	s := store.New()
	require.NoError(t, app.RegisterService(hasher.ServiceName, hasher.New()))
	require.NoError(t, app.RegisterService(feed.ServiceName, f))
	require.NoError(t, app.RegisterService(store.ServiceName, s))
	return fixture{fc: analytics.FactoryContext{App: app, Logger: &testLogger{}}, feed: f, store: s}
}

func runSource(mw sdk.SourceMiddleware, ev *sdk.Event) (*sdk.Event, int) {
	calls := 0
	var out *sdk.Event
	mw(sdk.SourceMiddlewareParams{
		Payload: &sdk.MiddlewarePayload{Obj: ev},
		Next: func(p *sdk.MiddlewarePayload) {
			calls++
			out = p.Obj
		},
	})
	return out, calls
}

func TestPIIHasherHashesStringProperties(t *testing.T) {
	fx := newFixture(t)
	mw, err := PIIHasher(fx.fc)
	require.NoError(t, err)

	out, calls := runSource(mw, &sdk.Event{
		Type: sdk.EventTypeTrack,
		Properties: sdk.Properties{
			"email":      "ada@example.com",
			"first_name": "Ada",
			"last_name":  42,
			"plan":       "pro",
		},
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "[HASHED]_YWRhQGV4YW1wbGUuY29t", out.Properties["email"])
	assert.Equal(t, "[HASHED]_QWRh", out.Properties["first_name"])
	assert.Equal(t, 42, out.Properties["last_name"])
	assert.Equal(t, "pro", out.Properties["plan"])
}

func TestPIIHasherPassesEventsWithoutProperties(t *testing.T) {
	fx := newFixture(t)
	mw, err := PIIHasher(fx.fc)
	require.NoError(t, err)

	ev := &sdk.Event{Type: sdk.EventTypeIdentify}
	out, calls := runSource(mw, ev)
	assert.Equal(t, 1, calls)
	assert.Same(t, ev, out)
}

func TestCurrencyInjector(t *testing.T) {
	fx := newFixture(t)
	p, err := CurrencyInjector(fx.fc)
	require.NoError(t, err)
	assert.Equal(t, CurrencyInjectorName, p.Name())
	assert.Equal(t, sdk.PluginTypeEnrichment, p.Type())
	assert.Equal(t, "1.0", p.Version())
	require.NoError(t, fx.store.SetSelectedCurrency(store.EUR))

	tracker, ok := p.(sdk.Tracker)
	require.True(t, ok)

	tests := []struct {
		name         string
		context      map[string]any
		wantCurrency any
	}{
		{name: "required", context: map[string]any{RequiresCurrencyKey: true, "page": "cart"}, wantCurrency: "EUR"},
		{name: "not required", context: map[string]any{RequiresCurrencyKey: false}},
		{name: "not a bool", context: map[string]any{RequiresCurrencyKey: "yes"}},
		{name: "no context"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.context
			c := &sdk.Context{Event: &sdk.Event{Type: sdk.EventTypeTrack, Event: "Checkout", Context: tt.context}}
			out, err := tracker.Track(c)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCurrency, out.Event.Properties["currency"])
			assert.NotContains(t, out.Event.Context, RequiresCurrencyKey)
			if original != nil {
				assert.Contains(t, original, RequiresCurrencyKey)
			}
		})
	}
}

func TestLiveFeedInterceptor(t *testing.T) {
	fx := newFixture(t)
	p, err := LiveFeedInterceptor(fx.fc)
	require.NoError(t, err)
	assert.Equal(t, LiveFeedInterceptorName, p.Name())
	assert.Equal(t, sdk.PluginTypeAfter, p.Type())
	assert.True(t, p.IsLoaded())

	_, err = p.(sdk.Tracker).Track(&sdk.Context{Event: &sdk.Event{Type: sdk.EventTypeTrack, MessageID: "t"}})
	require.NoError(t, err)
	_, err = p.(sdk.Identifier).Identify(&sdk.Context{Event: &sdk.Event{Type: sdk.EventTypeIdentify, MessageID: "i"}})
	require.NoError(t, err)
	_, err = p.(sdk.Pager).Page(&sdk.Context{Event: &sdk.Event{Type: sdk.EventTypePage, MessageID: "p"}})
	require.NoError(t, err)

	_, isGrouper := p.(sdk.Grouper)
	assert.False(t, isGrouper)

	events := fx.feed.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "p", events[0].Subject())
	assert.Equal(t, "t", events[2].Subject())
}

func TestFactoriesNeedServices(t *testing.T) {
	_, err := PIIHasher(analytics.FactoryContext{})
	assert.ErrorIs(t, err, ErrNoApplication)

	app := modular.NewStdApplication(modular.NewStdConfigProvider(struct{}{}), &testLogger{})
	_, err = CurrencyInjector(analytics.FactoryContext{App: app})
	assert.Error(t, err)
	_, err = LiveFeedInterceptor(analytics.FactoryContext{App: app})
	assert.Error(t, err)
}
