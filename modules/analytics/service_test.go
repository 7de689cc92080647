package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitFuture[T any](t *testing.T, f *sdk.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestServiceAutomaticModeLoadsOnConstruction(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeAutomatic)
	client, gated, _ := newTestClient(t, cfg)

	svc := NewService(client, cfg, client.logger)
	assert.Eventually(t, svc.Initialized, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), gated.calls.Load())
}

func TestServiceManualModeWaitsForInitialize(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeManual)
	client, gated, logger := newTestClient(t, cfg)

	svc := NewService(client, cfg, logger)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, svc.Initialized())
	assert.Equal(t, int32(0), gated.calls.Load())
	assert.NotEmpty(t, logger.find("DEBUG", "Analytics waiting for manual initialization"))

	svc.Initialize()
	assert.Eventually(t, svc.Initialized, 2*time.Second, 10*time.Millisecond)

	svc.Initialize()
	assert.Equal(t, int32(1), gated.calls.Load())
	assert.True(t, svc.State().Initialized)
}

func TestServiceForwardsCallsMadeBeforeInitialize(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeManual)
	cfg.FlushAt = 2
	client, _, logger := newTestClient(t, cfg)
	svc := NewService(client, cfg, logger)

	readyCalled := make(chan struct{})
	ready := svc.WhenReady(func(*sdk.Analytics) { close(readyCalled) })
	identify := svc.Identify(context.Background(), "user-1", sdk.Traits{"email": "ada@example.com"}, nil, nil)
	track := svc.Track(context.Background(), "Signed Up", sdk.Properties{"plan": "pro"}, nil, nil)

	select {
	case <-track.Done():
		t.Fatal("track settled before initialize")
	default:
	}

	svc.Initialize()

	_, err := awaitFuture(t, ready)
	require.NoError(t, err)
	<-readyCalled

	idCtx, err := awaitFuture(t, identify)
	require.NoError(t, err)
	assert.Equal(t, "user-1", idCtx.Event.UserID)

	trackCtx, err := awaitFuture(t, track)
	require.NoError(t, err)
	assert.Equal(t, "Signed Up", trackCtx.Event.Event)
	assert.Equal(t, "user-1", trackCtx.Event.UserID)

	require.Eventually(t, func() bool { return len(srv.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	received := srv.received()
	assert.Equal(t, sdk.EventTypeIdentify, received[0].Type)
	assert.Equal(t, sdk.EventTypeTrack, received[1].Type)
}

func TestServiceForwardsEveryCall(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeAutomatic)
	client, gated, logger := newTestClient(t, cfg)
	svc := NewService(client, cfg, logger)
	require.Eventually(t, svc.Initialized, 2*time.Second, 10*time.Millisecond)
	ctx := context.Background()

	page, err := awaitFuture(t, svc.Page(ctx, "Docs", "Install", nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, sdk.EventTypePage, page.Event.Type)
	assert.Equal(t, "Install", page.Event.Name)

	group, err := awaitFuture(t, svc.Group(ctx, "org-9", sdk.Traits{"name": "Acme"}, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "org-9", group.Event.GroupID)

	alias, err := awaitFuture(t, svc.Alias(ctx, "user-2", "anon-1", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "anon-1", alias.Event.PreviousID)

	_, err = awaitFuture(t, svc.Identify(ctx, "user-2", nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-2", gated.Instance().User().ID())

	_, err = awaitFuture(t, svc.Reset())
	require.NoError(t, err)
	assert.Empty(t, gated.Instance().User().ID())

	_, err = awaitFuture(t, svc.Track(ctx, "", nil, nil, nil))
	assert.ErrorIs(t, err, sdk.ErrEmptyEventName)
}

type fakeLink struct {
	href    string
	onClick func()
}

func (l *fakeLink) Href() string      { return l.href }
func (l *fakeLink) OnClick(fn func()) { l.onClick = fn }

func TestServiceTrackLink(t *testing.T) {
	srv := newSegmentServer(t)
	cfg := testConfig(srv, InitializationModeAutomatic)
	client, _, logger := newTestClient(t, cfg)
	svc := NewService(client, cfg, logger)

	link := &fakeLink{href: "https://example.com/pricing"}
	bound := svc.TrackLink(context.Background(), []sdk.Link{link}, sdk.StaticName("Pricing Clicked"), nil, nil)
	_, err := awaitFuture(t, bound)
	require.NoError(t, err)
	require.NotNil(t, link.onClick)

	link.onClick()
	require.Eventually(t, func() bool { return len(srv.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Pricing Clicked", srv.received()[0].Event)
}
