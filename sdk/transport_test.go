package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg+" "+fmt.Sprint(args...))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *recordingLogger) all() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func TestLoggingTransportMasksWriteKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	logger := &recordingLogger{}
	client := newHTTPClient(nil, logger, "supersecretkey")
	resp, err := client.Get(srv.URL + "/v1/projects/supersecretkey/settings")
	require.NoError(t, err)
	resp.Body.Close()

	out := logger.all()
	assert.Contains(t, out, "Outgoing request")
	assert.Contains(t, out, "Received response")
	assert.NotContains(t, out, "supersecretkey")
	assert.Contains(t, out, ObscureWriteKey("supersecretkey"))
}

func TestLoggingTransportLogsFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	logger := &recordingLogger{}
	client := newHTTPClient(&http.Client{}, logger, "k")
	_, err := client.Get(addr)
	require.Error(t, err)
	assert.Contains(t, logger.all(), "ERROR Request failed")
}

func TestUserIdentifyAndReset(t *testing.T) {
	u := newUser()
	anon := u.AnonymousID()
	require.NotEmpty(t, anon)

	u.identify("user-1", Traits{"plan": "pro"})
	u.identify("", Traits{"seats": 3})
	assert.Equal(t, "user-1", u.ID())
	assert.Equal(t, Traits{"plan": "pro", "seats": 3}, u.Traits())

	u.identify("user-2", Traits{"plan": "free"})
	assert.Equal(t, Traits{"plan": "free"}, u.Traits())

	u.reset()
	assert.Empty(t, u.ID())
	assert.Empty(t, u.Traits())
	assert.NotEqual(t, anon, u.AnonymousID())
}

func TestDispatchRecordsSpans(t *testing.T) {
	c := newCollector(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	b := NewBrowser(WithTracerProvider(tp))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	_, err := b.Load(context.Background(), testSettings(c), InitOptions{FlushAt: 1})
	require.NoError(t, err)

	_, err = await(t, b.Track(context.Background(), "Signed Up", nil, nil, nil))
	require.NoError(t, err)

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	span := spans[len(spans)-1]
	assert.Equal(t, "analytics.track", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("analytics.event_type", "track"))
}
