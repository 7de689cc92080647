package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// maxQueuedEvents caps the delivery queue. The oldest events are dropped
// once the collection API has been unreachable for long enough to fill it.
const maxQueuedEvents = 1000

// batchDestination is the built-in destination that queues events and posts
// them to the collection API in batches. Batches go out when FlushAt events
// are queued, on a fixed schedule, and on Close.
type batchDestination struct {
	writeKey string
	endpoint string
	client   *http.Client
	logger   Logger
	flushAt  int
	interval time.Duration
	maxQueue int

	mu     sync.Mutex
	queue  []*Event
	sched  *cron.Cron
	loaded atomic.Bool
	sent   atomic.Int64
}

type batchPayload struct {
	Batch  []*Event `json:"batch"`
	SentAt string   `json:"sentAt"`
}

func newBatchDestination(writeKey, apiHost string, client *http.Client, logger Logger, flushAt int, interval time.Duration) *batchDestination {
	if flushAt <= 0 {
		flushAt = DefaultFlushAt
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &batchDestination{
		writeKey: writeKey,
		endpoint: batchEndpoint(apiHost),
		client:   client,
		logger:   logger,
		flushAt:  flushAt,
		interval: interval,
		maxQueue: maxQueuedEvents,
	}
}

func batchEndpoint(apiHost string) string {
	if apiHost == "" {
		apiHost = DefaultAPIHost
	}
	apiHost = strings.TrimRight(apiHost, "/")
	if !strings.Contains(apiHost, "://") {
		apiHost = "https://" + apiHost
	}
	return apiHost + "/batch"
}

func (d *batchDestination) Name() string     { return SegmentIntegration }
func (d *batchDestination) Type() PluginType { return PluginTypeDestination }
func (d *batchDestination) Version() string  { return "1.0.0" }
func (d *batchDestination) IsLoaded() bool   { return d.loaded.Load() }

func (d *batchDestination) Load(_ context.Context, _ *Analytics) error {
	d.sched = cron.New()
	d.sched.Schedule(cron.Every(d.interval), cron.FuncJob(func() {
		if err := d.Flush(context.Background()); err != nil {
			d.logger.Warn("Scheduled flush failed", "error", err)
		}
	}))
	d.sched.Start()
	d.loaded.Store(true)
	return nil
}

func (d *batchDestination) Track(c *Context) (*Context, error)    { return d.enqueue(c) }
func (d *batchDestination) Identify(c *Context) (*Context, error) { return d.enqueue(c) }
func (d *batchDestination) Page(c *Context) (*Context, error)     { return d.enqueue(c) }
func (d *batchDestination) Group(c *Context) (*Context, error)    { return d.enqueue(c) }
func (d *batchDestination) Alias(c *Context) (*Context, error)    { return d.enqueue(c) }

func (d *batchDestination) enqueue(c *Context) (*Context, error) {
	d.mu.Lock()
	d.queue = append(d.queue, c.Event)
	d.trimLocked()
	full := len(d.queue) >= d.flushAt
	d.mu.Unlock()

	if full {
		go func() {
			if err := d.Flush(context.Background()); err != nil {
				d.logger.Warn("Batch flush failed", "error", err)
			}
		}()
	}
	return c, nil
}

// trimLocked drops the oldest events beyond maxQueue. d.mu must be held.
func (d *batchDestination) trimLocked() {
	if over := len(d.queue) - d.maxQueue; over > 0 {
		d.queue = slices.Clone(d.queue[over:])
		d.logger.Warn("Delivery queue full, dropping oldest events", "dropped", over)
	}
}

// Flush posts every queued event. Events are put back at the head of the
// queue when the request may succeed later (transport errors, 429, 5xx);
// a batch the collection API rejects outright is dropped.
func (d *batchDestination) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := d.post(ctx, batch); err != nil {
		if errors.Is(err, ErrBatchRejected) {
			d.logger.Error("Dropping rejected batch", "events", len(batch), "error", err)
			return err
		}
		d.mu.Lock()
		d.queue = append(batch, d.queue...)
		d.trimLocked()
		d.mu.Unlock()
		return err
	}

	d.sent.Add(int64(len(batch)))
	d.logger.Debug("Delivered batch", "events", len(batch))
	return nil
}

func (d *batchDestination) post(ctx context.Context, batch []*Event) error {
	body, err := json.Marshal(batchPayload{Batch: batch, SentAt: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("%w: encode batch: %w", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(d.writeKey, "")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
		resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: status %d", ErrDeliveryFailed, ErrBatchRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrDeliveryFailed, resp.StatusCode)
	}
}

// Pending returns the number of queued events.
func (d *batchDestination) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops the flush schedule and drains the queue.
func (d *batchDestination) Close(ctx context.Context) error {
	if d.sched != nil {
		stopped := d.sched.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.Flush(ctx)
}
