package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/internal/playground/feed"
	"github.com/GoCodeAlone/modular-segment/internal/playground/store"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Analytics is the part of the analytics facade the playground drives.
type Analytics interface {
	Initialize()
	State() analytics.State
	Identify(ctx context.Context, userID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Track(ctx context.Context, event string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Page(ctx context.Context, category, name string, props sdk.Properties, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Group(ctx context.Context, groupID string, traits sdk.Traits, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Alias(ctx context.Context, userID, previousID string, opts *sdk.Options, cb sdk.Callback) *sdk.Future[*sdk.Context]
	Reset() *sdk.Future[struct{}]
}

type handler struct {
	analytics    Analytics
	feed         *feed.Feed
	store        *store.State
	logger       modular.Logger
	awaitTimeout time.Duration
}

// NewHandler builds the playground router.
func NewHandler(a Analytics, f *feed.Feed, s *store.State, logger modular.Logger, awaitTimeout time.Duration) http.Handler {
	h := &handler{
		analytics:    a,
		feed:         f,
		store:        s,
		logger:       logger,
		awaitTimeout: awaitTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", h.status)
	r.Post("/initialize", h.initialize)
	r.Post("/identify", h.identify)
	r.Post("/track", h.track)
	r.Post("/page", h.page)
	r.Post("/group", h.group)
	r.Post("/alias", h.alias)
	r.Post("/reset", h.reset)
	r.Get("/events", h.listEvents)
	r.Delete("/events", h.clearEvents)
	r.Get("/currency", h.getCurrency)
	r.Put("/currency", h.setCurrency)
	return r
}

type callOptions struct {
	Context      map[string]any `json:"context,omitempty"`
	Integrations map[string]any `json:"integrations,omitempty"`
}

func (o callOptions) options() *sdk.Options {
	if o.Context == nil && o.Integrations == nil {
		return nil
	}
	return &sdk.Options{Context: o.Context, Integrations: o.Integrations}
}

type identifyRequest struct {
	callOptions
	UserID string     `json:"userId"`
	Traits sdk.Traits `json:"traits,omitempty"`
}

type trackRequest struct {
	callOptions
	Event      string         `json:"event"`
	Properties sdk.Properties `json:"properties,omitempty"`
}

type pageRequest struct {
	callOptions
	Category   string         `json:"category,omitempty"`
	Name       string         `json:"name,omitempty"`
	Properties sdk.Properties `json:"properties,omitempty"`
}

type groupRequest struct {
	callOptions
	GroupID string     `json:"groupId"`
	Traits  sdk.Traits `json:"traits,omitempty"`
}

type aliasRequest struct {
	callOptions
	UserID     string `json:"userId"`
	PreviousID string `json:"previousId,omitempty"`
}

type failure struct {
	Plugin string `json:"plugin"`
	Error  string `json:"error"`
}

type callResponse struct {
	Status   string     `json:"status"`
	Dropped  bool       `json:"dropped,omitempty"`
	Event    *sdk.Event `json:"event,omitempty"`
	Failures []failure  `json:"failures,omitempty"`
}

type statusResponse struct {
	Analytics analytics.State `json:"analytics"`
	Currency  store.Currency  `json:"currency"`
	Events    int             `json:"events"`
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Analytics: h.analytics.State(),
		Currency:  h.store.SelectedCurrency(),
		Events:    h.feed.Len(),
	})
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	h.analytics.Initialize()
	writeJSON(w, http.StatusAccepted, h.analytics.State())
}

func (h *handler) identify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if !decode(w, r, &req) {
		return
	}
	h.await(w, r, h.analytics.Identify(context.WithoutCancel(r.Context()), req.UserID, req.Traits, req.options(), nil))
}

func (h *handler) track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	h.await(w, r, h.analytics.Track(context.WithoutCancel(r.Context()), req.Event, req.Properties, req.options(), nil))
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !decode(w, r, &req) {
		return
	}
	h.await(w, r, h.analytics.Page(context.WithoutCancel(r.Context()), req.Category, req.Name, req.Properties, req.options(), nil))
}

func (h *handler) group(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decode(w, r, &req) {
		return
	}
	h.await(w, r, h.analytics.Group(context.WithoutCancel(r.Context()), req.GroupID, req.Traits, req.options(), nil))
}

func (h *handler) alias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if !decode(w, r, &req) {
		return
	}
	h.await(w, r, h.analytics.Alias(context.WithoutCancel(r.Context()), req.UserID, req.PreviousID, req.options(), nil))
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.awaitTimeout)
	defer cancel()
	if _, err := h.analytics.Reset().Await(ctx); err != nil {
		writeJSON(w, http.StatusAccepted, callResponse{Status: "queued"})
		return
	}
	writeJSON(w, http.StatusOK, callResponse{Status: "reset"})
}

// await answers with the settled call, or 202 when it is still buffered
// behind a load once the await timeout has passed.
func (h *handler) await(w http.ResponseWriter, r *http.Request, f *sdk.Future[*sdk.Context]) {
	ctx, cancel := context.WithTimeout(r.Context(), h.awaitTimeout)
	defer cancel()

	c, err := f.Await(ctx)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		writeJSON(w, http.StatusAccepted, callResponse{Status: "queued"})
		return
	case err != nil:
		h.logger.Warn("Analytics call failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	resp := callResponse{Status: "dispatched", Dropped: c.Dropped(), Event: c.Event}
	for _, pf := range c.Failures() {
		resp.Failures = append(resp.Failures, failure{Plugin: pf.Plugin, Error: pf.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events := h.feed.Events()
	if events == nil {
		events = []cloudevents.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) clearEvents(w http.ResponseWriter, r *http.Request) {
	h.feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type currencyResponse struct {
	Currency  store.Currency   `json:"currency"`
	Supported []store.Currency `json:"supported"`
}

func (h *handler) getCurrency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currencyResponse{Currency: h.store.SelectedCurrency(), Supported: store.Currencies()})
}

func (h *handler) setCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency store.Currency `json:"currency"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.store.SetSelectedCurrency(req.Currency); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.getCurrency(w, r)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
