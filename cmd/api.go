package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/calendar"
	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
	"github.com/sells-group/itinerary-cli/internal/reconcile"
)

// maxBodyBytes bounds request bodies; raw text is truncated by the engine
// long before this.
const maxBodyBytes = 4 << 20

var validate = validator.New()

type createTripRequest struct {
	Title    string `json:"title" validate:"max=200"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type renameTripRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type ingestRequest struct {
	RawText string              `json:"raw_text"`
	Client  model.ClientContext `json:"client"`
	Mode    string              `json:"mode" validate:"omitempty,oneof=reconcile patch rebuild"`
}

type resolveRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

type itemStateRequest struct {
	State model.ItemState `json:"state" validate:"required,oneof=PROPOSED CONFIRMED DISMISSED"`
}

type reconstructRequest struct {
	RawText string              `json:"raw_text"`
	Client  model.ClientContext `json:"client"`
}

type outcomeResponse struct {
	Status string            `json:"status"`
	Result reconcile.Outcome `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// api serves the engine over HTTP.
type api struct {
	engine    *reconcile.Engine
	collector *monitoring.Collector
}

// newRouter builds the HTTP API for env. origins configures CORS.
func newRouter(env *appEnv, origins []string) http.Handler {
	a := &api{
		engine:    env.Engine,
		collector: monitoring.NewCollector(env.Store),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))
	r.Get("/stats", a.stats)

	r.Route("/trips", func(r chi.Router) {
		r.Post("/", a.createTrip)
		r.Get("/", a.listTrips)
		r.Route("/{tripID}", func(r chi.Router) {
			r.Get("/", a.getTrip)
			r.Patch("/", a.renameTrip)
			r.Post("/ingest", a.ingest)
			r.Post("/items/{itemID}/state", a.setItemState)
			r.Get("/calendar.ics", a.exportCalendar)
		})
	})
	r.Post("/pending-actions/{pendingID}/resolve", a.resolve)
	r.Post("/reconstruct", a.reconstruct)

	return r
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "hours must be a positive integer"})
			return
		}
		hours = n
	}
	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) createTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trip, err := a.engine.CreateTrip(r.Context(), req.Title, req.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (a *api) listTrips(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	trips, err := a.engine.ListTrips(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if trips == nil {
		trips = []model.TripSummary{}
	}
	writeJSON(w, http.StatusOK, trips)
}

func (a *api) getTrip(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.FetchTrip(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) renameTrip(w http.ResponseWriter, r *http.Request) {
	var req renameTripRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trip, err := a.engine.RenameTrip(r.Context(), chi.URLParam(r, "tripID"), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (a *api) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := a.engine.Ingest(r.Context(), reconcile.IngestRequest{
		TripID:  chi.URLParam(r, "tripID"),
		RawText: req.RawText,
		Client:  req.Client,
		Mode:    model.IngestMode(req.Mode),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Status: out.Status(), Result: out})
}

func (a *api) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := a.engine.ResolvePendingAction(r.Context(), chi.URLParam(r, "pendingID"), req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Status: out.Status(), Result: out})
}

func (a *api) setItemState(w http.ResponseWriter, r *http.Request) {
	var req itemStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	it, err := a.engine.SetItemState(r.Context(), chi.URLParam(r, "tripID"), chi.URLParam(r, "itemID"), req.State)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *api) exportCalendar(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.FetchTrip(r.Context(), chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trip.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(calendar.Export(view.Trip, view.Items, time.Now())))
}

func (a *api) reconstruct(w http.ResponseWriter, r *http.Request) {
	var req reconstructRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := a.engine.Reconstruct(r.Context(), req.RawText, req.Client)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(reconcile.KindValidation)})
		return false
	}
	return true
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch reconcile.KindOf(err) {
	case reconcile.KindInput, reconcile.KindValidation:
		return http.StatusBadRequest
	case reconcile.KindNotFound:
		return http.StatusNotFound
	case reconcile.KindStaleResolution:
		return http.StatusConflict
	case reconcile.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: string(reconcile.KindOf(err))}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: internal error", zap.Error(err))
		resp.Error = "internal error"
	}
	var e *reconcile.Error
	if errors.As(err, &e) && status != http.StatusInternalServerError {
		resp.Error = e.Message
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
