// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/surgilog/internal/domain/analytics"
	"github.com/okian/surgilog/internal/domain/lifecycle"
	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RecordService runs record transitions on behalf of an actor.
type RecordService interface {
	// CreateRecord creates a record. A non-empty idempotencyKey makes retries
	// return the first record; replayed reports that case.
	CreateRecord(ctx context.Context, actor types.Actor, req lifecycle.CreateRequest, idempotencyKey string) (rec model.Record, replayed bool, err error)
	GetRecord(ctx context.Context, actor types.Actor, id string) (model.Record, error)
	SubmitSelfAssessment(ctx context.Context, actor types.Actor, req lifecycle.SelfAssessmentRequest) (model.Record, error)
	SubmitReview(ctx context.Context, actor types.Actor, req lifecycle.ReviewRequest) (model.Record, error)
	CancelRecord(ctx context.Context, actor types.Actor, req lifecycle.CancelRequest) (model.Record, error)
	DeleteRecord(ctx context.Context, actor types.Actor, req lifecycle.DeleteRequest) (model.Record, error)
}

// AnalyticsService serves the dashboard projections.
type AnalyticsService interface {
	Trend(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.TrendPoint, error)
	ScaleHistory(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.ScalePoint, error)
	Distribution(ctx context.Context, actor types.Actor, scope analytics.Scope) ([]analytics.DistributionRow, error)
	Dashboard(ctx context.Context, actor types.Actor, scope analytics.Scope) (analytics.Dashboard, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecordService
	AnalyticsService
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	recordsHandler   *RecordsHandler
	analyticsHandler *AnalyticsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		recordsHandler:   NewRecordsHandler(deps),
		analyticsHandler: NewAnalyticsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	rh := s.recordsHandler
	mux.HandleFunc("POST /records", MetricsMiddleware(rh.HandleCreate, "records_create"))
	mux.HandleFunc("GET /records/{id}", MetricsMiddleware(rh.HandleGet, "records_get"))
	mux.HandleFunc("DELETE /records/{id}", MetricsMiddleware(rh.HandleDelete, "records_delete"))
	mux.HandleFunc("POST /records/{id}/self-assessment", MetricsMiddleware(rh.HandleSelfAssessment, "records_self_assessment"))
	mux.HandleFunc("POST /records/{id}/review", MetricsMiddleware(rh.HandleReview, "records_review"))
	mux.HandleFunc("POST /records/{id}/cancel", MetricsMiddleware(rh.HandleCancel, "records_cancel"))

	ah := s.analyticsHandler
	mux.HandleFunc("GET /analytics/trend", MetricsMiddleware(ah.HandleTrend, "analytics_trend"))
	mux.HandleFunc("GET /analytics/summary-scale", MetricsMiddleware(ah.HandleScaleHistory, "analytics_summary_scale"))
	mux.HandleFunc("GET /analytics/distribution", MetricsMiddleware(ah.HandleDistribution, "analytics_distribution"))
	mux.HandleFunc("GET /analytics/dashboard", MetricsMiddleware(ah.HandleDashboard, "analytics_dashboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError maps a domain error kind to its HTTP status. Unknown errors
// are reported as 500 without their message.
func writeKindError(w http.ResponseWriter, err error) {
	kind := model.KindName(err)
	switch kind {
	case "validation_failed":
		writeError(w, http.StatusBadRequest, kind, err)
	case "forbidden":
		writeError(w, http.StatusForbidden, kind, err)
	case "not_found":
		writeError(w, http.StatusNotFound, kind, err)
	case "invalid_state":
		writeError(w, http.StatusConflict, kind, err)
	case "conflict":
		writeError(w, http.StatusPreconditionFailed, kind, err)
	default:
		writeError(w, http.StatusInternalServerError, kind, nil)
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.WrapKind(op, ErrBadRequest, fmt.Errorf("decode body: %w", err))
	}
	return nil
}
