package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/surgilog/internal/domain/analytics"
	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
)

// AnalyticsHandler serves the dashboard projections.
type AnalyticsHandler struct {
	svc AnalyticsService
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

type trendResponse struct {
	Points []analytics.TrendPoint `json:"points"`
}

type scaleHistoryResponse struct {
	History []analytics.ScalePoint `json:"history"`
}

type distributionResponse struct {
	Rows []analytics.DistributionRow `json:"rows"`
}

// HandleTrend handles GET /analytics/trend.
func (h *AnalyticsHandler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, actor types.Actor, scope analytics.Scope) (any, error) {
		points, err := h.svc.Trend(r.Context(), actor, scope)
		return trendResponse{Points: points}, err
	})
}

// HandleScaleHistory handles GET /analytics/summary-scale.
func (h *AnalyticsHandler) HandleScaleHistory(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, actor types.Actor, scope analytics.Scope) (any, error) {
		history, err := h.svc.ScaleHistory(r.Context(), actor, scope)
		return scaleHistoryResponse{History: history}, err
	})
}

// HandleDistribution handles GET /analytics/distribution.
func (h *AnalyticsHandler) HandleDistribution(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, actor types.Actor, scope analytics.Scope) (any, error) {
		rows, err := h.svc.Distribution(r.Context(), actor, scope)
		return distributionResponse{Rows: rows}, err
	})
}

// HandleDashboard handles GET /analytics/dashboard.
func (h *AnalyticsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(r *http.Request, actor types.Actor, scope analytics.Scope) (any, error) {
		return h.svc.Dashboard(r.Context(), actor, scope)
	})
}

func (h *AnalyticsHandler) serve(w http.ResponseWriter, r *http.Request,
	project func(*http.Request, types.Actor, analytics.Scope) (any, error),
) {
	withActor(func(w http.ResponseWriter, r *http.Request, actor types.Actor) {
		scope, err := parseScope(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		out, err := project(r, actor, scope)
		if err != nil {
			writeKindError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})(w, r)
}

func parseScope(r *http.Request) (analytics.Scope, error) {
	const op = "api.analytics_scope"
	q := r.URL.Query()
	scope := analytics.Scope{
		ResidentID:  strings.TrimSpace(q.Get("resident")),
		TeacherID:   strings.TrimSpace(q.Get("teacher")),
		SurgeryName: strings.TrimSpace(q.Get("surgery")),
	}
	if raw := q.Get("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return analytics.Scope{}, model.WrapKind(op, ErrBadRequest,
				fmt.Errorf("last must be a positive integer, got %q", raw))
		}
		scope.Last = n
	}
	return scope, nil
}
