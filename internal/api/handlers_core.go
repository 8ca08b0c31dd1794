// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/tidewatch/internal/models"
)

const (
	defaultObservationLimit = 100
	maxObservationLimit     = 10000
	defaultAuditLimit       = 200
	defaultAuditWindow      = 24 * time.Hour
)

// observationsQuery selects one of three modes: a trailing window, an
// absolute start with a limit, or the last N observations.
type observationsQuery struct {
	Window time.Duration `query:"window" validate:"gte=0,lte=168h"`
	Since  time.Time     `query:"since"`
	Limit  int           `query:"limit" validate:"gte=0,lte=10000"`
}

// auditQuery bounds alert and delivery listings.
type auditQuery struct {
	Since time.Time `query:"since"`
	Limit int       `query:"limit" validate:"gte=1,lte=10000"`
}

// Status returns the pipeline status snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondData(w, h.status.Status(), start, nil)
}

// Observations lists stored observations in ascending time order.
//
//	GET /api/v1/observations?window=15m
//	GET /api/v1/observations?since=2026-01-02T03:04:05Z&limit=500
//	GET /api/v1/observations?limit=50
func (h *Handler) Observations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, apiErr := parseObservationsQuery(r, h.Clock())
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	var (
		obs []models.Observation
		err error
	)
	switch {
	case q.Window > 0:
		obs, err = h.store.Recent(r.Context(), q.Window)
	case !q.Since.IsZero():
		obs, err = h.store.SinceN(r.Context(), q.Since, q.Limit)
	default:
		obs, err = h.store.RecentN(r.Context(), q.Limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read observations", err)
		return
	}
	if obs == nil {
		obs = []models.Observation{}
	}
	respondData(w, obs, start, intPtr(len(obs)))
}

func parseObservationsQuery(r *http.Request, now time.Time) (observationsQuery, *models.APIError) {
	var q observationsQuery
	values := r.URL.Query()

	if raw := strings.TrimSpace(values.Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return q, &models.APIError{Code: "VALIDATION_ERROR", Message: "window must be a duration such as 15m"}
		}
		q.Window = d
	}
	since, err := getTimeParam(r, "since", now, time.Time{})
	if err != nil {
		return q, &models.APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	q.Since = since

	limit, ok := getIntParam(r, "limit", defaultObservationLimit)
	if !ok {
		return q, &models.APIError{Code: "VALIDATION_ERROR", Message: "limit must be an integer"}
	}
	if limit == 0 {
		limit = defaultObservationLimit
	}
	q.Limit = limit

	if q.Window > 0 && !q.Since.IsZero() {
		return q, &models.APIError{Code: "VALIDATION_ERROR", Message: "window and since are mutually exclusive"}
	}
	if apiErr := validateRequest(&q); apiErr != nil {
		return q, apiErr
	}
	return q, nil
}

// LatestObservation returns the newest observation or 404 NOT_FOUND.
func (h *Handler) LatestObservation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	obs, ok := h.store.Latest()
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No observations recorded yet", nil)
		return
	}
	respondData(w, obs, start, nil)
}

func parseAuditQuery(r *http.Request, now time.Time) (auditQuery, *models.APIError) {
	var q auditQuery
	since, err := getTimeParam(r, "since", now, now.Add(-defaultAuditWindow))
	if err != nil {
		return q, &models.APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	limit, ok := getIntParam(r, "limit", defaultAuditLimit)
	if !ok {
		return q, &models.APIError{Code: "VALIDATION_ERROR", Message: "limit must be an integer"}
	}
	q.Since, q.Limit = since, limit
	if apiErr := validateRequest(&q); apiErr != nil {
		return q, apiErr
	}
	return q, nil
}

// Deliveries lists the delivery audit trail, newest last.
//
//	GET /api/v1/alerts?since=6h&limit=100
func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, apiErr := parseAuditQuery(r, h.Clock())
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	attempts, err := h.store.Deliveries(r.Context(), q.Since, q.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read delivery audit", err)
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	respondData(w, attempts, start, intPtr(len(attempts)))
}

// AlertEvents lists dispatched alert events.
func (h *Handler) AlertEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q, apiErr := parseAuditQuery(r, h.Clock())
	if apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	events, err := h.store.Alerts(r.Context(), q.Since, q.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read alert events", err)
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}
	respondData(w, events, start, intPtr(len(events)))
}

// QuakeLatest returns the most recent BMKG bulletin seen by the poller.
func (h *Handler) QuakeLatest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.quake == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Earthquake feed is not enabled", nil)
		return
	}
	ev, ok := h.quake.Latest()
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No earthquake bulletin received yet", nil)
		return
	}
	respondData(w, ev, start, nil)
}
