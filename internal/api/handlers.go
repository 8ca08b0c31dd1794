// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tomtom215/tidewatch/internal/cache"
	"github.com/tomtom215/tidewatch/internal/database"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/pipeline"
)

// StatusProvider is satisfied by *pipeline.Controller.
type StatusProvider interface {
	Status() pipeline.Status
}

// ObservationStore is satisfied by *obslog.Log.
type ObservationStore interface {
	Recent(ctx context.Context, window time.Duration) ([]models.Observation, error)
	SinceN(ctx context.Context, t time.Time, limit int) ([]models.Observation, error)
	RecentN(ctx context.Context, n int) ([]models.Observation, error)
	Latest() (models.Observation, bool)
	Alerts(ctx context.Context, since time.Time, limit int) ([]models.AlertEvent, error)
	Deliveries(ctx context.Context, since time.Time, limit int) ([]models.DeliveryAttempt, error)
}

// Archive is satisfied by *database.DB.
type Archive interface {
	Ping(ctx context.Context) error
	HourlySummary(ctx context.Context, since time.Time) ([]database.HourlySummary, error)
	AlertCounts(ctx context.Context, since time.Time) ([]database.SeverityCount, error)
	ExportCSV(ctx context.Context, w io.Writer, since time.Time) (int, error)
}

// QuakeSource is satisfied by *quake.Poller.
type QuakeSource interface {
	Latest() (models.QuakeEvent, bool)
}

// Handler serves the JSON API. Archive, quake and websocket are optional;
// their endpoints answer 503 UNAVAILABLE when nil.
type Handler struct {
	status    StatusProvider
	store     ObservationStore
	archive   Archive
	quake     QuakeSource
	websocket http.Handler
	version   string
	startTime time.Time
	summaries *cache.Cache

	// Clock is replaced in tests.
	Clock func() time.Time
}

// HandlerDeps groups the Handler's collaborators.
type HandlerDeps struct {
	Status    StatusProvider
	Store     ObservationStore
	Archive   Archive
	Quake     QuakeSource
	WebSocket http.Handler
	Version   string
}

// NewHandler creates a Handler. Status and Store are required.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		status:    deps.Status,
		store:     deps.Store,
		archive:   deps.Archive,
		quake:     deps.Quake,
		websocket: deps.WebSocket,
		version:   deps.Version,
		startTime: time.Now(),
		summaries: cache.New(summaryCacheTTL),
		Clock:     time.Now,
	}
}

// WebSocket upgrades to the live feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.websocket == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Live feed is not enabled", nil)
		return
	}
	h.websocket.ServeHTTP(w, r)
}
