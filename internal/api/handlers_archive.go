// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/tidewatch/internal/cache"
	"github.com/tomtom215/tidewatch/internal/database"
	"github.com/tomtom215/tidewatch/internal/logging"
)

const (
	defaultSummaryWindow = 24 * time.Hour

	// Summaries are cached per minute of since; the archiver only writes
	// once per interval.
	summaryCacheTTL = time.Minute
)

// ArchiveSummary is the payload of GET /api/v1/archive/summary.
type ArchiveSummary struct {
	Since  time.Time                `json:"since"`
	Hours  []database.HourlySummary `json:"hours"`
	Alerts []database.SeverityCount `json:"alerts"`
}

// ArchiveSummary returns hourly wave statistics and alert counts.
//
//	GET /api/v1/archive/summary?since=48h
func (h *Handler) ArchiveSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Archive is not enabled", nil)
		return
	}
	now := h.Clock()
	since, err := getTimeParam(r, "since", now, now.Add(-defaultSummaryWindow))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	since = since.Truncate(time.Minute)
	key := cache.GenerateKey("ArchiveSummary", since.Unix())
	if v, ok := h.summaries.Get(key); ok {
		summary := v.(ArchiveSummary)
		respondData(w, summary, start, intPtr(len(summary.Hours)))
		return
	}

	hours, err := h.archive.HourlySummary(r.Context(), since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to summarise archive", err)
		return
	}
	alerts, err := h.archive.AlertCounts(r.Context(), since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count alerts", err)
		return
	}
	if hours == nil {
		hours = []database.HourlySummary{}
	}
	if alerts == nil {
		alerts = []database.SeverityCount{}
	}
	summary := ArchiveSummary{Since: since, Hours: hours, Alerts: alerts}
	h.summaries.Set(key, summary)
	respondData(w, summary, start, intPtr(len(hours)))
}

// ArchiveExportCSV streams archived observations as CSV.
//
//	GET /api/v1/archive/export.csv?since=2026-01-01T00:00:00Z
func (h *Handler) ArchiveExportCSV(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Archive is not enabled", nil)
		return
	}
	now := h.Clock()
	since, err := getTimeParam(r, "since", now, now.Add(-defaultSummaryWindow))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tidewatch-%s.csv"`, now.UTC().Format("20060102-150405")))
	w.Header().Set("Cache-Control", "no-store")

	n, err := h.archive.ExportCSV(r.Context(), w, since)
	if err != nil {
		// Headers and part of the body may already be written.
		logging.Ctx(r.Context()).Error().Err(err).Int("rows", n).Msg("CSV export failed")
		return
	}
	logging.Ctx(r.Context()).Debug().Int("rows", n).Time("since", since).Msg("CSV export complete")
}
