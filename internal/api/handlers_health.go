// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/tidewatch/internal/models"
)

// HealthLive reports that the process is up, regardless of pipeline state.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":   true,
			"version": h.version,
			"uptime":  time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// HealthReady answers 200 only while the pipeline is running or degraded.
// A starting or stopped pipeline answers 503 NOT_READY with the state.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()

	data := map[string]interface{}{
		"ready":            st.State.Serving(),
		"state":            st.State,
		"stream_connected": st.StreamConnected,
	}
	if len(st.DegradedReasons) > 0 {
		data["degraded_reasons"] = st.DegradedReasons
	}
	if h.archive != nil {
		data["archive_connected"] = h.archive.Ping(r.Context()) == nil
	}

	if !st.State.Serving() {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     data,
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error: &models.APIError{
				Code:    "NOT_READY",
				Message: "Pipeline is " + string(st.State),
			},
		})
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
