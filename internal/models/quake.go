// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package models

import (
	"time"
)

// QuakeEvent is one earthquake bulletin.
type QuakeEvent struct {
	// ID is the bulletin's origin time in RFC3339, unique per event.
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Magnitude   float64   `json:"magnitude"`
	DepthKm     float64   `json:"depth_km"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Region      string    `json:"region"`
	Potential   string    `json:"potential"`
	Felt        string    `json:"felt,omitempty"`
	ShakemapURL string    `json:"shakemap_url,omitempty"`

	// DistanceKm is the great-circle distance to the monitored location.
	DistanceKm float64 `json:"distance_km,omitempty"`
}
