// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidewatch_events_published_total",
			Help: "Events published to the bus by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_events_breaker_state",
			Help: "Event bus circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
