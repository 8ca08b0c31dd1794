// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_notify_sends_total",
		Help: "Provider send calls by channel and outcome code",
	}, []string{"channel", "outcome"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidewatch_notify_send_duration_seconds",
		Help:    "Provider send latency",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"channel"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tidewatch_notify_breaker_state",
		Help: "Circuit breaker state per channel (0=closed, 1=half-open, 2=open)",
	}, []string{"channel"})
)
