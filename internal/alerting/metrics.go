// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_alerts_dispatched_total",
		Help: "Alert events dispatched by severity",
	}, []string{"severity"})

	alertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_alerts_suppressed_total",
		Help: "Alert events suppressed by cooldown",
	}, []string{"severity"})

	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_delivery_attempts_total",
		Help: "Delivery attempts by channel and status",
	}, []string{"channel", "status"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tidewatch_delivery_queue_depth",
		Help: "Jobs waiting per channel queue",
	}, []string{"channel"})
)
