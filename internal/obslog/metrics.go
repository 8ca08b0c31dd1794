// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package obslog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	appendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidewatch_obslog_appends_total",
		Help: "Observations durably written to the log",
	})

	appendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_obslog_append_failures_total",
		Help: "Failed durable writes by outcome (buffered or lost)",
	}, []string{"outcome"})

	bufferedObservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidewatch_obslog_buffered_observations",
		Help: "Observations held in memory awaiting a durable write",
	})

	writeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tidewatch_obslog_write_latency_seconds",
		Help:    "Durable write latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	gcRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidewatch_obslog_gc_runs_total",
		Help: "BadgerDB value log GC runs",
	})

	gcLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tidewatch_obslog_gc_latency_seconds",
		Help:    "BadgerDB value log GC latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
