// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	FramesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidewatch_frames_processed_total",
			Help: "Frames analyzed by the pipeline",
		},
	)

	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidewatch_observations_total",
			Help: "Observations produced by classification",
		},
		[]string{"classification"}, // "normal", "elevated", "critical", "degraded"
	)

	WaveMetric = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_wave_metric",
			Help: "Most recent conclusive wave metric",
		},
	)

	WaveBaseline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_wave_baseline",
			Help: "Most recent rolling baseline",
		},
	)

	PipelineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidewatch_pipeline_state",
			Help: "Pipeline state (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_stream_connected",
			Help: "Whether the video stream is connected",
		},
	)

	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidewatch_stream_disconnects_total",
			Help: "Stream disconnections observed by the pipeline",
		},
	)

	// Archive Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidewatch_archive_query_duration_seconds",
			Help:    "Duration of DuckDB archive queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidewatch_archive_query_errors_total",
			Help: "DuckDB archive query errors",
		},
		[]string{"operation"},
	)

	ArchiveRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidewatch_archive_rows_total",
			Help: "Observations copied into the analytics archive",
		},
	)

	ArchiveLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_archive_last_success_timestamp",
			Help: "Unix time of the last successful archive run",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidewatch_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidewatch_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_api_active_requests",
			Help: "HTTP API requests in flight",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_websocket_connections",
			Help: "Connected websocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidewatch_websocket_messages_total",
			Help: "Messages broadcast to websocket clients by type",
		},
		[]string{"type"},
	)

	WSDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidewatch_websocket_dropped_total",
			Help: "Messages dropped for slow websocket clients",
		},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidewatch_app_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidewatch_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

var pipelineStates = []string{"starting", "running", "degraded", "stopped"}

// RecordObservation records one pipeline observation.
func RecordObservation(classification string, degraded bool, metric, baseline float64) {
	FramesProcessed.Inc()
	if degraded {
		ObservationsTotal.WithLabelValues("degraded").Inc()
		return
	}
	ObservationsTotal.WithLabelValues(classification).Inc()
	WaveMetric.Set(metric)
	WaveBaseline.Set(baseline)
}

// SetPipelineState marks state as current.
func SetPipelineState(state string) {
	for _, s := range pipelineStates {
		v := 0.0
		if s == state {
			v = 1
		}
		PipelineState.WithLabelValues(s).Set(v)
	}
}

// SetStreamConnected records stream connectivity.
func SetStreamConnected(connected bool) {
	if connected {
		StreamConnected.Set(1)
		return
	}
	StreamConnected.Set(0)
	StreamReconnects.Inc()
}

// RecordDBQuery records an archive query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordArchiveRun records a successful archive pass.
func RecordArchiveRun(rows int, at time.Time) {
	ArchiveRows.Add(float64(rows))
	ArchiveLastRun.Set(float64(at.Unix()))
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetAppInfo publishes build information.
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}
