// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package metrics holds the process-wide Prometheus collectors that do not
belong to a single subsystem.

Metrics are exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Pipeline:
  - tidewatch_frames_processed_total (counter)
  - tidewatch_observations_total (counter), labels: classification
  - tidewatch_wave_metric, tidewatch_wave_baseline (gauges)
  - tidewatch_pipeline_state (gauge), labels: state
  - tidewatch_stream_connected (gauge), tidewatch_stream_disconnects_total (counter)

Archive:
  - tidewatch_archive_query_duration_seconds (histogram), labels: operation
  - tidewatch_archive_query_errors_total (counter), labels: operation
  - tidewatch_archive_rows_total (counter)
  - tidewatch_archive_last_success_timestamp (gauge)

API and WebSocket:
  - tidewatch_api_requests_total, tidewatch_api_request_duration_seconds
  - tidewatch_api_active_requests
  - tidewatch_websocket_connections, tidewatch_websocket_messages_total,
    tidewatch_websocket_dropped_total

Delivery, observation log and event bus collectors live next to the code
that updates them (notify, alerting, obslog, events) and register with the
same default registry.

# Usage

	metrics.RecordObservation(string(obs.Classification), obs.Degraded, obs.Metric, obs.Baseline)
	metrics.RecordAPIRequest(r.Method, route, "200", time.Since(start))
*/
package metrics
