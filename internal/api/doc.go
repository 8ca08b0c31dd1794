// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package api provides the read-only HTTP API for Tidewatch.

Every JSON endpoint returns the models.APIResponse envelope:

	{"status":"success","data":...,"metadata":{"timestamp":"...","query_time_ms":1}}

Routes:

	GET /api/v1/health/live           process liveness
	GET /api/v1/health/ready          200 while running or degraded, else 503
	GET /api/v1/status                pipeline status snapshot
	GET /api/v1/observations          ?window=15m | ?since=&limit= | ?limit=
	GET /api/v1/observations/latest   newest observation
	GET /api/v1/alerts                delivery audit trail (?since=&limit=)
	GET /api/v1/alerts/events         dispatched alert events
	GET /api/v1/quake/latest          latest BMKG bulletin
	GET /api/v1/archive/summary       hourly DuckDB summary
	GET /api/v1/archive/export.csv    CSV export
	GET /api/v1/ws                    websocket live feed
	GET /metrics                      Prometheus

Middleware follows the chi ecosystem: chi RequestID and Recoverer,
go-chi/cors, go-chi/httprate per route group, and Prometheus request
metrics labelled by route pattern.
*/
package api
