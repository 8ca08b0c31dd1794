// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package database is the optional DuckDB analytics archive.
//
// The observation log stays the source of truth. An Archiver copies new
// observations and alert events into DuckDB on an interval so long-range
// questions can be answered with SQL:
//
//   - archive.go: idempotent batch inserts (INSERT OR IGNORE on id)
//   - archiver.go: supervised copy loop, resumes from the newest archived row
//   - summary.go: hourly wave height aggregates and alert counts
//   - export.go: CSV export in the monitored location's time zone
//   - database_schema.go: tables and indexes
//
// Every exported query records its duration in the
// tidewatch_archive_query_duration_seconds histogram.
package database
