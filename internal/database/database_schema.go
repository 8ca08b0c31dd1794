// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
database_schema.go - Archive schema

Tables:
  - observations: one row per observation copied from the observation log
  - alert_events: one row per dispatched alert event

All timestamps are stored as UTC TIMESTAMP. Rows are keyed by the
observation log IDs and inserted with INSERT OR IGNORE, so copying an
overlapping range twice is harmless.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id VARCHAR PRIMARY KEY,
		ts TIMESTAMP NOT NULL,
		sequence UBIGINT,
		metric DOUBLE,
		baseline DOUBLE,
		classification VARCHAR NOT NULL,
		degraded BOOLEAN NOT NULL DEFAULT false,
		analyzer VARCHAR,
		peak_y DOUBLE,
		level VARCHAR,
		metadata VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_ts ON observations(ts)`,
	`CREATE TABLE IF NOT EXISTS alert_events (
		id VARCHAR PRIMARY KEY,
		ts TIMESTAMP NOT NULL,
		severity VARCHAR NOT NULL,
		source VARCHAR NOT NULL,
		title VARCHAR,
		observation_id VARCHAR,
		metric DOUBLE,
		channels VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events(ts)`,
}

// initialize creates tables and indexes.
func (db *DB) initialize() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range schemaQueries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
