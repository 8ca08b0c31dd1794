// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/metrics"
	"github.com/tomtom215/tidewatch/internal/models"
)

// InsertObservations copies observations into the archive. Rows already
// present are skipped. Returns the number of rows written.
func (db *DB) InsertObservations(ctx context.Context, obs []models.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	n, err := db.insertObservations(ctx, obs)
	metrics.RecordDBQuery("insert_observations", time.Since(start), err)
	return n, err
}

func (db *DB) insertObservations(ctx context.Context, obs []models.Observation) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO observations
			(id, ts, sequence, metric, baseline, classification, degraded, analyzer, peak_y, level, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer closeWithLog(stmt, "statement")

	written := 0
	for i := range obs {
		o := &obs[i]
		var peakY sql.NullFloat64
		if v, ok := o.MetaFloat("peak_y"); ok {
			peakY = sql.NullFloat64{Float64: v, Valid: true}
		}
		var meta sql.NullString
		if len(o.Metadata) > 0 {
			b, err := json.Marshal(o.Metadata)
			if err != nil {
				return 0, fmt.Errorf("encode metadata for %s: %w", o.ID, err)
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}

		res, err := stmt.ExecContext(ctx,
			o.ID, o.Timestamp.UTC(), o.Sequence, o.Metric, o.Baseline,
			string(o.Classification), o.Degraded, o.Analyzer, peakY, o.MetaString("level"), meta)
		if err != nil {
			return 0, fmt.Errorf("insert observation %s: %w", o.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// InsertAlerts copies alert events into the archive. Rows already present
// are skipped.
func (db *DB) InsertAlerts(ctx context.Context, alerts []models.AlertEvent) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	written := 0
	var err error
	for i := range alerts {
		a := &alerts[i]
		var res sql.Result
		res, err = db.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO alert_events
				(id, ts, severity, source, title, observation_id, metric, channels)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TriggeredAt.UTC(), string(a.Severity), string(a.Source), a.Title,
			a.ObservationID, a.Metric, strings.Join(a.Channels, ","))
		if err != nil {
			err = fmt.Errorf("insert alert %s: %w", a.ID, err)
			break
		}
		if n, rerr := res.RowsAffected(); rerr == nil {
			written += int(n)
		}
	}
	metrics.RecordDBQuery("insert_alerts", time.Since(start), err)
	return written, err
}

// LastObservationTime returns the newest archived observation timestamp, or
// the zero time when the archive is empty.
func (db *DB) LastObservationTime(ctx context.Context) (time.Time, error) {
	return db.lastTime(ctx, "observations")
}

// LastAlertTime returns the newest archived alert timestamp.
func (db *DB) LastAlertTime(ctx context.Context) (time.Time, error) {
	return db.lastTime(ctx, "alert_events")
}

func (db *DB) lastTime(ctx context.Context, table string) (time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var ts sql.NullTime
	// table is one of two constants.
	err := db.conn.QueryRowContext(ctx, "SELECT max(ts) FROM "+table).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last %s timestamp: %w", table, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}

// CountObservations returns the archived row count.
func (db *DB) CountObservations(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT count(*) FROM observations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return n, nil
}
