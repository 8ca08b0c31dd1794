// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/tidewatch/internal/metrics"
)

// HourlySummary aggregates one hour of observations. Metric statistics
// cover conclusive observations only and are nil when the hour has none.
type HourlySummary struct {
	Hour      time.Time `json:"hour"`
	Count     int64     `json:"count"`
	MinMetric *float64  `json:"min_metric"`
	MaxMetric *float64  `json:"max_metric"`
	AvgMetric *float64  `json:"avg_metric"`
	Normal    int64     `json:"normal"`
	Elevated  int64     `json:"elevated"`
	Critical  int64     `json:"critical"`
	Degraded  int64     `json:"degraded"`
}

// HourlySummary returns per-hour aggregates for observations at or after
// since, oldest first.
func (db *DB) HourlySummary(ctx context.Context, since time.Time) ([]HourlySummary, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	out, err := db.hourlySummary(ctx, since)
	metrics.RecordDBQuery("hourly_summary", time.Since(start), err)
	return out, err
}

func (db *DB) hourlySummary(ctx context.Context, since time.Time) ([]HourlySummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			date_trunc('hour', ts) AS hour,
			count(*) AS total,
			min(metric) FILTER (WHERE NOT degraded),
			max(metric) FILTER (WHERE NOT degraded),
			avg(metric) FILTER (WHERE NOT degraded),
			count(*) FILTER (WHERE NOT degraded AND classification = 'normal'),
			count(*) FILTER (WHERE NOT degraded AND classification = 'elevated'),
			count(*) FILTER (WHERE NOT degraded AND classification = 'critical'),
			count(*) FILTER (WHERE degraded)
		FROM observations
		WHERE ts >= ?
		GROUP BY hour
		ORDER BY hour`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query hourly summary: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []HourlySummary
	for rows.Next() {
		var (
			s           HourlySummary
			mn, mx, avg sql.NullFloat64
		)
		if err := rows.Scan(&s.Hour, &s.Count, &mn, &mx, &avg,
			&s.Normal, &s.Elevated, &s.Critical, &s.Degraded); err != nil {
			return nil, fmt.Errorf("scan hourly summary: %w", err)
		}
		s.Hour = s.Hour.UTC()
		s.MinMetric = nullFloat(mn)
		s.MaxMetric = nullFloat(mx)
		s.AvgMetric = nullFloat(avg)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hourly summary: %w", err)
	}
	return out, nil
}

// SeverityCount is the number of archived alerts of one severity.
type SeverityCount struct {
	Severity string    `json:"severity"`
	Count    int64     `json:"count"`
	Last     time.Time `json:"last"`
}

// AlertCounts returns alert totals per severity since the given time.
func (db *DB) AlertCounts(ctx context.Context, since time.Time) ([]SeverityCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT severity, count(*), max(ts)
		FROM alert_events
		WHERE ts >= ?
		GROUP BY severity
		ORDER BY severity`, since.UTC())
	if err != nil {
		metrics.RecordDBQuery("alert_counts", time.Since(start), err)
		return nil, fmt.Errorf("query alert counts: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []SeverityCount
	for rows.Next() {
		var c SeverityCount
		if err := rows.Scan(&c.Severity, &c.Count, &c.Last); err != nil {
			return nil, fmt.Errorf("scan alert counts: %w", err)
		}
		c.Last = c.Last.UTC()
		out = append(out, c)
	}
	err = rows.Err()
	metrics.RecordDBQuery("alert_counts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("iterate alert counts: %w", err)
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
