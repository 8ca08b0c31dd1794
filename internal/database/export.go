// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tomtom215/tidewatch/internal/metrics"
)

// csvHeader matches the wave log format operators already use in
// spreadsheets.
var csvHeader = []string{"timestamp", "date", "time", "metric", "peak_y", "status", "degraded"}

// ExportCSV writes observations at or after since to w, oldest first.
// status is the calibration level when present, otherwise the
// classification. Returns the number of data rows written.
func (db *DB) ExportCSV(ctx context.Context, w io.Writer, since time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	n, err := db.exportCSV(ctx, w, since)
	metrics.RecordDBQuery("export_csv", time.Since(start), err)
	return n, err
}

func (db *DB) exportCSV(ctx context.Context, w io.Writer, since time.Time) (int, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ts, metric, peak_y, coalesce(nullif(level, ''), upper(classification)), degraded
		FROM observations
		WHERE ts >= ?
		ORDER BY ts, sequence`, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("query export: %w", err)
	}
	defer closeWithLog(rows, "rows")

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	for rows.Next() {
		var (
			ts       time.Time
			metric   float64
			peakY    sql.NullFloat64
			status   string
			degraded bool
		)
		if err := rows.Scan(&ts, &metric, &peakY, &status, &degraded); err != nil {
			return n, fmt.Errorf("scan export row: %w", err)
		}
		local := ts.In(db.location)
		peak := ""
		if peakY.Valid {
			peak = strconv.FormatFloat(peakY.Float64, 'f', 0, 64)
		}
		record := []string{
			local.Format(time.RFC3339),
			local.Format("2006-01-02"),
			local.Format("15:04:05"),
			strconv.FormatFloat(metric, 'f', 3, 64),
			peak,
			status,
			strconv.FormatBool(degraded),
		}
		if err := cw.Write(record); err != nil {
			return n, fmt.Errorf("write row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate export: %w", err)
	}
	cw.Flush()
	return n, cw.Error()
}
