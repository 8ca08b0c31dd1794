// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/metrics"
	"github.com/tomtom215/tidewatch/internal/models"
)

// Source is the observation log as seen by the archiver.
// *obslog.Log implements it.
type Source interface {
	SinceN(ctx context.Context, t time.Time, limit int) ([]models.Observation, error)
	Alerts(ctx context.Context, since time.Time, limit int) ([]models.AlertEvent, error)
}

// Archiver periodically copies new observations and alerts from the
// observation log into the archive.
type Archiver struct {
	db        *DB
	source    Source
	interval  time.Duration
	batchSize int

	// Clock is replaced in tests.
	Clock func() time.Time
}

// NewArchiver creates an archiver.
func NewArchiver(db *DB, source Source, interval time.Duration, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Archiver{
		db:        db,
		source:    source,
		interval:  interval,
		batchSize: batchSize,
		Clock:     time.Now,
	}
}

// Serve runs archive passes until ctx is cancelled. A failed pass is
// logged and retried at the next tick.
func (a *Archiver) Serve(ctx context.Context) error {
	log := logging.WithComponent("archive")
	log.Info().Dur("interval", a.interval).Msg("Archiver started")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if n, err := a.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Archive pass failed")
		} else if n > 0 {
			log.Debug().Int("rows", n).Msg("Archive pass complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce copies everything newer than the archive's high-water marks.
// Observations are read in pages of batchSize. Each page starts at the
// newest timestamp already copied, so records sharing that timestamp are
// offered again and skipped by the primary key.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	cursor, err := a.db.LastObservationTime(ctx)
	if err != nil {
		return 0, err
	}

	total, limit := 0, a.batchSize
	for {
		page, err := a.source.SinceN(ctx, cursor, limit)
		if err != nil {
			return total, fmt.Errorf("read observation log: %w", err)
		}
		if len(page) == 0 {
			break
		}
		n, err := a.db.InsertObservations(ctx, page)
		if err != nil {
			return total, err
		}
		total += n
		if len(page) < limit {
			break
		}
		last := page[len(page)-1].Timestamp
		if last.Equal(cursor) {
			// A full page sharing one timestamp: widen until it moves.
			limit *= 2
			continue
		}
		cursor, limit = last, a.batchSize
	}

	lastAlert, err := a.db.LastAlertTime(ctx)
	if err != nil {
		return total, err
	}
	alerts, err := a.source.Alerts(ctx, lastAlert, 0)
	if err != nil {
		return total, fmt.Errorf("read alert audit: %w", err)
	}
	n, err := a.db.InsertAlerts(ctx, alerts)
	if err != nil {
		return total, err
	}
	total += n

	metrics.RecordArchiveRun(total, a.Clock())
	return total, nil
}
