// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package obslog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tidewatch/internal/logging"
)

// RunGC reclaims value log space until BadgerDB reports nothing to rewrite.
func (l *Log) RunGC() error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrLogClosed
	}

	start := time.Now()
	defer func() {
		gcLatency.Observe(time.Since(start).Seconds())
		gcRuns.Inc()
	}()

	for {
		err := l.db.RunValueLogGC(l.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// Maintain runs GC every GCInterval and retries buffered observations
// every tick until ctx is done.
func (l *Log) Maintain(ctx context.Context) error {
	interval := l.cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	gcTicker := time.NewTicker(interval)
	defer gcTicker.Stop()
	flushTicker := time.NewTicker(5 * time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flushTicker.C:
			if l.Degraded() {
				if err := l.FlushBuffer(); err != nil {
					logging.Warn().Err(err).Int("buffered", l.BufferLen()).Msg("Buffered observations still pending")
				}
			}
		case <-gcTicker.C:
			if err := l.RunGC(); err != nil {
				if errors.Is(err, ErrLogClosed) {
					return err
				}
				logging.Error().Err(err).Msg("Observation log GC failed")
			}
		}
	}
}
