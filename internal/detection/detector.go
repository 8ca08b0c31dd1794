// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/stream"
)

// Thresholds holds the live-tunable classification policy.
type Thresholds struct {
	NormalBand         float64
	ElevatedThreshold  float64
	CriticalThreshold  float64
	BaselineWindow     time.Duration
	SustainedDuration  time.Duration
	CriticalSustained  time.Duration
	MinBaselineSamples int
	DegradedAfter      int
}

// ThresholdsFrom extracts the tunable fields of the detector config.
func ThresholdsFrom(cfg *config.DetectorConfig) Thresholds {
	return Thresholds{
		NormalBand:         cfg.NormalBand,
		ElevatedThreshold:  cfg.ElevatedThreshold,
		CriticalThreshold:  cfg.CriticalThreshold,
		BaselineWindow:     cfg.BaselineWindow,
		SustainedDuration:  cfg.SustainedDuration,
		CriticalSustained:  cfg.CriticalSustained,
		MinBaselineSamples: cfg.MinBaselineSamples,
		DegradedAfter:      cfg.DegradedAfter,
	}
}

// Stats is a read-only view of detector state for the status endpoint.
type Stats struct {
	Analyzer            string    `json:"analyzer"`
	BaselineMean        float64   `json:"baseline_mean"`
	BaselineStdDev      float64   `json:"baseline_stddev"`
	BaselineSamples     int       `json:"baseline_samples"`
	BaselineReady       bool      `json:"baseline_ready"`
	ConsecutiveDegraded int       `json:"consecutive_degraded"`
	CriticalRun         int       `json:"critical_run"`
	Analyzed            uint64    `json:"analyzed"`
	LastAnalyzedAt      time.Time `json:"last_analyzed_at,omitempty"`
}

// Detector classifies frames against a rolling baseline.
type Detector struct {
	analyzer Analyzer

	mu       sync.RWMutex
	th       Thresholds
	baseline *Baseline

	elevatedSince time.Time // zero when not breaching
	criticalSince time.Time
	criticalRun   int
	degradedRun   int
	analyzed      uint64
	lastAt        time.Time
}

// NewDetector creates a Detector using analyzer for metric extraction.
func NewDetector(analyzer Analyzer, th Thresholds) *Detector {
	return &Detector{
		analyzer: analyzer,
		th:       th,
		baseline: NewBaseline(th.BaselineWindow),
	}
}

// Analyze extracts the metric from frame and classifies it. It never
// fails: analyzer errors yield a degraded normal observation.
func (d *Detector) Analyze(ctx context.Context, frame stream.Frame) models.Observation {
	m, err := d.analyzer.Analyze(ctx, frame)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.analyzed++
	d.lastAt = frame.CapturedAt

	obs := models.Observation{
		ID:             uuid.NewString(),
		Timestamp:      frame.CapturedAt,
		Sequence:       frame.Seq,
		Analyzer:       d.analyzer.Name(),
		Classification: models.ClassNormal,
		Baseline:       d.baseline.Mean(),
	}

	if err != nil {
		d.degradedRun++
		obs.Degraded = true
		obs.Metric = d.baseline.Mean()
		obs.CriticalRun = d.criticalRun
		obs.Metadata = map[string]interface{}{
			"error":                fmt.Errorf("%w: %v", ErrAnalyzerFailed, err).Error(),
			"consecutive_degraded": d.degradedRun,
		}
		logging.Warn().Err(err).
			Uint64("seq", frame.Seq).
			Int("consecutive", d.degradedRun).
			Msg("Frame analysis failed, recording inconclusive observation")
		return obs
	}
	d.degradedRun = 0

	obs.Metric = m.Metric
	obs.Metadata = m.Metadata
	if obs.Metadata == nil {
		obs.Metadata = map[string]interface{}{}
	}

	ready := d.baseline.Samples() >= d.th.MinBaselineSamples
	if ready {
		obs.Deviation = m.Metric - d.baseline.Mean()
	}
	obs.Metadata["baseline_ready"] = ready
	obs.Metadata["outside_band"] = ready && abs(obs.Deviation) > d.th.NormalBand

	obs.Classification = d.classify(&obs, ready)

	if obs.Classification == models.ClassCritical {
		d.criticalRun++
	} else {
		d.criticalRun = 0
	}
	obs.CriticalRun = d.criticalRun

	// Breaching readings stay out of the baseline until the breach has
	// lasted a full window; after that it is the new ambient level.
	if start := d.breachStart(); start.IsZero() || frame.CapturedAt.Sub(start) >= d.th.BaselineWindow {
		d.baseline.Update(m.Metric, frame.CapturedAt)
	}
	return obs
}

// breachStart returns the earliest active breach timer, or zero.
// Caller holds d.mu.
func (d *Detector) breachStart() time.Time {
	switch {
	case d.elevatedSince.IsZero():
		return d.criticalSince
	case d.criticalSince.IsZero() || d.elevatedSince.Before(d.criticalSince):
		return d.elevatedSince
	default:
		return d.criticalSince
	}
}

// classify applies the threshold and debounce policy and advances the
// breach timers. Caller holds d.mu.
func (d *Detector) classify(obs *models.Observation, ready bool) models.Classification {
	at := obs.Timestamp

	if obs.Metric >= d.th.CriticalThreshold {
		if d.criticalSince.IsZero() {
			d.criticalSince = at
		}
		if at.Sub(d.criticalSince) >= d.th.CriticalSustained {
			// Keep the elevated timer running so a dip below critical
			// falls straight back to elevated.
			if d.elevatedSince.IsZero() {
				d.elevatedSince = d.criticalSince
			}
			return models.ClassCritical
		}
	} else {
		d.criticalSince = time.Time{}
	}

	if !ready || obs.Deviation < d.th.ElevatedThreshold {
		if d.criticalSince.IsZero() {
			d.elevatedSince = time.Time{}
		}
		return models.ClassNormal
	}

	if d.elevatedSince.IsZero() {
		d.elevatedSince = at
	}
	if at.Sub(d.elevatedSince) >= d.th.SustainedDuration {
		return models.ClassElevated
	}
	return models.ClassNormal
}

// Degraded reports whether the last DegradedAfter observations were all
// inconclusive.
func (d *Detector) Degraded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.th.DegradedAfter > 0 && d.degradedRun >= d.th.DegradedAfter
}

// Tune replaces the thresholds. Breach timers and the baseline survive;
// the baseline window applies to later updates.
func (d *Detector) Tune(th Thresholds) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.th = th
	d.baseline.SetWindow(th.BaselineWindow)
	logging.Info().
		Float64("elevated", th.ElevatedThreshold).
		Float64("critical", th.CriticalThreshold).
		Dur("sustained", th.SustainedDuration).
		Msg("Detector thresholds updated")
}

// Thresholds returns the active thresholds.
func (d *Detector) Thresholds() Thresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.th
}

// Reset clears the baseline and every breach counter. The pipeline calls
// it at the start of each run, including supervisor restarts.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline.Reset()
	d.elevatedSince = time.Time{}
	d.criticalSince = time.Time{}
	d.criticalRun = 0
	d.degradedRun = 0
}

// Stats returns a snapshot of detector state.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{
		Analyzer:            d.analyzer.Name(),
		BaselineMean:        d.baseline.Mean(),
		BaselineStdDev:      d.baseline.StdDev(),
		BaselineSamples:     d.baseline.Samples(),
		BaselineReady:       d.baseline.Samples() >= d.th.MinBaselineSamples,
		ConsecutiveDegraded: d.degradedRun,
		CriticalRun:         d.criticalRun,
		Analyzed:            d.analyzed,
		LastAnalyzedAt:      d.lastAt,
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
