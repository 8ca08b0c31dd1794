// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"math"
	"time"
)

// Baseline is a time-decayed exponentially weighted mean and variance.
// Each update weights the new sample by 1 - exp(-dt/window), so a reading
// one window old contributes about 37% of its original weight.
type Baseline struct {
	window  time.Duration
	mean    float64
	varnc   float64
	samples int
	last    time.Time
}

// NewBaseline creates an empty baseline.
func NewBaseline(window time.Duration) *Baseline {
	return &Baseline{window: window}
}

// Update folds a sample taken at t into the estimate. Samples older than
// the previous one are ignored.
func (b *Baseline) Update(x float64, t time.Time) {
	if b.samples == 0 {
		b.mean, b.varnc, b.samples, b.last = x, 0, 1, t
		return
	}
	if t.Before(b.last) {
		return
	}

	dt := t.Sub(b.last)
	alpha := 1 - math.Exp(-float64(dt)/float64(b.window))
	if b.window <= 0 {
		alpha = 1
	}

	diff := x - b.mean
	incr := alpha * diff
	b.mean += incr
	b.varnc = (1 - alpha) * (b.varnc + diff*incr)
	b.samples++
	b.last = t
}

// Mean returns the current estimate; zero before the first sample.
func (b *Baseline) Mean() float64 { return b.mean }

// StdDev returns the weighted standard deviation.
func (b *Baseline) StdDev() float64 { return math.Sqrt(b.varnc) }

// Samples returns the number of samples folded in.
func (b *Baseline) Samples() int { return b.samples }

// SetWindow changes the decay window for later updates.
func (b *Baseline) SetWindow(w time.Duration) { b.window = w }

// Reset discards all samples.
func (b *Baseline) Reset() {
	*b = Baseline{window: b.window}
}
