// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/stream"
)

var epoch = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

// scriptedAnalyzer returns metrics in order; NaN entries become errors.
type scriptedAnalyzer struct {
	metrics []float64
	i       int
}

func (s *scriptedAnalyzer) Name() string { return "scripted" }

func (s *scriptedAnalyzer) Analyze(_ context.Context, _ stream.Frame) (Measurement, error) {
	m := s.metrics[s.i]
	s.i++
	if math.IsNaN(m) {
		return Measurement{}, errors.New("corrupt frame")
	}
	return Measurement{Metric: m}, nil
}

func testThresholds() Thresholds {
	return Thresholds{
		NormalBand:         0.3,
		ElevatedThreshold:  1.0,
		CriticalThreshold:  4.0,
		BaselineWindow:     time.Minute,
		SustainedDuration:  3 * time.Second,
		MinBaselineSamples: 10,
		DegradedAfter:      3,
	}
}

// run feeds metrics one second apart and returns the classifications.
func run(d *Detector, n int) []models.Observation {
	out := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		frame := stream.Frame{CapturedAt: epoch.Add(time.Duration(i) * time.Second), Seq: uint64(i + 1)}
		out = append(out, d.Analyze(context.Background(), frame))
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDetectorSurgeScenario(t *testing.T) {
	t.Parallel()

	metrics := append(repeat(1.05, 15), 2.5, 2.5, 2.5, 2.5, 8.0)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())
	obs := run(d, len(metrics))

	for i := 0; i < 18; i++ {
		if obs[i].Classification != models.ClassNormal {
			t.Errorf("frame %d classification = %s, want normal", i+1, obs[i].Classification)
		}
	}
	if obs[18].Classification != models.ClassElevated {
		t.Errorf("frame 19 classification = %s, want elevated", obs[18].Classification)
	}
	if obs[19].Classification != models.ClassCritical {
		t.Errorf("frame 20 classification = %s, want critical", obs[19].Classification)
	}
	if obs[19].CriticalRun != 1 {
		t.Errorf("frame 20 critical run = %d, want 1", obs[19].CriticalRun)
	}
	if math.Abs(obs[18].Baseline-1.05) > 1e-9 {
		t.Errorf("baseline during surge = %v, want 1.05 (breaches excluded)", obs[18].Baseline)
	}
}

func TestDetectorDebounce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tail    []float64
		wantMax models.Classification
	}{
		{"single elevated spike", []float64{2.5, 1.0, 1.0, 1.0, 1.0}, models.ClassNormal},
		{"spike every other frame", []float64{2.5, 1.0, 2.5, 1.0, 2.5, 1.0}, models.ClassNormal},
		{"single critical spike", []float64{8.0, 1.0}, models.ClassCritical},
		{"within band", repeat(1.2, 30), models.ClassNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := append(repeat(1.0, 12), tt.tail...)
			d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())
			got := models.ClassNormal
			for _, o := range run(d, len(metrics)) {
				if o.Classification.Rank() > got.Rank() {
					got = o.Classification
				}
			}
			if got != tt.wantMax {
				t.Errorf("highest classification = %s, want %s", got, tt.wantMax)
			}
		})
	}
}

func TestDetectorCriticalBeforeBaseline(t *testing.T) {
	t.Parallel()

	d := NewDetector(&scriptedAnalyzer{metrics: []float64{8.0}}, testThresholds())
	if got := run(d, 1)[0].Classification; got != models.ClassCritical {
		t.Errorf("cold-start critical reading classified %s, want critical", got)
	}
}

func TestDetectorCriticalSustained(t *testing.T) {
	t.Parallel()

	th := testThresholds()
	th.CriticalSustained = 2 * time.Second
	metrics := append(repeat(1.0, 12), 8.0, 8.0, 8.0)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, th)
	obs := run(d, len(metrics))

	if got := obs[12].Classification; got == models.ClassCritical {
		t.Error("first critical reading classified critical despite sustain requirement")
	}
	if got := obs[14].Classification; got != models.ClassCritical {
		t.Errorf("third critical reading classified %s, want critical", got)
	}
}

func TestDetectorCriticalRunAndDrop(t *testing.T) {
	t.Parallel()

	metrics := append(repeat(1.0, 12), 8.0, 8.0, 8.0, 2.5)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())
	obs := run(d, len(metrics))

	if obs[14].CriticalRun != 3 {
		t.Errorf("critical run = %d, want 3", obs[14].CriticalRun)
	}
	// The breach began 3s earlier, so the dip lands straight in elevated.
	if got := obs[15].Classification; got != models.ClassElevated {
		t.Errorf("dip after critical classified %s, want elevated", got)
	}
	if obs[15].CriticalRun != 0 {
		t.Errorf("critical run after dip = %d, want 0", obs[15].CriticalRun)
	}
}

func TestDetectorAmbientStep(t *testing.T) {
	t.Parallel()

	// A tide-like step held for ten baseline windows.
	metrics := append(repeat(1.0, 12), repeat(2.1, 600)...)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())
	obs := run(d, len(metrics))

	if got := obs[15].Classification; got != models.ClassElevated {
		t.Errorf("step after 3s classified %s, want elevated", got)
	}
	if got := obs[70].Baseline; got != 1.0 {
		t.Errorf("baseline within first window of step = %v, want 1.0", got)
	}
	for i := len(obs) - 60; i < len(obs); i++ {
		if obs[i].Classification != models.ClassNormal {
			t.Fatalf("frame %d after a held step classified %s, want normal", i+1, obs[i].Classification)
		}
	}
	last := obs[len(obs)-1]
	if math.Abs(last.Baseline-2.1) > 0.01 {
		t.Errorf("baseline after held step = %v, want 2.1", last.Baseline)
	}
	if out, _ := last.Metadata["outside_band"].(bool); out {
		t.Error("held step still reported outside the normal band")
	}
}

func TestDetectorDegraded(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	metrics := append(repeat(1.0, 3), nan, nan, nan, 1.0)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())

	var obs []models.Observation
	for i := range metrics {
		frame := stream.Frame{CapturedAt: epoch.Add(time.Duration(i) * time.Second)}
		obs = append(obs, d.Analyze(context.Background(), frame))
		if i == 5 && !d.Degraded() {
			t.Error("Degraded() = false after 3 failed analyses")
		}
	}

	o := obs[3]
	if !o.Degraded || o.Classification != models.ClassNormal {
		t.Errorf("failed analysis = (degraded %v, %s), want (true, normal)", o.Degraded, o.Classification)
	}
	if o.Metric != 1.0 {
		t.Errorf("degraded metric = %v, want baseline 1.0", o.Metric)
	}
	if o.MetaString("error") == "" {
		t.Error("degraded observation carries no error metadata")
	}
	if d.Degraded() {
		t.Error("Degraded() = true after a successful analysis")
	}
}

func TestDetectorTuneAndReset(t *testing.T) {
	t.Parallel()

	metrics := append(repeat(1.0, 12), 3.5, 1.0)
	d := NewDetector(&scriptedAnalyzer{metrics: metrics}, testThresholds())
	run(d, 12)

	th := testThresholds()
	th.CriticalThreshold = 3.0
	d.Tune(th)
	if got := d.Analyze(context.Background(), stream.Frame{CapturedAt: epoch.Add(12 * time.Second)}); got.Classification != models.ClassCritical {
		t.Errorf("after lowering critical threshold classified %s, want critical", got.Classification)
	}

	d.Reset()
	s := d.Stats()
	if s.BaselineSamples != 0 || s.CriticalRun != 0 || s.BaselineReady {
		t.Errorf("Stats after Reset = %+v, want empty baseline", s)
	}
}

func TestBaselineDecay(t *testing.T) {
	t.Parallel()

	b := NewBaseline(time.Minute)
	b.Update(1.0, epoch)
	if b.Mean() != 1.0 {
		t.Fatalf("first sample mean = %v, want 1.0", b.Mean())
	}

	// After one window the old value keeps exp(-1) of its weight.
	b.Update(2.0, epoch.Add(time.Minute))
	want := 1.0 + (1-math.Exp(-1))*1.0
	if math.Abs(b.Mean()-want) > 1e-9 {
		t.Errorf("mean = %v, want %v", b.Mean(), want)
	}
	if b.StdDev() <= 0 {
		t.Error("stddev not positive after two distinct samples")
	}

	b.Update(100, epoch)
	if b.Samples() != 2 {
		t.Errorf("out-of-order sample accepted, samples = %d", b.Samples())
	}
}
