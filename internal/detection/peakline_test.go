// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/stream"
)

func testPeakLineConfig() config.PeakLineConfig {
	return config.PeakLineConfig{
		GradientThreshold: 40,
		MinEdgeFraction:   0.25,
		Calibration: []config.CalibrationPoint{
			{Y: 280, Height: 0.5, Level: "LOW"},
			{Y: 250, Height: 1.25, Level: "MEDIUM"},
			{Y: 230, Height: 2.5, Level: "HIGH"},
			{Y: 210, Height: 4.0, Level: "VERY_HIGH"},
			{Y: 180, Height: 6.0, Level: "EXTREME"},
		},
	}
}

// seaFrame is dark sky above crestRow and bright foam from crestRow+1 down.
func seaFrame(crestRow int) stream.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 64, 320))
	for y := 0; y < 320; y++ {
		c := color.RGBA{R: 20, G: 30, B: 40, A: 255}
		if y > crestRow {
			c = color.RGBA{R: 220, G: 230, B: 235, A: 255}
		}
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return stream.Frame{Image: img}
}

func TestPeakLineAnalyzer(t *testing.T) {
	t.Parallel()

	a, err := NewPeakLineAnalyzer(testPeakLineConfig())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		crest     int
		wantM     float64
		wantLevel string
	}{
		{crest: 230, wantM: 2.5, wantLevel: "HIGH"},
		{crest: 240, wantM: 1.875, wantLevel: "MEDIUM"},
		{crest: 280, wantM: 0.5, wantLevel: "LOW"},
		{crest: 300, wantM: 0.5, wantLevel: "LOW"},
		{crest: 210, wantM: 4.0, wantLevel: "VERY_HIGH"},
		{crest: 100, wantM: 6.0, wantLevel: "EXTREME"},
	}

	for _, tt := range tests {
		m, err := a.Analyze(context.Background(), seaFrame(tt.crest))
		if err != nil {
			t.Errorf("crest %d: Analyze error = %v", tt.crest, err)
			continue
		}
		if math.Abs(m.Metric-tt.wantM) > 1e-9 {
			t.Errorf("crest %d: metric = %v, want %v", tt.crest, m.Metric, tt.wantM)
		}
		if got := m.Metadata["level"]; got != tt.wantLevel {
			t.Errorf("crest %d: level = %v, want %v", tt.crest, got, tt.wantLevel)
		}
		if got := m.Metadata["peak_y"]; got != tt.crest {
			t.Errorf("crest %d: peak_y = %v", tt.crest, got)
		}
	}
}

func TestPeakLineAnalyzerNoEdge(t *testing.T) {
	t.Parallel()

	a, _ := NewPeakLineAnalyzer(testPeakLineConfig())
	flat := stream.Frame{Image: image.NewGray(image.Rect(0, 0, 32, 32))}
	if _, err := a.Analyze(context.Background(), flat); !errors.Is(err, ErrNoEdge) {
		t.Errorf("flat frame error = %v, want ErrNoEdge", err)
	}

	if _, err := a.Analyze(context.Background(), stream.Frame{}); err == nil {
		t.Error("nil image analyzed without error")
	}
}

func TestPeakLineAnalyzerROI(t *testing.T) {
	t.Parallel()

	cfg := testPeakLineConfig()
	cfg.ROIX, cfg.ROIY, cfg.ROIWidth, cfg.ROIHeight = 0, 250, 64, 60

	a, _ := NewPeakLineAnalyzer(cfg)
	// Crest at 230 lies above the region; inside it the frame is uniform.
	if _, err := a.Analyze(context.Background(), seaFrame(230)); !errors.Is(err, ErrNoEdge) {
		t.Errorf("crest outside ROI error = %v, want ErrNoEdge", err)
	}
	m, err := a.Analyze(context.Background(), seaFrame(270))
	if err != nil {
		t.Fatalf("crest inside ROI: %v", err)
	}
	if got := m.Metadata["peak_y"]; got != 270 {
		t.Errorf("peak_y = %v, want 270", got)
	}
}

func TestNewPeakLineAnalyzerRejectsShortCalibration(t *testing.T) {
	t.Parallel()

	cfg := testPeakLineConfig()
	cfg.Calibration = cfg.Calibration[:1]
	if _, err := NewPeakLineAnalyzer(cfg); err == nil {
		t.Error("single calibration point accepted")
	}
}
