// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/stream"
)

// ErrAnalyzerFailed wraps every analyzer error surfaced in observation
// metadata.
var ErrAnalyzerFailed = errors.New("frame analysis failed")

// Measurement is one extracted wave metric.
type Measurement struct {
	Metric   float64
	Metadata map[string]interface{}
}

// Analyzer extracts a wave metric from a frame.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, frame stream.Frame) (Measurement, error)
}

// AnalyzerFunc adapts a function to Analyzer. Used for tests and for
// strategies that need no configuration.
type AnalyzerFunc struct {
	ID string
	Fn func(ctx context.Context, frame stream.Frame) (Measurement, error)
}

// Name implements Analyzer.
func (a AnalyzerFunc) Name() string { return a.ID }

// Analyze implements Analyzer.
func (a AnalyzerFunc) Analyze(ctx context.Context, frame stream.Frame) (Measurement, error) {
	return a.Fn(ctx, frame)
}

// NewAnalyzer builds the configured analyzer strategy.
func NewAnalyzer(cfg *config.DetectorConfig) (Analyzer, error) {
	switch cfg.Analyzer {
	case "", "peakline":
		return NewPeakLineAnalyzer(cfg.PeakLine)
	default:
		return nil, fmt.Errorf("unknown analyzer %q", cfg.Analyzer)
	}
}
