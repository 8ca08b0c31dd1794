// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/stream"
)

// ErrNoEdge is returned when no row in the region of interest has enough
// strong vertical gradients to count as a wave crest, e.g. fog or a night
// frame.
var ErrNoEdge = errors.New("no wave crest edge found")

// PeakLineAnalyzer locates the highest wave crest as the topmost image row
// where a large share of columns show a strong brightness step to the row
// below, then converts that row to metres using a calibration table.
type PeakLineAnalyzer struct {
	roi         image.Rectangle
	gradient    int
	minFraction float64
	calibration []config.CalibrationPoint // ascending Y
}

// NewPeakLineAnalyzer validates and copies the calibration.
func NewPeakLineAnalyzer(cfg config.PeakLineConfig) (*PeakLineAnalyzer, error) {
	if len(cfg.Calibration) < 2 {
		return nil, fmt.Errorf("peak line calibration needs at least 2 points, got %d", len(cfg.Calibration))
	}
	cal := make([]config.CalibrationPoint, len(cfg.Calibration))
	copy(cal, cfg.Calibration)
	sort.Slice(cal, func(i, j int) bool { return cal[i].Y < cal[j].Y })

	var roi image.Rectangle
	if cfg.ROIWidth > 0 && cfg.ROIHeight > 0 {
		roi = image.Rect(cfg.ROIX, cfg.ROIY, cfg.ROIX+cfg.ROIWidth, cfg.ROIY+cfg.ROIHeight)
	}

	gradient := cfg.GradientThreshold
	if gradient <= 0 {
		gradient = 40
	}
	fraction := cfg.MinEdgeFraction
	if fraction <= 0 {
		fraction = 0.25
	}

	return &PeakLineAnalyzer{
		roi:         roi,
		gradient:    gradient,
		minFraction: fraction,
		calibration: cal,
	}, nil
}

// Name implements Analyzer.
func (a *PeakLineAnalyzer) Name() string { return "peakline" }

// Analyze implements Analyzer.
func (a *PeakLineAnalyzer) Analyze(ctx context.Context, frame stream.Frame) (Measurement, error) {
	if frame.Image == nil {
		return Measurement{}, errors.New("frame has no image")
	}

	bounds := frame.Image.Bounds()
	roi := bounds
	if !a.roi.Empty() {
		roi = a.roi.Intersect(bounds)
	}
	if roi.Dx() < 1 || roi.Dy() < 2 {
		return Measurement{}, fmt.Errorf("region of interest %v outside frame %v", a.roi, bounds)
	}

	gray := toGray(frame.Image, roi)
	w := roi.Dx()
	minEdges := int(float64(w)*a.minFraction + 0.5)
	if minEdges < 1 {
		minEdges = 1
	}

	for y := roi.Min.Y; y < roi.Max.Y-1; y++ {
		if err := ctx.Err(); err != nil {
			return Measurement{}, err
		}
		edges := 0
		for x := roi.Min.X; x < roi.Max.X; x++ {
			d := int(gray.GrayAt(x, y+1).Y) - int(gray.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			if d >= a.gradient {
				edges++
			}
		}
		if edges >= minEdges {
			height := a.heightAt(float64(y))
			return Measurement{
				Metric: height,
				Metadata: map[string]interface{}{
					"peak_y":        y,
					"level":         a.levelFor(height),
					"edge_fraction": float64(edges) / float64(w),
				},
			}, nil
		}
	}
	return Measurement{}, ErrNoEdge
}

// heightAt interpolates linearly between calibration points and clamps
// beyond the ends of the table.
func (a *PeakLineAnalyzer) heightAt(y float64) float64 {
	cal := a.calibration
	if y <= cal[0].Y {
		return cal[0].Height
	}
	last := cal[len(cal)-1]
	if y >= last.Y {
		return last.Height
	}
	i := sort.Search(len(cal), func(i int) bool { return cal[i].Y >= y })
	lo, hi := cal[i-1], cal[i]
	t := (y - lo.Y) / (hi.Y - lo.Y)
	return lo.Height + t*(hi.Height-lo.Height)
}

// levelFor returns the label of the highest calibration point whose height
// the metric reaches.
func (a *PeakLineAnalyzer) levelFor(height float64) string {
	level := ""
	best := -1.0
	for _, p := range a.calibration {
		if p.Level != "" && height >= p.Height && p.Height > best {
			level, best = p.Level, p.Height
		}
	}
	if level == "" {
		return "CALM"
	}
	return level
}

func toGray(img image.Image, r image.Rectangle) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return g
}
