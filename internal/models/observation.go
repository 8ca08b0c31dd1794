// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package models

import (
	"time"
)

// Classification is the detector's verdict for one observation.
type Classification string

const (
	ClassNormal   Classification = "normal"
	ClassElevated Classification = "elevated"
	ClassCritical Classification = "critical"
)

// Rank orders classifications by urgency.
func (c Classification) Rank() int {
	switch c {
	case ClassElevated:
		return 1
	case ClassCritical:
		return 2
	default:
		return 0
	}
}

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassNormal, ClassElevated, ClassCritical:
		return true
	}
	return false
}

// Observation is the detector output for one analyzed frame.
type Observation struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Sequence is the frame sequence number assigned by the stream reader.
	Sequence uint64 `json:"sequence"`

	// Metric is the measured wave metric (metres for the peak line analyzer).
	Metric float64 `json:"metric"`

	// Baseline is the rolling mean the metric was compared against. Zero
	// while the baseline is still warming up.
	Baseline float64 `json:"baseline"`

	// Deviation is Metric - Baseline.
	Deviation float64 `json:"deviation"`

	Classification Classification `json:"classification"`

	// Degraded marks an inconclusive observation: analysis failed and the
	// classification is normal-equivalent.
	Degraded bool `json:"degraded,omitempty"`

	// CriticalRun counts consecutive critical observations ending with this one.
	CriticalRun int `json:"critical_run,omitempty"`

	// Analyzer names the metric extraction strategy.
	Analyzer string `json:"analyzer"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Conclusive reports whether the observation carries a real measurement.
func (o *Observation) Conclusive() bool {
	return !o.Degraded
}

// MetaString returns a string metadata value or "".
func (o *Observation) MetaString(key string) string {
	if o.Metadata == nil {
		return ""
	}
	s, _ := o.Metadata[key].(string)
	return s
}

// MetaFloat returns a numeric metadata value. Values decoded from JSON
// arrive as float64; values set in-process may be int.
func (o *Observation) MetaFloat(key string) (float64, bool) {
	if o.Metadata == nil {
		return 0, false
	}
	switch v := o.Metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Location describes the monitored site.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}
