// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package pipeline

import (
	"time"

	"github.com/tomtom215/tidewatch/internal/detection"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/obslog"
)

// State is the controller lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopped  State = "stopped"
)

// Serving reports whether the pipeline is processing frames.
func (s State) Serving() bool {
	return s == StateRunning || s == StateDegraded
}

// Degradation reasons.
const (
	ReasonStream   = "stream"
	ReasonDetector = "detector"
	ReasonLog      = "log"
)

// Status is a read-only snapshot of pipeline health.
type Status struct {
	State      State           `json:"state"`
	StateSince time.Time       `json:"state_since"`
	StartedAt  time.Time       `json:"started_at"`
	Location   models.Location `json:"location"`

	StreamConnected     bool      `json:"stream_connected"`
	LastFrameAt         time.Time `json:"last_frame_at,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FramesProcessed     uint64    `json:"frames_processed"`

	LastObservation      *models.Observation           `json:"last_observation,omitempty"`
	LastAlertPerChannel  map[string]time.Time          `json:"last_alert_per_channel"`
	LastAlertPerSeverity map[models.Severity]time.Time `json:"last_alert_per_severity"`
	DegradedReasons      map[string]string             `json:"degraded_reasons,omitempty"`
	StopReason           string                        `json:"stop_reason,omitempty"`

	Detector detection.Stats `json:"detector"`
	Log      obslog.Stats    `json:"log"`
}

// clone deep-copies the mutable parts of s.
func (s *Status) clone() Status {
	out := *s
	if s.LastObservation != nil {
		obs := *s.LastObservation
		out.LastObservation = &obs
	}
	out.LastAlertPerChannel = make(map[string]time.Time, len(s.LastAlertPerChannel))
	for k, v := range s.LastAlertPerChannel {
		out.LastAlertPerChannel[k] = v
	}
	out.LastAlertPerSeverity = make(map[models.Severity]time.Time, len(s.LastAlertPerSeverity))
	for k, v := range s.LastAlertPerSeverity {
		out.LastAlertPerSeverity[k] = v
	}
	if len(s.DegradedReasons) > 0 {
		out.DegradedReasons = make(map[string]string, len(s.DegradedReasons))
		for k, v := range s.DegradedReasons {
			out.DegradedReasons[k] = v
		}
	}
	return out
}
