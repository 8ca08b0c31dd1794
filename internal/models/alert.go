// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package models

import (
	"time"
)

// Severity is the alert class. Cooldowns and channel routes are keyed by it.
type Severity string

const (
	SeverityElevated   Severity = "elevated"
	SeverityCritical   Severity = "critical"
	SeverityTsunami    Severity = "tsunami"
	SeverityEarthquake Severity = "earthquake"
	SeveritySystem     Severity = "system"
)

// AllSeverities lists every severity in display order.
var AllSeverities = []Severity{
	SeverityTsunami,
	SeverityCritical,
	SeverityEarthquake,
	SeverityElevated,
	SeveritySystem,
}

// SeverityFor maps a classification to its alert severity. Normal
// observations never alert.
func SeverityFor(c Classification) (Severity, bool) {
	switch c {
	case ClassElevated:
		return SeverityElevated, true
	case ClassCritical:
		return SeverityCritical, true
	}
	return "", false
}

// AlertSource names what raised an alert.
type AlertSource string

const (
	SourceDetector AlertSource = "detector"
	SourceQuake    AlertSource = "quake"
	SourceSystem   AlertSource = "system"
)

// AlertEvent is one dispatched alert.
type AlertEvent struct {
	ID          string      `json:"id"`
	Severity    Severity    `json:"severity"`
	Source      AlertSource `json:"source"`
	TriggeredAt time.Time   `json:"triggered_at"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Channels    []string    `json:"channels"`

	// ObservationID links detector alerts to the triggering observation.
	ObservationID string  `json:"observation_id,omitempty"`
	Metric        float64 `json:"metric,omitempty"`

	// Deliveries is the number of channel recipients the event was sent
	// to. Outcomes fills in as each one finishes.
	Deliveries int               `json:"deliveries"`
	Outcomes   []DeliveryOutcome `json:"outcomes,omitempty"`
}

// DeliveryOutcome is the final result for one channel recipient.
type DeliveryOutcome struct {
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	ErrorCode string         `json:"error_code,omitempty"`
	At        time.Time      `json:"at"`
}

// SetOutcome records o, replacing any earlier outcome for the same
// channel recipient.
func (e *AlertEvent) SetOutcome(o DeliveryOutcome) {
	for i := range e.Outcomes {
		if e.Outcomes[i].Channel == o.Channel && e.Outcomes[i].Recipient == o.Recipient {
			e.Outcomes[i] = o
			return
		}
	}
	e.Outcomes = append(e.Outcomes, o)
}

// Settled reports whether every delivery has a final outcome.
func (e *AlertEvent) Settled() bool {
	return len(e.Outcomes) >= e.Deliveries
}

// DeliveredCount returns how many recipients were reached.
func (e *AlertEvent) DeliveredCount() int {
	n := 0
	for i := range e.Outcomes {
		if e.Outcomes[i].Status == DeliveryDelivered {
			n++
		}
	}
	return n
}

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryDropped   DeliveryStatus = "dropped"
	DeliveryAbandoned DeliveryStatus = "abandoned"
)

// DeliveryAttempt is the audit record of one send attempt.
type DeliveryAttempt struct {
	ID        string         `json:"id"`
	AlertID   string         `json:"alert_id"`
	Severity  Severity       `json:"severity"`
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Attempt   int            `json:"attempt"`
	Status    DeliveryStatus `json:"status"`
	ErrorCode string         `json:"error_code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	At        time.Time      `json:"at"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Final reports whether no further attempt follows this one.
func (d *DeliveryAttempt) Final() bool {
	return d.Status != DeliveryRetrying
}

// Outcome summarizes a final attempt.
func (d *DeliveryAttempt) Outcome() DeliveryOutcome {
	return DeliveryOutcome{
		Channel:   d.Channel,
		Recipient: d.Recipient,
		Status:    d.Status,
		Attempts:  d.Attempt,
		ErrorCode: d.ErrorCode,
		At:        d.At,
	}
}
