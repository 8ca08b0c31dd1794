// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package alerting

import "errors"

var (
	// ErrSuppressed is returned by Raise when the severity is in cooldown.
	ErrSuppressed = errors.New("alert suppressed by cooldown")

	// ErrNoRoute is returned when a severity has no usable channel.
	ErrNoRoute = errors.New("no channel configured for severity")

	// ErrQueueFull is recorded when a channel queue cannot accept a job.
	ErrQueueFull = errors.New("delivery queue full")

	// ErrDispatcherClosed is returned after shutdown began.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)
