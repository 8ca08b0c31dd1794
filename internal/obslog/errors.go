// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package obslog

import (
	"errors"
	"fmt"
)

var (
	// ErrLogClosed is returned by every operation after Close.
	ErrLogClosed = errors.New("observation log is closed")

	// ErrNilObservation is returned when Append receives nil.
	ErrNilObservation = errors.New("observation cannot be nil")

	// ErrBufferFull means the durable store is failing and the in-memory
	// fallback has no room left. The observation was not retained.
	ErrBufferFull = errors.New("observation buffer full")

	// ErrAlertNotFound is returned by RecordOutcome for an unknown event.
	ErrAlertNotFound = errors.New("alert event not found")
)

// WriteError reports a failed durable write. When Buffered is true the
// observation is held in memory and visible to readers, and will be flushed
// on the next successful write or FlushBuffer.
type WriteError struct {
	Err      error
	Buffered bool
	Pending  int
}

func (e *WriteError) Error() string {
	if e.Buffered {
		return fmt.Sprintf("observation log write failed, %d buffered in memory: %v", e.Pending, e.Err)
	}
	return fmt.Sprintf("observation log write failed, observation lost: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
