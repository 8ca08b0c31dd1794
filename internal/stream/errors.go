// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import "errors"

var (
	// ErrStreamUnavailable is returned after the configured number of
	// consecutive connection failures. The pipeline treats it as fatal.
	ErrStreamUnavailable = errors.New("stream unavailable")

	// ErrReadTimeout marks a frame read that exceeded the read timeout.
	ErrReadTimeout = errors.New("frame read timed out")

	// ErrDecode marks a frame that arrived but could not be decoded. The
	// connection stays usable.
	ErrDecode = errors.New("frame decode failed")

	// ErrEndOfStream is returned by finite sources (directory replay) once
	// every frame has been delivered.
	ErrEndOfStream = errors.New("end of stream")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("stream reader closed")
)
