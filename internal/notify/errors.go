// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind separates failures worth retrying from failures that will repeat.
type Kind int

const (
	Retryable Kind = iota + 1
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "retryable"
}

// Machine-readable failure codes recorded on delivery attempts.
const (
	CodeInvalidRecipient = "INVALID_RECIPIENT"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeServerError      = "SERVER_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeNetworkError     = "NETWORK_ERROR"
	CodeCircuitOpen      = "CIRCUIT_OPEN"
)

// DeliveryError is the error every Channel returns for a failed send.
type DeliveryError struct {
	Kind   Kind
	Code   string
	Status int

	// RetryAfter is the provider's requested wait, zero when not given.
	RetryAfter time.Duration

	Err error
}

func (e *DeliveryError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%s, http %d): %v", e.Code, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// NewPermanent returns a non-retryable error.
func NewPermanent(code string, err error) *DeliveryError {
	return &DeliveryError{Kind: Permanent, Code: code, Err: err}
}

// NewRetryable returns a retryable error.
func NewRetryable(code string, err error) *DeliveryError {
	return &DeliveryError{Kind: Retryable, Code: code, Err: err}
}

// Classify converts any send error to a DeliveryError. Unknown errors are
// treated as retryable network failures.
func Classify(err error) *DeliveryError {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRetryable(CodeTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewRetryable(CodeTimeout, err)
	}
	return NewRetryable(CodeNetworkError, err)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == Permanent
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}

// ClassifyHTTPStatus maps a provider HTTP status to a DeliveryError.
func ClassifyHTTPStatus(status int, header http.Header, err error) *DeliveryError {
	de := &DeliveryError{Status: status, Err: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		de.Kind, de.Code = Permanent, CodeAuthFailed
	case status == http.StatusNotFound:
		de.Kind, de.Code = Permanent, CodeInvalidRecipient
	case status == http.StatusTooManyRequests:
		de.Kind, de.Code = Retryable, CodeRateLimited
		de.RetryAfter = parseRetryAfter(header)
	case status == http.StatusRequestTimeout:
		de.Kind, de.Code = Retryable, CodeTimeout
	case status >= 500:
		de.Kind, de.Code = Retryable, CodeServerError
		de.RetryAfter = parseRetryAfter(header)
	default:
		de.Kind, de.Code = Permanent, CodeInvalidRequest
	}
	return de
}

func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
