// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	alertIDKey   contextKey = "alert_id"
	componentKey contextKey = "component"
	loggerKey    contextKey = "logger"
)

// GenerateRequestID returns a new random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID attaches an HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithAlertID attaches the alert event ID so every delivery attempt
// for one event can be correlated in the log stream.
func ContextWithAlertID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, alertIDKey, id)
}

// AlertIDFromContext returns the alert ID or "".
func AlertIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(alertIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithComponent attaches a component name.
func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// ContextWithLogger stores a preconfigured logger.
//
//nolint:gocritic // zerolog.Logger is passed by value by design of the library
func ContextWithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Ctx returns a logger enriched with the request, alert and component values
// found in ctx. Falls back to the global logger.
//
//	logging.Ctx(ctx).Info().Str("channel", name).Msg("Delivered")
func Ctx(ctx context.Context) *zerolog.Logger {
	base, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		base = Logger()
	}

	lc := base.With()
	if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
		lc = lc.Str("component", v)
	}
	if v := RequestIDFromContext(ctx); v != "" {
		lc = lc.Str("request_id", v)
	}
	if v := AlertIDFromContext(ctx); v != "" {
		lc = lc.Str("alert_id", v)
	}
	l := lc.Logger()
	return &l
}
