// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"context"

	"github.com/tomtom215/tidewatch/internal/logging"
)

// LogChannel writes alerts to the structured log. It never fails and is
// useful as a fallback route and in development.
type LogChannel struct{}

// Name implements Channel.
func (LogChannel) Name() string { return "log" }

// Recipients implements Channel.
func (LogChannel) Recipients() []string { return []string{"log"} }

// Send implements Channel.
func (LogChannel) Send(ctx context.Context, _ string, msg *Message) error {
	logging.Ctx(ctx).Warn().
		Str("severity", string(msg.Severity)).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Time("triggered_at", msg.TriggeredAt).
		Str("location", msg.Location.Name).
		Msg("ALERT")
	return nil
}
