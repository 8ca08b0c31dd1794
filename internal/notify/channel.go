// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package notify implements the outbound notification channels.
//
// A Channel sends one message to one recipient and reports failures as a
// *DeliveryError whose Kind tells the dispatcher whether a retry can help.
// Providers:
//
//	whatsapp  Twilio Messages API, whatsapp: addressing
//	sms       Twilio Messages API, messaging service or from number
//	telegram  Telegram Bot API sendMessage
//	<name>    JSON webhook, e.g. a siren controller
//	log       structured log record, always available
//
// Guard wraps a channel with a gobreaker circuit breaker and a token bucket
// limiter so a failing provider is shed quickly and a burst of alerts cannot
// trip provider rate limits.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tidewatch/internal/models"
)

// Message is the provider-neutral alert content.
type Message struct {
	AlertID     string
	Severity    models.Severity
	Title       string
	Body        string
	TriggeredAt time.Time
	Location    models.Location
}

// Text renders the message as plain text with location and map link.
func (m *Message) Text() string {
	var sb strings.Builder
	sb.WriteString(m.Title)
	if m.Body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(m.Body)
	}
	sb.WriteString("\n\n")
	if !m.TriggeredAt.IsZero() {
		tz := m.TriggeredAt
		if m.Location.Timezone != "" {
			if loc, err := time.LoadLocation(m.Location.Timezone); err == nil {
				tz = tz.In(loc)
			}
		}
		fmt.Fprintf(&sb, "Time: %s\n", tz.Format("2006-01-02 15:04:05 MST"))
	}
	if m.Location.Name != "" {
		fmt.Fprintf(&sb, "Location: %s\n", m.Location.Name)
	}
	if m.Location.Latitude != 0 || m.Location.Longitude != 0 {
		fmt.Fprintf(&sb, "Map: https://maps.google.com/?q=%.5f,%.5f\n", m.Location.Latitude, m.Location.Longitude)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Channel delivers messages through one provider.
type Channel interface {
	Name() string
	Recipients() []string
	Send(ctx context.Context, recipient string, msg *Message) error
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
