// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"net/http"

	"github.com/tomtom215/tidewatch/internal/config"
)

// FromConfig builds every enabled channel, keyed by name and wrapped in a
// Guard. The log channel is always present. A nil client gets one with the
// configured timeout.
func FromConfig(cfg *config.NotifyConfig, client *http.Client) map[string]Channel {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	guard := GuardConfig{
		MaxFailures:   cfg.BreakerMaxFailures,
		OpenTimeout:   cfg.BreakerOpenTimeout,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.RateBurst,
	}

	channels := map[string]Channel{"log": LogChannel{}}
	add := func(ch Channel) {
		channels[ch.Name()] = NewGuard(ch, guard)
	}

	if cfg.WhatsApp.Enabled {
		add(NewWhatsAppChannel(client, cfg.Twilio.BaseURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
			cfg.WhatsApp.From, cfg.WhatsApp.To))
	}
	if cfg.SMS.Enabled {
		add(NewSMSChannel(client, cfg.Twilio.BaseURL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
			cfg.SMS.From, cfg.SMS.MessagingServiceSID, cfg.SMS.To))
	}
	if cfg.Telegram.Enabled {
		add(NewTelegramChannel(client, cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatIDs))
	}
	for _, w := range cfg.Webhooks {
		add(NewWebhookChannel(client, w.Name, w.URL, w.Headers))
	}
	return channels
}
