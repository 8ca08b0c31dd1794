// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package config

import (
	"fmt"
	"sort"

	"github.com/tomtom215/tidewatch/internal/validation"
)

// Validate runs struct tag validation followed by the cross-field checks
// that tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := validateStreamURL(c.Stream.URL, c.Stream.Mode); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateAlerting(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateQuake(); err != nil {
		return err
	}
	return c.validateEvents()
}

func (c *Config) validateStream() error {
	if c.Stream.InitialBackoff > c.Stream.MaxBackoff {
		return fmt.Errorf("STREAM_INITIAL_BACKOFF (%s) must not exceed STREAM_MAX_BACKOFF (%s)",
			c.Stream.InitialBackoff, c.Stream.MaxBackoff)
	}
	return nil
}

func (c *Config) validateDetector() error {
	d := c.Detector
	if d.NormalBand >= d.ElevatedThreshold {
		return fmt.Errorf("detector.normal_band (%.3f) must be below detector.elevated_threshold (%.3f)",
			d.NormalBand, d.ElevatedThreshold)
	}
	if d.CriticalSustained > d.SustainedDuration && d.SustainedDuration > 0 {
		return fmt.Errorf("detector.critical_sustained (%s) must not exceed detector.sustained_duration (%s)",
			d.CriticalSustained, d.SustainedDuration)
	}
	return validateCalibration(d.PeakLine.Calibration)
}

// validateCalibration requires at least two points with distinct rows.
// Rows and heights must move in opposite directions: a higher wave crest
// sits on a smaller pixel row.
func validateCalibration(points []CalibrationPoint) error {
	if len(points) < 2 {
		return fmt.Errorf("detector.peakline.calibration needs at least 2 points, got %d", len(points))
	}
	sorted := make([]CalibrationPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Y == sorted[i-1].Y {
			return fmt.Errorf("detector.peakline.calibration has duplicate row %.0f", sorted[i].Y)
		}
		if sorted[i].Height >= sorted[i-1].Height {
			return fmt.Errorf("detector.peakline.calibration heights must decrease as rows increase (row %.0f)", sorted[i].Y)
		}
	}
	return nil
}

// Routes returns the alert routes keyed by severity name.
func (a *AlertingConfig) Routes() map[string]RouteConfig {
	return map[string]RouteConfig{
		"elevated":   a.Elevated,
		"critical":   a.Critical,
		"tsunami":    a.Tsunami,
		"earthquake": a.Earthquake,
		"system":     a.System,
	}
}

func (c *Config) validateAlerting() error {
	if c.Alerting.BaseDelay > c.Alerting.MaxDelay {
		return fmt.Errorf("alerting.base_delay (%s) must not exceed alerting.max_delay (%s)",
			c.Alerting.BaseDelay, c.Alerting.MaxDelay)
	}
	if len(c.Alerting.Critical.Channels) == 0 {
		return fmt.Errorf("alerting.critical.channels must name at least one channel")
	}
	return nil
}

// ChannelNames returns the names of every enabled notification channel. The
// log channel is always present.
func (n *NotifyConfig) ChannelNames() map[string]bool {
	names := map[string]bool{"log": true}
	if n.WhatsApp.Enabled {
		names["whatsapp"] = true
	}
	if n.SMS.Enabled {
		names["sms"] = true
	}
	if n.Telegram.Enabled {
		names["telegram"] = true
	}
	for _, w := range n.Webhooks {
		names[w.Name] = true
	}
	return names
}

func (c *Config) validateNotify() error {
	n := c.Notify
	if n.WhatsApp.Enabled || n.SMS.Enabled {
		if n.Twilio.AccountSID == "" || n.Twilio.AuthToken == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required when WhatsApp or SMS is enabled")
		}
	}
	if n.WhatsApp.Enabled {
		if n.WhatsApp.From == "" {
			return fmt.Errorf("WHATSAPP_FROM is required when WHATSAPP_ENABLED=true")
		}
		if len(n.WhatsApp.To) == 0 {
			return fmt.Errorf("WHATSAPP_TO must list at least one recipient")
		}
	}
	if n.SMS.Enabled {
		if n.SMS.From == "" && n.SMS.MessagingServiceSID == "" {
			return fmt.Errorf("SMS_FROM or SMS_MESSAGING_SERVICE_SID is required when SMS_ENABLED=true")
		}
		if len(n.SMS.To) == 0 {
			return fmt.Errorf("SMS_TO must list at least one recipient")
		}
	}
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || len(n.Telegram.ChatIDs) == 0 {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_IDS are required when TELEGRAM_ENABLED=true")
		}
	}

	seen := map[string]bool{"whatsapp": true, "sms": true, "telegram": true, "log": true}
	for _, w := range n.Webhooks {
		if seen[w.Name] {
			return fmt.Errorf("notify.webhooks: duplicate or reserved channel name %q", w.Name)
		}
		seen[w.Name] = true
	}
	return nil
}

func (c *Config) validateQuake() error {
	if !c.Quake.Enabled {
		return nil
	}
	if c.Quake.TsunamiMagnitude < c.Quake.MinMagnitude {
		return fmt.Errorf("quake.tsunami_magnitude (%.1f) must not be below quake.min_magnitude (%.1f)",
			c.Quake.TsunamiMagnitude, c.Quake.MinMagnitude)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.Backend != "nats" || c.Events.Embedded {
		return nil
	}
	if err := validateNATSURL(c.Events.URL); err != nil {
		return fmt.Errorf("EVENTS_URL is invalid: %w", err)
	}
	return nil
}
