// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package config

import (
	"fmt"
	"net/url"
)

// validateStreamURL checks the video source URL against the acquisition mode.
func validateStreamURL(rawURL, mode string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("STREAM_URL failed to parse: %w", err)
	}

	switch mode {
	case "file":
		if u.Scheme != "file" && u.Scheme != "" {
			return fmt.Errorf("STREAM_URL scheme must be file for mode=file, got: %s", u.Scheme)
		}
		if u.Path == "" && u.Opaque == "" {
			return fmt.Errorf("STREAM_URL must name a directory for mode=file")
		}
	default:
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("STREAM_URL scheme must be http or https for mode=%s, got: %s", mode, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("STREAM_URL host is required")
		}
	}
	return nil
}

// validateNATSURL accepts nats, tls, ws and wss URLs with a host.
func validateNATSURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}
