// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package main is the entry point for the Tidewatch server.

Tidewatch watches a coastal camera feed, estimates wave height from each
frame, and alerts people on WhatsApp, SMS, Telegram and webhooks when the
sea rises above its rolling baseline. An optional poller adds BMKG
earthquake bulletins with tsunami potential.

# Application Architecture

Services run under a Suture v4 supervision tree:

	RootSupervisor ("tidewatch")
	├── pipeline            frame loop, stops the tree on fatal stream loss
	├── DataSupervisor ("data-layer")
	│   ├── obslog-maintenance   BadgerDB value-log GC and buffer flush
	│   └── archiver             DuckDB copy (optional)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── alert-dispatcher     per-channel delivery workers
	│   ├── websocket-hub        live dashboard clients
	│   ├── event-bus            Watermill bus (optional)
	│   ├── websocket-feed       bus to hub relay (with event-bus)
	│   └── quake-poller         BMKG feed (optional)
	└── APISupervisor ("api-layer")
	    └── http-server          read-only REST API and /metrics

Initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment variables
 2. Logging: zerolog with JSON or console output
 3. Observation log: BadgerDB
 4. Detector, notification channels and alert dispatcher
 5. Pipeline controller with a reconnecting stream reader
 6. Optional event bus, earthquake poller and archive
 7. Supervisor tree and HTTP server

# Configuration Reload

When a config file is in use it is watched. Detector thresholds, alert
routes, cooldowns and the log level are applied live. Other changes need
a restart.

# Exit Codes

	0  stopped by SIGINT/SIGTERM, or a file:// source ran out of frames
	1  invalid configuration, startup failure, or stream reconnects exhausted

# Example Usage

	export STREAM_URL=http://camera.local/mjpeg
	export LOCATION_NAME="Pantai Anyer"
	export TELEGRAM_ENABLED=true
	export TELEGRAM_BOT_TOKEN=...
	export TELEGRAM_CHAT_IDS=-1001234567
	./tidewatch
*/
package main
