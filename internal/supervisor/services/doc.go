// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package services adapts Tidewatch components to suture.Service.
//
// Most components already expose Serve(ctx) error and only need a name for
// supervisor logs (NamedService). The HTTP server translates
// ListenAndServe/Shutdown, and the pipeline maps fatal stream loss to
// tree termination.
package services
