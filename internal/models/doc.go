// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package models defines the data shared between the detection pipeline, the
observation log, the alert dispatcher and the HTTP surface.

Key types:

  - Observation: the classified result of analyzing one frame. Immutable once
    created and appended to the observation log.
  - AlertEvent: a dispatch decision for one severity, fanned out to channels.
  - DeliveryAttempt: one send attempt on one channel for one recipient,
    recorded for audit whether it succeeded, will be retried or failed.
  - QuakeEvent: an earthquake bulletin from the BMKG feed.

All types serialize with goccy/go-json using snake_case field names.
*/
package models
