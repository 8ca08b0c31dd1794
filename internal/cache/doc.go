// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package cache provides a small TTL cache for expensive read-only queries,
// such as archive summaries served by the API.
//
// Usage:
//
//	c := cache.New(time.Minute)
//	key := cache.GenerateKey("ArchiveSummary", since.Unix())
//	if v, ok := c.Get(key); ok {
//	    return v.(ArchiveSummary)
//	}
//	c.Set(key, summary)
package cache
