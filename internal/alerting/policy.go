// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package alerting

import (
	"sync"
	"time"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/models"
)

// Route is the channel set and cooldown for one severity.
type Route struct {
	Channels []string
	Cooldown time.Duration
}

// Policy is the live-tunable dispatch policy.
type Policy struct {
	Routes map[models.Severity]Route

	// TsunamiConsecutive escalates to a tsunami alert once an observation's
	// critical run reaches it. Zero disables escalation.
	TsunamiConsecutive int
}

// PolicyFrom builds a Policy from configuration.
func PolicyFrom(cfg *config.AlertingConfig, tsunamiConsecutive int) Policy {
	routes := make(map[models.Severity]Route, len(models.AllSeverities))
	for name, rc := range cfg.Routes() {
		routes[models.Severity(name)] = Route{
			Channels: append([]string(nil), rc.Channels...),
			Cooldown: rc.Cooldown,
		}
	}
	return Policy{Routes: routes, TsunamiConsecutive: tsunamiConsecutive}
}

// cooldowns tracks the last dispatch time per severity. acquire is the only
// writer, so check and update happen under one lock.
type cooldowns struct {
	mu   sync.Mutex
	last map[models.Severity]time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{last: make(map[models.Severity]time.Time)}
}

// acquire reports whether an event triggered at may be dispatched and, if so,
// records it. Triggers older than the last dispatch are refused so events of
// one severity leave in trigger order.
func (c *cooldowns) acquire(sev models.Severity, at time.Time, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[sev]; ok {
		if at.Before(last) || at.Sub(last) < window {
			return false
		}
	}
	c.last[sev] = at
	return true
}

func (c *cooldowns) snapshot() map[models.Severity]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.Severity]time.Time, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
