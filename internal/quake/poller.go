// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package quake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tidewatch/internal/alerting"
	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
)

// retryInterval is the wait after a failed fetch.
const retryInterval = 30 * time.Second

// Raiser dispatches alerts. *alerting.Dispatcher implements it.
type Raiser interface {
	Raise(ctx context.Context, a alerting.Alert) (models.AlertEvent, error)
}

// Feed returns the latest bulletin. *Client implements it.
type Feed interface {
	Latest(ctx context.Context) (models.QuakeEvent, error)
}

// Poller checks the feed periodically and raises one alert per new quake.
type Poller struct {
	feed     Feed
	raiser   Raiser
	cfg      config.QuakeConfig
	location models.Location

	// Clock is replaced in tests.
	Clock func() time.Time

	limiter *rate.Limiter

	mu     sync.RWMutex
	seen   string
	latest *models.QuakeEvent
}

// NewPoller creates a poller. Fetches are spaced at least ten seconds apart
// even when retrying after errors.
func NewPoller(feed Feed, raiser Raiser, cfg config.QuakeConfig, loc models.Location) *Poller {
	return &Poller{
		feed:     feed,
		raiser:   raiser,
		cfg:      cfg,
		location: loc,
		Clock:    time.Now,
		limiter:  rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Serve polls until ctx is cancelled.
func (p *Poller) Serve(ctx context.Context) error {
	logging.Info().Str("url", p.cfg.URL).Dur("interval", p.cfg.PollInterval).Msg("Earthquake feed poller started")
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		wait := p.cfg.PollInterval
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Msg("Earthquake feed poll failed")
			if retryInterval < wait {
				wait = retryInterval
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll fetches the feed once. It returns the alert raised, or nil when the
// bulletin was already seen, too old or too weak.
func (p *Poller) Poll(ctx context.Context) (*models.AlertEvent, error) {
	ev, err := p.feed.Latest(ctx)
	if err != nil {
		return nil, err
	}
	ev.DistanceKm = haversineKm(p.location.Latitude, p.location.Longitude, ev.Latitude, ev.Longitude)

	p.mu.Lock()
	if p.seen == ev.ID {
		p.mu.Unlock()
		return nil, nil
	}
	p.seen = ev.ID
	p.latest = &ev
	p.mu.Unlock()

	log := logging.With().Str("component", "quake").Str("quake_id", ev.ID).Float64("magnitude", ev.Magnitude).Logger()

	if age := p.Clock().Sub(ev.OccurredAt); p.cfg.MaxAge > 0 && age > p.cfg.MaxAge {
		log.Debug().Dur("age", age).Msg("Ignoring stale bulletin")
		return nil, nil
	}
	if ev.Magnitude < p.cfg.MinMagnitude {
		log.Debug().Msg("Bulletin below alert magnitude")
		return nil, nil
	}

	a := p.alertFor(&ev)
	out, err := p.raiser.Raise(ctx, a)
	if err != nil {
		if errors.Is(err, alerting.ErrSuppressed) {
			return nil, nil
		}
		return nil, fmt.Errorf("raise earthquake alert: %w", err)
	}
	log.Info().Str("severity", string(a.Severity)).Str("region", ev.Region).Msg("Earthquake alert raised")
	return &out, nil
}

// Latest returns the most recently fetched bulletin.
func (p *Poller) Latest() (models.QuakeEvent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return models.QuakeEvent{}, false
	}
	return *p.latest, true
}

func (p *Poller) alertFor(ev *models.QuakeEvent) alerting.Alert {
	sev := models.SeverityEarthquake
	tsunami := ev.Magnitude >= p.cfg.TsunamiMagnitude || TsunamiPotential(ev.Potential)
	if tsunami {
		sev = models.SeverityTsunami
	}

	title := fmt.Sprintf("Earthquake M%.1f %s", ev.Magnitude, ev.Region)
	if tsunami {
		title = "POTENTIAL TSUNAMI: " + title
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Origin time: %s\n", ev.OccurredAt.In(wib).Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Magnitude: M%.1f, depth %.0f km\n", ev.Magnitude, ev.DepthKm)
	fmt.Fprintf(&sb, "Epicentre: %.2f, %.2f", ev.Latitude, ev.Longitude)
	if p.location.Name != "" {
		fmt.Fprintf(&sb, " (%.0f km from %s)", ev.DistanceKm, p.location.Name)
	}
	sb.WriteString("\n")
	if ev.Potential != "" {
		fmt.Fprintf(&sb, "Potential: %s\n", ev.Potential)
	}
	if ev.Felt != "" {
		fmt.Fprintf(&sb, "Felt: %s\n", ev.Felt)
	}
	if ev.ShakemapURL != "" {
		fmt.Fprintf(&sb, "Shakemap: %s\n", ev.ShakemapURL)
	}
	sb.WriteString("Source: BMKG")
	if tsunami {
		sb.WriteString("\n\nEVACUATE TO HIGHER GROUND IMMEDIATELY")
	}

	return alerting.Alert{
		Severity: sev,
		Source:   models.SourceQuake,
		Title:    title,
		Body:     sb.String(),
		At:       p.Clock(),
		Metric:   ev.Magnitude,
	}
}
