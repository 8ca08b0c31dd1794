// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tidewatch/internal/logging"
)

// GuardConfig configures Guard.
type GuardConfig struct {
	// MaxFailures is the number of consecutive retryable failures that open
	// the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before a probe.
	OpenTimeout time.Duration

	// RatePerSecond and Burst shape outgoing sends. Zero rate disables it.
	RatePerSecond float64
	Burst         int
}

// Guard decorates a Channel with a circuit breaker and rate limiter.
// Permanent errors count as breaker successes since they describe the
// message or recipient rather than provider health.
type Guard struct {
	inner   Channel
	breaker *gobreaker.CircuitBreaker[interface{}]
	limiter *rate.Limiter
}

// NewGuard wraps inner.
func NewGuard(inner Channel, cfg GuardConfig) *Guard {
	name := inner.Name()
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	}
	breakerState.WithLabelValues(name).Set(0)

	g := &Guard{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[interface{}](settings),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return g
}

// Name implements Channel.
func (g *Guard) Name() string { return g.inner.Name() }

// Recipients implements Channel.
func (g *Guard) Recipients() []string { return g.inner.Recipients() }

// State returns the breaker state name.
func (g *Guard) State() string { return g.breaker.State().String() }

// Send implements Channel.
func (g *Guard) Send(ctx context.Context, recipient string, msg *Message) error {
	name := g.inner.Name()
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			de := Classify(err)
			sendsTotal.WithLabelValues(name, de.Code).Inc()
			return de
		}
	}

	start := time.Now()
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.inner.Send(ctx, recipient, msg)
	})
	sendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err == nil {
		sendsTotal.WithLabelValues(name, "ok").Inc()
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = NewRetryable(CodeCircuitOpen, err)
	}
	de := Classify(err)
	sendsTotal.WithLabelValues(name, de.Code).Inc()
	return de
}
