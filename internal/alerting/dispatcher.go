// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package alerting turns classified observations into alert events and
// delivers them through notification channels.
//
// The decision path (OnObservation, Raise) runs on the caller's goroutine
// and never performs network I/O: it checks the per-severity cooldown,
// records the event and enqueues one job per channel recipient. Each
// channel has its own bounded FIFO queue and worker, so a stalled provider
// only delays its own deliveries.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/notify"
)

// AuditLog persists alert events and delivery attempts, and writes each
// recipient's final outcome back onto its event. *obslog.Log implements it.
type AuditLog interface {
	RecordAlert(ev *models.AlertEvent) error
	RecordDelivery(a *models.DeliveryAttempt) error
	RecordOutcome(ev *models.AlertEvent, o models.DeliveryOutcome) error
}

// Alert is a request to dispatch one event.
type Alert struct {
	Severity      models.Severity
	Source        models.AlertSource
	Title         string
	Body          string
	At            time.Time
	ObservationID string
	Metric        float64
}

// Options holds the non-tunable dispatcher settings.
type Options struct {
	QueueSize      int
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	ShutdownGrace  time.Duration
	Location       models.Location
}

// OptionsFrom extracts Options from configuration.
func OptionsFrom(cfg *config.AlertingConfig, loc models.Location) Options {
	return Options{
		QueueSize:      cfg.QueueSize,
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		AttemptTimeout: cfg.AttemptTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
		Location:       loc,
	}
}

type job struct {
	event     models.AlertEvent
	channel   notify.Channel
	recipient string
	msg       *notify.Message
}

type queue struct {
	name string
	ch   notify.Channel
	jobs chan job
}

// Dispatcher implements the alert decision policy and delivery fan-out.
type Dispatcher struct {
	opts  Options
	audit AuditLog

	// Clock and Sleep are replaced in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	policyMu sync.RWMutex
	policy   Policy

	cooldowns *cooldowns
	queues    map[string]*queue

	mu        sync.Mutex
	closed    bool
	delivered map[string]time.Time

	started atomic.Bool

	listenersMu       sync.RWMutex
	alertListeners    []func(models.AlertEvent)
	deliveryListeners []func(models.DeliveryAttempt)
}

// NewDispatcher creates a dispatcher over channels keyed by name. audit may
// be nil.
func NewDispatcher(opts Options, policy Policy, channels map[string]notify.Channel, audit AuditLog) *Dispatcher {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	d := &Dispatcher{
		opts:      opts,
		audit:     audit,
		Clock:     time.Now,
		Sleep:     sleepContext,
		policy:    policy,
		cooldowns: newCooldowns(),
		queues:    make(map[string]*queue, len(channels)),
		delivered: make(map[string]time.Time),
	}
	for name, ch := range channels {
		d.queues[name] = &queue{name: name, ch: ch, jobs: make(chan job, opts.QueueSize)}
	}
	return d
}

// OnAlert registers fn to be called for every dispatched event.
func (d *Dispatcher) OnAlert(fn func(models.AlertEvent)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.alertListeners = append(d.alertListeners, fn)
}

// OnDelivery registers fn to be called for every recorded attempt.
func (d *Dispatcher) OnDelivery(fn func(models.DeliveryAttempt)) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.deliveryListeners = append(d.deliveryListeners, fn)
}

// Tune replaces the dispatch policy. Cooldown history is kept.
func (d *Dispatcher) Tune(p Policy) {
	d.policyMu.Lock()
	d.policy = p
	d.policyMu.Unlock()
	logging.Info().
		Int("routes", len(p.Routes)).
		Int("tsunami_consecutive", p.TsunamiConsecutive).
		Msg("Alert policy updated")
}

// Policy returns the active policy.
func (d *Dispatcher) Policy() Policy {
	d.policyMu.RLock()
	defer d.policyMu.RUnlock()
	return d.policy
}

// OnObservation applies the decision policy to obs and dispatches the
// resulting events. It never blocks on delivery.
func (d *Dispatcher) OnObservation(ctx context.Context, obs *models.Observation) []models.AlertEvent {
	if obs == nil || obs.Degraded {
		return nil
	}
	sev, ok := models.SeverityFor(obs.Classification)
	if !ok {
		return nil
	}

	policy := d.Policy()
	loc := d.opts.Location.Name

	var out []models.AlertEvent
	if sev == models.SeverityCritical && policy.TsunamiConsecutive > 0 && obs.CriticalRun >= policy.TsunamiConsecutive {
		if ev, err := d.Raise(ctx, observationAlert(models.SeverityTsunami, obs, loc)); err == nil {
			out = append(out, ev)
		}
	}
	if ev, err := d.Raise(ctx, observationAlert(sev, obs, loc)); err == nil {
		out = append(out, ev)
	}
	return out
}

// Raise dispatches a single alert subject to its severity's cooldown.
func (d *Dispatcher) Raise(ctx context.Context, a Alert) (models.AlertEvent, error) {
	if d.isClosed() {
		return models.AlertEvent{}, ErrDispatcherClosed
	}
	if a.At.IsZero() {
		a.At = d.Clock()
	}
	if a.Source == "" {
		a.Source = models.SourceSystem
	}

	route, ok := d.Policy().Routes[a.Severity]
	if !ok {
		return models.AlertEvent{}, fmt.Errorf("%w: %s", ErrNoRoute, a.Severity)
	}
	targets := d.resolve(route.Channels)
	if len(targets) == 0 {
		logging.Warn().Str("severity", string(a.Severity)).Msg("No usable channel for severity, alert not sent")
		return models.AlertEvent{}, fmt.Errorf("%w: %s", ErrNoRoute, a.Severity)
	}

	if !d.cooldowns.acquire(a.Severity, a.At, route.Cooldown) {
		alertsSuppressed.WithLabelValues(string(a.Severity)).Inc()
		logging.Debug().Str("severity", string(a.Severity)).Time("at", a.At).Msg("Alert suppressed by cooldown")
		return models.AlertEvent{}, ErrSuppressed
	}

	ev := models.AlertEvent{
		ID:            uuid.New().String(),
		Severity:      a.Severity,
		Source:        a.Source,
		TriggeredAt:   a.At,
		Title:         a.Title,
		Body:          a.Body,
		ObservationID: a.ObservationID,
		Metric:        a.Metric,
	}
	for _, q := range targets {
		ev.Channels = append(ev.Channels, q.name)
		ev.Deliveries += len(q.ch.Recipients())
	}
	alertsDispatched.WithLabelValues(string(ev.Severity)).Inc()

	ctx = logging.ContextWithAlertID(ctx, ev.ID)
	logging.Ctx(ctx).Info().
		Str("severity", string(ev.Severity)).
		Str("source", string(ev.Source)).
		Strs("channels", ev.Channels).
		Str("title", ev.Title).
		Msg("Alert dispatched")

	if d.audit != nil {
		if err := d.audit.RecordAlert(&ev); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to record alert event")
		}
	}
	d.notifyAlert(ev)

	msg := &notify.Message{
		AlertID:     ev.ID,
		Severity:    ev.Severity,
		Title:       ev.Title,
		Body:        ev.Body,
		TriggeredAt: ev.TriggeredAt,
		Location:    d.opts.Location,
	}
	for _, q := range targets {
		for _, r := range q.ch.Recipients() {
			d.enqueue(ctx, q, job{event: ev, channel: q.ch, recipient: r, msg: msg})
		}
	}
	return ev, nil
}

// resolve maps channel names to queues, skipping unknown names.
func (d *Dispatcher) resolve(names []string) []*queue {
	seen := make(map[string]bool, len(names))
	out := make([]*queue, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		q, ok := d.queues[n]
		if !ok {
			logging.Warn().Str("channel", n).Msg("Alert route names an unconfigured channel, skipping")
			continue
		}
		out = append(out, q)
	}
	return out
}

func (d *Dispatcher) enqueue(ctx context.Context, q *queue, j job) {
	d.mu.Lock()
	var err error
	if d.closed {
		err = ErrDispatcherClosed
	} else {
		select {
		case q.jobs <- j:
			queueDepth.WithLabelValues(q.name).Set(float64(len(q.jobs)))
		default:
			err = ErrQueueFull
		}
	}
	d.mu.Unlock()

	switch err {
	case ErrDispatcherClosed:
		d.record(ctx, j, 0, models.DeliveryAbandoned, err, 0)
	case ErrQueueFull:
		logging.Ctx(ctx).Error().
			Str("channel", q.name).
			Str("recipient", j.recipient).
			Msg("Delivery queue full, dropping job")
		d.record(ctx, j, 0, models.DeliveryDropped, err, 0)
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// LastDispatched returns the last dispatch time per severity.
func (d *Dispatcher) LastDispatched() map[models.Severity]time.Time {
	return d.cooldowns.snapshot()
}

// LastDelivered returns the last successful delivery time per channel.
func (d *Dispatcher) LastDelivered() map[string]time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]time.Time, len(d.delivered))
	for k, v := range d.delivered {
		out[k] = v
	}
	return out
}

// Channels returns the configured channel names, sorted.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.queues))
	for n := range d.queues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Serve runs one worker per channel until ctx is cancelled, then drains
// queued jobs for the shutdown grace period. Jobs still pending after the
// grace period are recorded as abandoned.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrDispatcherClosed
	}

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	for _, q := range d.queues {
		wg.Add(1)
		go func(q *queue) {
			defer wg.Done()
			d.work(workCtx, q)
		}(q)
	}
	logging.Info().Strs("channels", d.Channels()).Msg("Alert dispatcher started")

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	for _, q := range d.queues {
		close(q.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-done:
		logging.Info().Msg("Alert dispatcher drained")
	case <-timer.C:
		logging.Warn().Dur("grace", d.opts.ShutdownGrace).Msg("Shutdown grace expired, abandoning pending deliveries")
		cancelWork()
		<-done
	}
	return ctx.Err()
}

func (d *Dispatcher) work(ctx context.Context, q *queue) {
	for j := range q.jobs {
		queueDepth.WithLabelValues(q.name).Set(float64(len(q.jobs)))
		jctx := logging.ContextWithAlertID(ctx, j.event.ID)
		if ctx.Err() != nil {
			d.record(jctx, j, 0, models.DeliveryAbandoned, ctx.Err(), 0)
			continue
		}
		d.deliver(jctx, j)
	}
}

// deliver runs the retry loop for one job. Permanent errors stop at once.
func (d *Dispatcher) deliver(ctx context.Context, j job) {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(d.opts.BaseDelay),
		backoff.WithMaxInterval(d.opts.MaxDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	for attempt := 1; ; attempt++ {
		start := d.Clock()
		actx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
		err := j.channel.Send(actx, j.recipient, j.msg)
		cancel()
		took := d.Clock().Sub(start)

		if err == nil {
			d.record(ctx, j, attempt, models.DeliveryDelivered, nil, took)
			d.mu.Lock()
			d.delivered[j.channel.Name()] = d.Clock()
			d.mu.Unlock()
			return
		}

		de := notify.Classify(err)
		switch {
		case de.Kind == notify.Permanent:
			d.record(ctx, j, attempt, models.DeliveryFailed, de, took)
			return
		case ctx.Err() != nil:
			d.record(ctx, j, attempt, models.DeliveryAbandoned, de, took)
			return
		case attempt >= d.opts.MaxAttempts:
			d.record(ctx, j, attempt, models.DeliveryFailed, de, took)
			return
		}

		d.record(ctx, j, attempt, models.DeliveryRetrying, de, took)
		wait := bo.NextBackOff()
		if de.RetryAfter > wait {
			wait = de.RetryAfter
		}
		if wait > d.opts.MaxDelay {
			wait = d.opts.MaxDelay
		}
		if err := d.Sleep(ctx, wait); err != nil {
			d.record(ctx, j, attempt, models.DeliveryAbandoned, err, 0)
			return
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, j job, attempt int, status models.DeliveryStatus, err error, took time.Duration) {
	a := models.DeliveryAttempt{
		ID:        uuid.New().String(),
		AlertID:   j.event.ID,
		Severity:  j.event.Severity,
		Channel:   j.channel.Name(),
		Recipient: j.recipient,
		Attempt:   attempt,
		Status:    status,
		At:        d.Clock(),
		Duration:  took,
	}
	if err != nil {
		a.Error = err.Error()
		a.ErrorCode, a.Retryable = errorCode(err)
	}
	deliveryAttempts.WithLabelValues(a.Channel, string(status)).Inc()

	ev := logging.Ctx(ctx).Info()
	switch status {
	case models.DeliveryRetrying, models.DeliveryAbandoned, models.DeliveryDropped:
		ev = logging.Ctx(ctx).Warn()
	case models.DeliveryFailed:
		ev = logging.Ctx(ctx).Error()
	}
	ev.Str("channel", a.Channel).
		Str("recipient", a.Recipient).
		Int("attempt", attempt).
		Str("status", string(status)).
		Str("error_code", a.ErrorCode).
		Err(err).
		Msg("Delivery attempt")

	if d.audit != nil {
		if aerr := d.audit.RecordDelivery(&a); aerr != nil {
			logging.Ctx(ctx).Error().Err(aerr).Msg("Failed to record delivery attempt")
		}
		if a.Final() {
			if aerr := d.audit.RecordOutcome(&j.event, a.Outcome()); aerr != nil {
				logging.Ctx(ctx).Error().Err(aerr).Msg("Failed to record delivery outcome")
			}
		}
	}
	d.notifyDelivery(a)
}

// errorCode maps err to the audit code and retryability.
func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "QUEUE_FULL", false
	case errors.Is(err, ErrDispatcherClosed), errors.Is(err, context.Canceled):
		return "SHUTDOWN", false
	}
	de := notify.Classify(err)
	return de.Code, de.Kind == notify.Retryable
}

func (d *Dispatcher) notifyAlert(ev models.AlertEvent) {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	for _, fn := range d.alertListeners {
		fn(ev)
	}
}

func (d *Dispatcher) notifyDelivery(a models.DeliveryAttempt) {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	for _, fn := range d.deliveryListeners {
		fn(a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
