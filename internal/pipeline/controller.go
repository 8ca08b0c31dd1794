// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package pipeline drives the detection loop and owns the process status.
//
// The Controller reads frames sequentially, classifies them, appends every
// observation to the log and hands it to the alert dispatcher. It moves
// through Starting, Running, Degraded and Stopped:
//
//	Starting  -> Running    first successful connect
//	Running  <-> Degraded   stream, detector or log health changes
//	any       -> Stopped    shutdown, end of a finite source, or the stream
//	                        reconnect budget running out
//
// Only the Controller mutates Status. Readers get deep copies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/tidewatch/internal/alerting"
	"github.com/tomtom215/tidewatch/internal/detection"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/metrics"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/obslog"
	"github.com/tomtom215/tidewatch/internal/stream"
)

// ErrStreamLost is returned by Serve when the stream reconnect budget is
// exhausted.
var ErrStreamLost = errors.New("video stream lost")

// FrameSource is the reconnecting frame reader. *stream.Reader implements it.
type FrameSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (stream.Frame, error)
	Close() error
}

// SourceFactory builds a FrameSource reporting connection events to sink.
type SourceFactory func(sink stream.StatusSink) FrameSource

// Detector classifies frames. *detection.Detector implements it.
type Detector interface {
	Analyze(ctx context.Context, frame stream.Frame) models.Observation
	Degraded() bool
	Stats() detection.Stats
	Reset()
}

// ObservationLog is the durable log. *obslog.Log implements it.
type ObservationLog interface {
	Append(obs *models.Observation) error
	FlushBuffer() error
	Degraded() bool
	Stats() obslog.Stats
}

// AlertSink is the alert dispatcher. *alerting.Dispatcher implements it.
type AlertSink interface {
	OnObservation(ctx context.Context, obs *models.Observation) []models.AlertEvent
	Raise(ctx context.Context, a alerting.Alert) (models.AlertEvent, error)
}

// Controller runs the detection loop.
type Controller struct {
	newSource SourceFactory
	detector  Detector
	log       ObservationLog
	alerts    AlertSink
	location  models.Location

	// Clock is replaced in tests.
	Clock func() time.Time

	mu     sync.RWMutex
	status Status

	listenersMu    sync.RWMutex
	statusSubs     []func(Status)
	observationFns []func(models.Observation)
}

// NewController wires the pipeline. alerts may be nil.
func NewController(newSource SourceFactory, detector Detector, log ObservationLog, alerts AlertSink, loc models.Location) *Controller {
	c := &Controller{
		newSource: newSource,
		detector:  detector,
		log:       log,
		alerts:    alerts,
		location:  loc,
		Clock:     time.Now,
	}
	c.reset()
	return c
}

func (c *Controller) reset() {
	now := c.Clock()
	c.mu.Lock()
	c.status = Status{
		State:                StateStarting,
		StateSince:           now,
		StartedAt:            now,
		Location:             c.location,
		LastAlertPerChannel:  make(map[string]time.Time),
		LastAlertPerSeverity: make(map[models.Severity]time.Time),
		DegradedReasons:      make(map[string]string),
	}
	c.mu.Unlock()
	metrics.SetPipelineState(string(StateStarting))
}

// Subscribe registers fn for state transitions.
func (c *Controller) Subscribe(fn func(Status)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.statusSubs = append(c.statusSubs, fn)
}

// OnObservation registers fn for every logged observation.
func (c *Controller) OnObservation(fn func(models.Observation)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.observationFns = append(c.observationFns, fn)
}

// Status returns a snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	s := c.status.clone()
	c.mu.RUnlock()

	if c.detector != nil {
		s.Detector = c.detector.Stats()
	}
	if c.log != nil {
		s.Log = c.log.Stats()
	}
	return s
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.State
}

// Serve runs the detection loop until ctx is cancelled, a finite source
// ends, or the stream is lost. Status is reset on every call.
func (c *Controller) Serve(ctx context.Context) error {
	c.reset()
	// A restarted run must not inherit breach timers from before the gap.
	c.detector.Reset()
	src := c.newSource(c)
	defer src.Close()

	logging.Info().Str("location", c.location.Name).Msg("Pipeline starting")

	if err := src.Open(ctx); err != nil {
		return c.finish(ctx, err)
	}

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			return c.finish(ctx, err)
		}
		c.process(ctx, frame)
	}
}

// process handles one frame: classify, log, then dispatch.
func (c *Controller) process(ctx context.Context, frame stream.Frame) {
	obs := c.detector.Analyze(ctx, frame)

	logErr := c.log.Append(&obs)
	if logErr != nil {
		logging.Error().Err(logErr).Str("observation_id", obs.ID).Msg("Observation log append failed")
	}

	if c.alerts != nil {
		c.alerts.OnObservation(ctx, &obs)
	}

	c.mu.Lock()
	c.status.FramesProcessed++
	c.status.LastObservation = &obs
	c.setReasonLocked(ReasonDetector, c.detector.Degraded(), "consecutive inconclusive observations")
	logDegraded, detail := c.log.Degraded(), "observations buffered in memory"
	var we *obslog.WriteError
	if errors.As(logErr, &we) {
		logDegraded, detail = true, we.Error()
	}
	c.setReasonLocked(ReasonLog, logDegraded, detail)
	changed := c.evaluateLocked()
	c.mu.Unlock()

	metrics.RecordObservation(string(obs.Classification), obs.Degraded, obs.Metric, obs.Baseline)
	c.publishObservation(obs)
	c.afterTransition(ctx, changed)

	logging.Debug().
		Uint64("seq", obs.Sequence).
		Float64("metric", obs.Metric).
		Str("classification", string(obs.Classification)).
		Bool("degraded", obs.Degraded).
		Msg("Observation")
}

// finish maps a loop exit to the Stopped state and the Serve result.
func (c *Controller) finish(ctx context.Context, cause error) error {
	if err := c.log.FlushBuffer(); err != nil {
		logging.Error().Err(err).Msg("Failed to flush observation buffer on stop")
	}

	switch {
	case ctx.Err() != nil || errors.Is(cause, stream.ErrClosed):
		c.stop("shutdown")
		logging.Info().Msg("Pipeline stopped")
		return nil
	case errors.Is(cause, stream.ErrEndOfStream):
		c.stop("end of stream")
		logging.Info().Msg("Pipeline stopped, source exhausted")
		return nil
	case errors.Is(cause, stream.ErrStreamUnavailable):
		reason := fmt.Sprintf("stream unavailable: %v", cause)
		c.stop(reason)
		logging.Error().Err(cause).Msg("Pipeline stopped, stream reconnect budget exhausted")
		c.raise(context.WithoutCancel(ctx), "Wave monitor offline",
			fmt.Sprintf("The camera stream could not be recovered and monitoring has stopped.\n%v", cause))
		return fmt.Errorf("%w: %w", ErrStreamLost, cause)
	default:
		c.stop(cause.Error())
		return cause
	}
}

func (c *Controller) stop(reason string) {
	c.mu.Lock()
	changed := c.status.State != StateStopped
	c.status.State = StateStopped
	c.status.StateSince = c.Clock()
	c.status.StopReason = reason
	c.status.StreamConnected = false
	c.mu.Unlock()
	if changed {
		metrics.SetPipelineState(string(StateStopped))
		metrics.StreamConnected.Set(0)
		c.publishStatus()
	}
}

// StreamConnected implements stream.StatusSink.
func (c *Controller) StreamConnected(time.Time) {
	c.mu.Lock()
	c.status.StreamConnected = true
	c.status.ConsecutiveFailures = 0
	c.setReasonLocked(ReasonStream, false, "")
	changed := c.evaluateLocked()
	c.mu.Unlock()
	metrics.SetStreamConnected(true)
	c.afterTransition(context.Background(), changed)
}

// StreamDisconnected implements stream.StatusSink.
func (c *Controller) StreamDisconnected(err error, consecutiveFailures int) {
	c.mu.Lock()
	c.status.StreamConnected = false
	c.status.ConsecutiveFailures = consecutiveFailures
	c.setReasonLocked(ReasonStream, true, fmt.Sprintf("reconnecting after %d failures: %v", consecutiveFailures, err))
	changed := c.evaluateLocked()
	c.mu.Unlock()
	metrics.SetStreamConnected(false)
	c.afterTransition(context.Background(), changed)
}

// FrameReceived implements stream.StatusSink.
func (c *Controller) FrameReceived(at time.Time) {
	c.mu.Lock()
	c.status.LastFrameAt = at
	c.mu.Unlock()
}

// RecordDelivery tracks successful deliveries per channel. Register it with
// the dispatcher's OnDelivery.
func (c *Controller) RecordDelivery(a models.DeliveryAttempt) {
	if a.Status != models.DeliveryDelivered {
		return
	}
	c.mu.Lock()
	c.status.LastAlertPerChannel[a.Channel] = a.At
	c.mu.Unlock()
}

// RecordAlert tracks dispatched events per severity. Register it with the
// dispatcher's OnAlert.
func (c *Controller) RecordAlert(ev models.AlertEvent) {
	c.mu.Lock()
	c.status.LastAlertPerSeverity[ev.Severity] = ev.TriggeredAt
	c.mu.Unlock()
}

func (c *Controller) setReasonLocked(key string, on bool, detail string) {
	if on {
		c.status.DegradedReasons[key] = detail
		return
	}
	delete(c.status.DegradedReasons, key)
}

// transition describes a state change for afterTransition.
type transition struct {
	from, to State
	reasons  string
}

// evaluateLocked derives the state from degradation reasons. Caller holds mu.
func (c *Controller) evaluateLocked() *transition {
	from := c.status.State
	if from == StateStopped {
		return nil
	}

	to := from
	switch {
	case len(c.status.DegradedReasons) > 0:
		// Starting only leaves on a connect, which clears the stream reason.
		if from != StateStarting || c.status.StreamConnected {
			to = StateDegraded
		}
	case c.status.StreamConnected || from != StateStarting:
		to = StateRunning
	}
	if to == from {
		return nil
	}

	c.status.State = to
	c.status.StateSince = c.Clock()
	return &transition{from: from, to: to, reasons: formatReasons(c.status.DegradedReasons)}
}

func (c *Controller) afterTransition(ctx context.Context, t *transition) {
	if t == nil {
		return
	}
	metrics.SetPipelineState(string(t.to))
	ev := logging.Info()
	if t.to == StateDegraded {
		ev = logging.Warn()
	}
	ev.Str("from", string(t.from)).Str("to", string(t.to)).Str("reasons", t.reasons).Msg("Pipeline state changed")

	if t.to == StateDegraded {
		c.raise(ctx, "Wave monitor degraded", "Monitoring continues with reduced confidence.\n"+t.reasons)
	}
	c.publishStatus()
}

func (c *Controller) raise(ctx context.Context, title, body string) {
	if c.alerts == nil {
		return
	}
	_, err := c.alerts.Raise(ctx, alerting.Alert{
		Severity: models.SeveritySystem,
		Source:   models.SourceSystem,
		Title:    title,
		Body:     body,
		At:       c.Clock(),
	})
	if err != nil && !errors.Is(err, alerting.ErrSuppressed) {
		logging.Warn().Err(err).Str("title", title).Msg("System notice not dispatched")
	}
}

func (c *Controller) publishStatus() {
	c.listenersMu.RLock()
	subs := c.statusSubs
	c.listenersMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	s := c.Status()
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Controller) publishObservation(obs models.Observation) {
	c.listenersMu.RLock()
	fns := c.observationFns
	c.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(obs)
	}
}

func formatReasons(r map[string]string) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+r[k])
	}
	return strings.Join(parts, "; ")
}
