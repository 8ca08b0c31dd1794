// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package stream acquires decoded frames from the coastal camera.
//
// The Reader owns one Source at a time. Any failure on that source, a dial
// error, a read error or a read that outlives ReadTimeout, drops the source
// and reconnects after an exponential backoff with jitter. Undecodable
// frames are skipped until MaxDecodeErrors arrive in a row. After
// MaxReconnects consecutive failures Next returns ErrStreamUnavailable; the
// counter resets on the first frame delivered after a reconnect.
//
//	r := stream.NewReader(cfg.Stream, dialer, controller)
//	defer r.Close()
//	for {
//		frame, err := r.Next(ctx)
//		if err != nil {
//			return err
//		}
//		detector.Analyze(ctx, frame)
//	}
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
)

// StatusSink receives connection lifecycle notifications. The pipeline
// controller implements it to drive the Running and Degraded states.
type StatusSink interface {
	StreamConnected(at time.Time)
	StreamDisconnected(err error, consecutiveFailures int)
	FrameReceived(at time.Time)
}

type nopSink struct{}

func (nopSink) StreamConnected(time.Time)     {}
func (nopSink) StreamDisconnected(error, int) {}
func (nopSink) FrameReceived(time.Time)       {}

// Reader delivers frames from a reconnecting Source. Next must not be
// called concurrently; Close may be called from any goroutine.
type Reader struct {
	cfg    config.StreamConfig
	dialer Dialer
	sink   StatusSink

	// Clock and Sleep are replaced in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	backoff *backoff.ExponentialBackOff

	mu        sync.Mutex
	src       Source
	srcCancel context.CancelFunc
	lifetime  context.Context
	stop      context.CancelFunc
	closed    bool

	failures      int
	decodeErrors  int
	seq           uint64
	lastDelivered time.Time
}

// NewReader creates a Reader. sink may be nil.
func NewReader(cfg config.StreamConfig, dialer Dialer, sink StatusSink) *Reader {
	if sink == nil {
		sink = nopSink{}
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialBackoff),
		backoff.WithMaxInterval(cfg.MaxBackoff),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(cfg.Jitter),
		backoff.WithMaxElapsedTime(0),
	)

	lifetime, stop := context.WithCancel(context.Background())
	return &Reader{
		cfg:      cfg,
		dialer:   dialer,
		sink:     sink,
		Clock:    time.Now,
		Sleep:    sleepContext,
		backoff:  b,
		lifetime: lifetime,
		stop:     stop,
	}
}

// Open connects to the source, retrying with backoff. It is optional: Next
// connects on demand.
func (r *Reader) Open(ctx context.Context) error {
	r.mu.Lock()
	connected := r.src != nil
	r.mu.Unlock()
	if connected {
		return nil
	}
	return r.connect(ctx)
}

// Next returns the next sampled frame.
//
// Errors:
//   - ErrStreamUnavailable after MaxReconnects consecutive failures
//   - ErrEndOfStream when a finite source is exhausted
//   - ErrClosed after Close
//   - ctx.Err() on cancellation
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		r.mu.Lock()
		closed, src := r.closed, r.src
		r.mu.Unlock()
		if closed {
			return Frame{}, ErrClosed
		}
		if src == nil {
			if err := r.connect(ctx); err != nil {
				return Frame{}, err
			}
			continue
		}

		frame, err := r.read(ctx, src)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			if errors.Is(err, ErrEndOfStream) {
				r.dropSource()
				return Frame{}, err
			}
			if errors.Is(err, ErrDecode) {
				r.decodeErrors++
				logging.Debug().Err(err).Int("consecutive", r.decodeErrors).Msg("Skipping undecodable frame")
				if r.decodeErrors < r.cfg.MaxDecodeErrors {
					continue
				}
				err = fmt.Errorf("%d consecutive undecodable frames: %w", r.decodeErrors, err)
			}
			r.decodeErrors = 0
			r.dropSource()
			if ferr := r.fail(ctx, err); ferr != nil {
				return Frame{}, ferr
			}
			continue
		}

		r.decodeErrors = 0
		if r.failures > 0 {
			r.failures = 0
			r.backoff.Reset()
		}

		if r.cfg.SampleInterval > 0 && !r.lastDelivered.IsZero() &&
			frame.CapturedAt.Sub(r.lastDelivered) < r.cfg.SampleInterval {
			continue
		}

		r.seq++
		frame.Seq = r.seq
		r.lastDelivered = frame.CapturedAt
		r.sink.FrameReceived(frame.CapturedAt)
		return frame, nil
	}
}

// Close drops the current connection. Pending and later calls to Next
// return ErrClosed.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.stop()
	r.dropSource()
	return nil
}

// connect dials until it succeeds or the failure budget is spent.
func (r *Reader) connect(ctx context.Context) error {
	for {
		err := r.dial(ctx)
		if err == nil {
			logging.Info().Str("source", r.cfg.URL).Int("after_failures", r.failures).Msg("Stream connected")
			r.sink.StreamConnected(r.Clock())
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if ferr := r.fail(ctx, err); ferr != nil {
			return ferr
		}
	}
}

// dial opens a source bounded by ReadTimeout. The source's lifetime context
// derives from the Reader, so a caller's short-lived ctx does not cut it.
func (r *Reader) dial(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	sctx, cancel := context.WithCancel(r.lifetime)
	r.mu.Unlock()

	done := make(chan dialResult, 1)
	go func() {
		src, err := r.dialer.Dial(sctx, r.cfg.URL)
		done <- dialResult{src, err}
	}()

	timer := time.NewTimer(r.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			return res.err
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			cancel()
			res.src.Close()
			return ErrClosed
		}
		r.src, r.srcCancel = res.src, cancel
		r.mu.Unlock()
		return nil
	case <-timer.C:
		cancel()
		go closeLate(done)
		return fmt.Errorf("connect: %w", ErrReadTimeout)
	case <-ctx.Done():
		cancel()
		go closeLate(done)
		return ctx.Err()
	}
}

type dialResult struct {
	src Source
	err error
}

// closeLate releases a source whose dial completed after the caller gave up.
func closeLate(done <-chan dialResult) {
	if res := <-done; res.src != nil {
		res.src.Close()
	}
}

// read runs src.Next under ReadTimeout. A timed out read closes the source,
// which unblocks the reading goroutine.
func (r *Reader) read(ctx context.Context, src Source) (Frame, error) {
	type result struct {
		frame Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := src.Next()
		done <- result{f, err}
	}()

	timer := time.NewTimer(r.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.frame, res.err
	case <-timer.C:
		r.dropSource()
		return Frame{}, ErrReadTimeout
	case <-ctx.Done():
		r.dropSource()
		return Frame{}, ctx.Err()
	}
}

// fail records one connection failure and waits out the backoff. It returns
// ErrStreamUnavailable once the budget is spent.
func (r *Reader) fail(ctx context.Context, cause error) error {
	r.failures++
	r.sink.StreamDisconnected(cause, r.failures)

	if r.failures >= r.cfg.MaxReconnects {
		logging.Error().Err(cause).Int("failures", r.failures).Str("source", r.cfg.URL).Msg("Stream unavailable, giving up")
		return fmt.Errorf("%w after %d consecutive failures: %v", ErrStreamUnavailable, r.failures, cause)
	}

	wait := r.backoff.NextBackOff()
	logging.Warn().Err(cause).
		Int("failures", r.failures).
		Dur("retry_in", wait).
		Str("source", r.cfg.URL).
		Msg("Stream connection failed, reconnecting")
	return r.Sleep(ctx, wait)
}

func (r *Reader) dropSource() {
	r.mu.Lock()
	src, cancel := r.src, r.srcCancel
	r.src, r.srcCancel = nil, nil
	r.mu.Unlock()

	if src != nil {
		if err := src.Close(); err != nil {
			logging.Debug().Err(err).Msg("Closing stream source")
		}
	}
	if cancel != nil {
		cancel()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
