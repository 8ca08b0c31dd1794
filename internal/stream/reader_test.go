// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tidewatch/internal/config"
)

var epoch = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

type step struct {
	frame Frame
	err   error
}

// fakeSource replays steps, then blocks until closed.
type fakeSource struct {
	mu     sync.Mutex
	steps  []step
	i      int
	closed chan struct{}
	once   sync.Once
}

func newFakeSource(steps ...step) *fakeSource {
	return &fakeSource{steps: steps, closed: make(chan struct{})}
}

func (s *fakeSource) Next() (Frame, error) {
	s.mu.Lock()
	if s.i < len(s.steps) {
		st := s.steps[s.i]
		s.i++
		s.mu.Unlock()
		return st.frame, st.err
	}
	s.mu.Unlock()
	<-s.closed
	return Frame{}, errors.New("source closed")
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out scripted results in order; the last one repeats.
type fakeDialer struct {
	mu      sync.Mutex
	results []interface{}
	dials   int
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.dials
	if idx >= len(d.results) {
		idx = len(d.results) - 1
	}
	d.dials++
	switch v := d.results[idx].(type) {
	case *fakeSource:
		return v, nil
	case error:
		return nil, v
	}
	return nil, errors.New("bad script")
}

type recordingSink struct {
	mu          sync.Mutex
	connects    int
	disconnects []int
	frames      int
}

func (s *recordingSink) StreamConnected(time.Time) {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
}

func (s *recordingSink) StreamDisconnected(_ error, n int) {
	s.mu.Lock()
	s.disconnects = append(s.disconnects, n)
	s.mu.Unlock()
}

func (s *recordingSink) FrameReceived(time.Time) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		URL:             "http://camera.test/stream",
		Mode:            "mjpeg",
		ReadTimeout:     time.Second,
		InitialBackoff:  time.Second,
		MaxBackoff:      4 * time.Second,
		Jitter:          0,
		MaxReconnects:   5,
		MaxDecodeErrors: 3,
	}
}

func newTestReader(cfg config.StreamConfig, d Dialer, sink StatusSink) (*Reader, *[]time.Duration) {
	r := NewReader(cfg, d, sink)
	var mu sync.Mutex
	sleeps := []time.Duration{}
	r.Sleep = func(ctx context.Context, dur time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, dur)
		mu.Unlock()
		return ctx.Err()
	}
	return r, &sleeps
}

func frameAt(offset time.Duration) step {
	return step{frame: Frame{CapturedAt: epoch.Add(offset)}}
}

func TestReaderReconnectsAfterReadError(t *testing.T) {
	t.Parallel()

	first := newFakeSource(frameAt(0), step{err: errors.New("connection reset")})
	second := newFakeSource(frameAt(time.Second))
	sink := &recordingSink{}
	r, sleeps := newTestReader(testStreamConfig(), &fakeDialer{results: []interface{}{first, second}}, sink)
	defer r.Close()

	ctx := context.Background()
	f1, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	f2, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}

	if f1.Seq != 1 || f2.Seq != 2 {
		t.Errorf("seq = %d, %d, want 1, 2", f1.Seq, f2.Seq)
	}
	if !first.isClosed() {
		t.Error("failed source was not closed")
	}
	if sink.connects != 2 {
		t.Errorf("connects = %d, want 2", sink.connects)
	}
	if len(sink.disconnects) != 1 || sink.disconnects[0] != 1 {
		t.Errorf("disconnects = %v, want [1]", sink.disconnects)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Errorf("sleeps = %v, want [1s]", *sleeps)
	}
}

func TestReaderGivesUpAfterMaxReconnects(t *testing.T) {
	t.Parallel()

	cfg := testStreamConfig()
	cfg.MaxReconnects = 3
	sink := &recordingSink{}
	d := &fakeDialer{results: []interface{}{errors.New("connection refused")}}
	r, sleeps := newTestReader(cfg, d, sink)
	defer r.Close()

	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("Next error = %v, want ErrStreamUnavailable", err)
	}
	if d.dials != 3 {
		t.Errorf("dials = %d, want 3", d.dials)
	}
	if len(*sleeps) != 2 {
		t.Errorf("backoff sleeps = %d, want 2", len(*sleeps))
	}
	if fmt.Sprint(sink.disconnects) != "[1 2 3]" {
		t.Errorf("disconnect counts = %v, want [1 2 3]", sink.disconnects)
	}
}

func TestReaderBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	cfg := testStreamConfig()
	cfg.MaxReconnects = 6
	r, sleeps := newTestReader(cfg, &fakeDialer{results: []interface{}{errors.New("refused")}}, nil)
	defer r.Close()

	if _, err := r.Next(context.Background()); !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("Next error = %v, want ErrStreamUnavailable", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if fmt.Sprint(*sleeps) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestReaderFailureCounterResetsOnFrame(t *testing.T) {
	t.Parallel()

	cfg := testStreamConfig()
	cfg.MaxReconnects = 3
	refused := errors.New("refused")
	d := &fakeDialer{results: []interface{}{
		refused, refused,
		newFakeSource(frameAt(0), step{err: errors.New("reset")}),
		refused,
		newFakeSource(frameAt(time.Second)),
	}}
	r, sleeps := newTestReader(cfg, d, nil)
	defer r.Close()

	ctx := context.Background()
	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("second Next after reset: %v", err)
	}

	// 1s, 2s before the first frame; the reset restarts the schedule at 1s.
	want := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if fmt.Sprint(*sleeps) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestReaderDecodeErrors(t *testing.T) {
	t.Parallel()

	decodeErr := fmt.Errorf("%w: bad jpeg", ErrDecode)

	tests := []struct {
		name          string
		steps         []step
		wantDials     int
		wantDisconnct int
	}{
		{
			name:      "skipped below limit",
			steps:     []step{{err: decodeErr}, {err: decodeErr}, frameAt(0)},
			wantDials: 1,
		},
		{
			name:          "reconnect at limit",
			steps:         []step{{err: decodeErr}, {err: decodeErr}, {err: decodeErr}},
			wantDials:     2,
			wantDisconnct: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{}
			d := &fakeDialer{results: []interface{}{newFakeSource(tt.steps...), newFakeSource(frameAt(time.Second))}}
			r, _ := newTestReader(testStreamConfig(), d, sink)
			defer r.Close()

			if _, err := r.Next(context.Background()); err != nil {
				t.Fatalf("Next: %v", err)
			}
			if d.dials != tt.wantDials {
				t.Errorf("dials = %d, want %d", d.dials, tt.wantDials)
			}
			if len(sink.disconnects) != tt.wantDisconnct {
				t.Errorf("disconnects = %d, want %d", len(sink.disconnects), tt.wantDisconnct)
			}
		})
	}
}

func TestReaderReadTimeoutReconnects(t *testing.T) {
	t.Parallel()

	cfg := testStreamConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	stalled := newFakeSource()
	d := &fakeDialer{results: []interface{}{stalled, newFakeSource(frameAt(0))}}
	sink := &recordingSink{}
	r, _ := newTestReader(cfg, d, sink)
	defer r.Close()

	if _, err := r.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !stalled.isClosed() {
		t.Error("stalled source was not closed")
	}
	if len(sink.disconnects) != 1 {
		t.Errorf("disconnects = %d, want 1", len(sink.disconnects))
	}
}

func TestReaderSampleInterval(t *testing.T) {
	t.Parallel()

	cfg := testStreamConfig()
	cfg.SampleInterval = time.Second
	src := newFakeSource(frameAt(0), frameAt(200*time.Millisecond), frameAt(600*time.Millisecond), frameAt(time.Second))
	r, _ := newTestReader(cfg, &fakeDialer{results: []interface{}{src}}, nil)
	defer r.Close()

	ctx := context.Background()
	f1, _ := r.Next(ctx)
	f2, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := f2.CapturedAt.Sub(f1.CapturedAt); got != time.Second {
		t.Errorf("delivered frames %v apart, want 1s", got)
	}
	if f2.Seq != 2 {
		t.Errorf("seq = %d, want 2", f2.Seq)
	}
}

func TestReaderEndOfStream(t *testing.T) {
	t.Parallel()

	src := newFakeSource(frameAt(0), step{err: ErrEndOfStream})
	r, _ := newTestReader(testStreamConfig(), &fakeDialer{results: []interface{}{src}}, nil)
	defer r.Close()

	ctx := context.Background()
	if _, err := r.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Next error = %v, want ErrEndOfStream", err)
	}
}

func TestReaderClose(t *testing.T) {
	t.Parallel()

	src := newFakeSource(frameAt(0))
	r, _ := newTestReader(testStreamConfig(), &fakeDialer{results: []interface{}{src}}, nil)
	if err := r.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.isClosed() {
		t.Error("source not closed")
	}
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", err)
	}
}

func TestReaderContextCancel(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(testStreamConfig(), &fakeDialer{results: []interface{}{newFakeSource()}}, nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next error = %v, want context.Canceled", err)
	}
}
