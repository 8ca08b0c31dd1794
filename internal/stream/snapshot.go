// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// snapshotSource polls a still-image endpoint. The dial performs the first
// fetch so an unreachable camera fails the dial rather than the first read.
type snapshotSource struct {
	ctx      context.Context
	cancel   context.CancelFunc
	client   *http.Client
	uri      string
	interval time.Duration
	clock    func() time.Time

	pending *Frame
	last    time.Time
}

func dialSnapshot(ctx context.Context, client *http.Client, uri string, interval time.Duration, clock func() time.Time) (*snapshotSource, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &snapshotSource{
		ctx:      sctx,
		cancel:   cancel,
		client:   client,
		uri:      uri,
		interval: interval,
		clock:    clock,
	}
	f, err := s.fetch()
	if err != nil {
		cancel()
		return nil, err
	}
	s.pending = &f
	return s, nil
}

func (s *snapshotSource) Next() (Frame, error) {
	if s.pending != nil {
		f := *s.pending
		s.pending = nil
		s.last = f.CapturedAt
		return f, nil
	}

	if wait := s.interval - s.clock().Sub(s.last); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return Frame{}, s.ctx.Err()
		case <-t.C:
		}
	}

	f, err := s.fetch()
	if err != nil {
		return Frame{}, err
	}
	s.last = f.CapturedAt
	return f, nil
}

func (s *snapshotSource) fetch() (Frame, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.uri, http.NoBody)
	if err != nil {
		return Frame{}, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeFrame(data, s.uri, s.clock())
}

func (s *snapshotSource) Close() error {
	s.cancel()
	return nil
}
