// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// dirSource replays image files from a directory in lexical order. Used for
// offline calibration against recorded footage.
//
// Query parameters on the file:// URL:
//
//	interval=500ms  pause between frames (default none)
//	loop=true       restart from the first file instead of ending
type dirSource struct {
	ctx      context.Context
	cancel   context.CancelFunc
	uri      string
	files    []string
	next     int
	interval time.Duration
	loop     bool
	clock    func() time.Time
}

var replayExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

func openDir(ctx context.Context, u *url.URL, clock func() time.Time) (*dirSource, error) {
	dir := u.Path
	if dir == "" {
		dir = u.Opaque
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open replay directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("open replay directory: no images in %s", dir)
	}
	sort.Strings(files)

	q := u.Query()
	var interval time.Duration
	if v := q.Get("interval"); v != "" {
		if interval, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("replay interval: %w", err)
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	return &dirSource{
		ctx:      sctx,
		cancel:   cancel,
		uri:      u.String(),
		files:    files,
		interval: interval,
		loop:     q.Get("loop") == "true",
		clock:    clock,
	}, nil
}

func (s *dirSource) Next() (Frame, error) {
	if s.next >= len(s.files) {
		if !s.loop {
			return Frame{}, ErrEndOfStream
		}
		s.next = 0
	}
	if s.interval > 0 && s.next > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return Frame{}, s.ctx.Err()
		case <-t.C:
		}
	}

	path := s.files[s.next]
	s.next++
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read replay frame: %w", err)
	}
	return decodeFrame(data, s.uri, s.clock())
}

func (s *dirSource) Close() error {
	s.cancel()
	return nil
}
