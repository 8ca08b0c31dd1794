// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mjpegSource reads a multipart/x-mixed-replace stream, the format served
// by most IP cameras and by ffmpeg/mjpg-streamer relays.
type mjpegSource struct {
	uri   string
	body  io.ReadCloser
	parts *multipart.Reader
	clock func() time.Time

	closeOnce sync.Once
}

func dialMJPEG(ctx context.Context, client *http.Client, uri string, clock func() time.Time) (*mjpegSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connect stream: unexpected status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return nil, fmt.Errorf("connect stream: content type %q is not multipart", resp.Header.Get("Content-Type"))
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		resp.Body.Close()
		return nil, errors.New("connect stream: missing multipart boundary")
	}

	return &mjpegSource{
		uri:   uri,
		body:  resp.Body,
		parts: multipart.NewReader(resp.Body, boundary),
		clock: clock,
	}, nil
}

func (s *mjpegSource) Next() (Frame, error) {
	part, err := s.parts.NextPart()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, fmt.Errorf("stream closed by server: %w", io.ErrUnexpectedEOF)
		}
		return Frame{}, fmt.Errorf("read stream part: %w", err)
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxFrameBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("read stream part: %w", err)
	}
	return decodeFrame(data, s.uri, s.clock())
}

func (s *mjpegSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

func decodeFrame(data []byte, uri string, at time.Time) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Frame{Image: img, CapturedAt: at, Source: uri}, nil
}
