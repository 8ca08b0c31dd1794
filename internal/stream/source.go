// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"time"

	// Decoders registered for image.Decode.
	_ "image/jpeg"
	_ "image/png"
)

// Frame is one decoded video frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time

	// Seq increases by one for every frame the Reader delivers.
	Seq uint64

	// Source is the URI the frame was read from.
	Source string
}

// Source yields frames from one live connection. Next blocks until a frame
// arrives or the connection fails. Close unblocks a pending Next.
type Source interface {
	Next() (Frame, error)
	Close() error
}

// Dialer opens a Source. The context bounds the lifetime of the returned
// connection, not only the dial.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Source, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, uri string) (Source, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, uri string) (Source, error) {
	return f(ctx, uri)
}

// maxFrameBytes caps a single JPEG part or snapshot body.
const maxFrameBytes = 16 << 20

// NewDialer returns the dialer for a configured stream mode.
//
//	mjpeg     multipart/x-mixed-replace over HTTP
//	snapshot  repeated GET of a still image, one frame per poll
//	file      directory of images replayed in name order
func NewDialer(mode string, client *http.Client, pollInterval time.Duration) (Dialer, error) {
	if client == nil {
		client = &http.Client{}
	}
	switch mode {
	case "", "mjpeg":
		return DialerFunc(func(ctx context.Context, uri string) (Source, error) {
			return dialMJPEG(ctx, client, uri, time.Now)
		}), nil
	case "snapshot":
		return DialerFunc(func(ctx context.Context, uri string) (Source, error) {
			return dialSnapshot(ctx, client, uri, pollInterval, time.Now)
		}), nil
	case "file":
		return DialerFunc(func(ctx context.Context, uri string) (Source, error) {
			u, err := url.Parse(uri)
			if err != nil {
				return nil, fmt.Errorf("parse stream url: %w", err)
			}
			return openDir(ctx, u, time.Now)
		}), nil
	default:
		return nil, fmt.Errorf("unsupported stream mode %q", mode)
	}
}
