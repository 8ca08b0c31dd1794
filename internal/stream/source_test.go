// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y * 255 / h)})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMJPEGSource(t *testing.T) {
	t.Parallel()

	frame := jpegBytes(t, 32, 24)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		hdr := textproto.MIMEHeader{"Content-Type": {"image/jpeg"}}
		for _, body := range [][]byte{frame, frame, []byte("not a jpeg")} {
			pw, err := mw.CreatePart(hdr)
			if err != nil {
				return
			}
			_, _ = pw.Write(body)
		}
		_ = mw.Close()
	}))
	defer srv.Close()

	d, err := NewDialer("mjpeg", srv.Client(), 0)
	if err != nil {
		t.Fatal(err)
	}
	src, err := d.Dial(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer src.Close()

	for i := 0; i < 2; i++ {
		f, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if b := f.Image.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
			t.Errorf("frame %d bounds = %v, want 32x24", i, b)
		}
		if f.Source != srv.URL {
			t.Errorf("frame source = %q, want %q", f.Source, srv.URL)
		}
	}
	if _, err := src.Next(); !errors.Is(err, ErrDecode) {
		t.Errorf("garbage part error = %v, want ErrDecode", err)
	}
	if _, err := src.Next(); err == nil || errors.Is(err, ErrDecode) {
		t.Errorf("end of body error = %v, want connection error", err)
	}
}

func TestMJPEGDialRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }},
		{"content type", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("x"))
		}},
		{"boundary", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			d, _ := NewDialer("mjpeg", srv.Client(), 0)
			if src, err := d.Dial(context.Background(), srv.URL); err == nil {
				src.Close()
				t.Error("Dial succeeded, want error")
			}
		})
	}
}

func TestSnapshotSource(t *testing.T) {
	t.Parallel()

	frame := jpegBytes(t, 16, 16)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	}))
	defer srv.Close()

	d, _ := NewDialer("snapshot", srv.Client(), 5*time.Millisecond)
	src, err := d.Dial(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer src.Close()

	for i := 0; i < 3; i++ {
		if _, err := src.Next(); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("snapshot fetches = %d, want 3 (dial fetch reused)", got)
	}
}

func TestDirSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "notes.txt"} {
		var buf bytes.Buffer
		if filepath.Ext(name) == ".png" {
			if err := png.Encode(&buf, testImage(8, 8)); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	d, _ := NewDialer("file", nil, 0)
	src, err := d.Dial(context.Background(), "file://"+dir)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer src.Close()

	for i := 0; i < 2; i++ {
		if _, err := src.Next(); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}
	if _, err := src.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Next after last file = %v, want ErrEndOfStream", err)
	}

	if _, err := d.Dial(context.Background(), "file://"+t.TempDir()); err == nil {
		t.Error("Dial on empty directory succeeded")
	}
}

func TestNewDialerUnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := NewDialer("rtsp", nil, 0); err == nil {
		t.Error("NewDialer(rtsp) succeeded, want error")
	}
}
