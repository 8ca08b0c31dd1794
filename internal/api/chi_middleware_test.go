// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareConfigFrom(t *testing.T) {
	t.Parallel()

	mc := MiddlewareConfigFrom(&config.ServerConfig{
		CORSOrigins:     []string{"https://dashboard.example"},
		RateLimitReqs:   20,
		RateLimitWindow: 30 * time.Second,
	})
	if len(mc.CORSAllowedOrigins) != 1 {
		t.Errorf("got origins %v, want 1", mc.CORSAllowedOrigins)
	}
	if mc.RateLimitRequests != 20 {
		t.Errorf("got requests %d, want 20", mc.RateLimitRequests)
	}
	if mc.RateLimitWindow != 30*time.Second {
		t.Errorf("got window %v, want 30s", mc.RateLimitWindow)
	}

	mc = MiddlewareConfigFrom(&config.ServerConfig{})
	if mc.RateLimitRequests != 100 || mc.RateLimitWindow != time.Minute {
		t.Errorf("zero config: got %d per %v, want defaults", mc.RateLimitRequests, mc.RateLimitWindow)
	}
}

func TestChiMiddleware_CORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		origins   []string
		origin    string
		wantAllow string
	}{
		{"configured origin", []string{"https://dashboard.example"}, "https://dashboard.example", "https://dashboard.example"},
		{"other origin", []string{"https://dashboard.example"}, "https://evil.example", ""},
		{"wildcard", []string{"*"}, "https://any.example", "*"},
		{"none configured", nil, "https://any.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultChiMiddlewareConfig()
			cfg.CORSAllowedOrigins = tt.origins
			h := NewChiMiddleware(cfg).CORS()(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("got Access-Control-Allow-Origin %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestChiMiddleware_RateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	h := NewChiMiddleware(cfg).RateLimit()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: got %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestChiMiddleware_RateLimitDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	cfg.RateLimitDisabled = true
	m := NewChiMiddleware(cfg)

	for _, mw := range []func(http.Handler) http.Handler{m.RateLimit(), m.RateLimitCustom(RateLimitExport)} {
		h := mw(okHandler())
		for i := 0; i < 20; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d: got %d, want 200", i, rec.Code)
			}
		}
	}
}

func TestRequestIDWithLogging(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestIDWithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "req-123" {
			t.Errorf("got context id %q, want req-123", seen)
		}
		if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
			t.Errorf("got header %q, want req-123", got)
		}
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Error("no request id generated")
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Errorf("header %q does not match context %q", rec.Header().Get("X-Request-ID"), seen)
		}
	})
}

func TestAPISecurityHeaders(t *testing.T) {
	t.Parallel()

	h := APISecurityHeaders()(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options missing")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing behind TLS proxy")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", "line\\x0abreak"},
		{"tab\there", "tab\\x09here"},
		{"del\x7f", "del\\x7f"},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
