// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package quake

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tidewatch/internal/alerting"
	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/models"
)

const sampleBulletin = `{
  "Infogempa": {
    "gempa": {
      "Tanggal": "19 Okt 2026",
      "Jam": "08:12:44 WIB",
      "DateTime": "2026-10-19T01:12:44+00:00",
      "Coordinates": "-8.12,110.40",
      "Lintang": "8.12 LS",
      "Bujur": "110.40 BT",
      "Magnitude": "5.6",
      "Kedalaman": "10 km",
      "Wilayah": "Pusat gempa berada di laut 90 km BaratDaya Gunungkidul",
      "Potensi": "Tidak berpotensi tsunami",
      "Dirasakan": "III Yogyakarta",
      "Shakemap": "20261019081244.mmi.jpg"
    }
  }
}`

func TestParse(t *testing.T) {
	t.Parallel()

	ev, err := Parse([]byte(sampleBulletin))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if ev.ID != "2026-10-19T01:12:44Z" {
		t.Errorf("ID = %q, want 2026-10-19T01:12:44Z", ev.ID)
	}
	if ev.Magnitude != 5.6 {
		t.Errorf("Magnitude = %v, want 5.6", ev.Magnitude)
	}
	if ev.DepthKm != 10 {
		t.Errorf("DepthKm = %v, want 10", ev.DepthKm)
	}
	if ev.Latitude != -8.12 || ev.Longitude != 110.40 {
		t.Errorf("coordinates = %v,%v, want -8.12,110.4", ev.Latitude, ev.Longitude)
	}
	if ev.ShakemapURL != "https://data.bmkg.go.id/DataMKG/TEWS/20261019081244.mmi.jpg" {
		t.Errorf("ShakemapURL = %q", ev.ShakemapURL)
	}
	if !strings.HasPrefix(ev.Region, "Pusat gempa") {
		t.Errorf("Region = %q", ev.Region)
	}
}

func TestParse_Fallbacks(t *testing.T) {
	t.Parallel()

	doc := `{"Infogempa":{"gempa":{"Tanggal":"19 Oct 2026","Jam":"08:12:44 WIB",
		"Coordinates":"3.50 LU,95.10 BB","Magnitude":"6.1","Kedalaman":"25 km"}}}`
	ev, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := time.Date(2026, 10, 19, 1, 12, 44, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, want)
	}
	if ev.Latitude != 3.5 || ev.Longitude != -95.1 {
		t.Errorf("coordinates = %v,%v, want 3.5,-95.1", ev.Latitude, ev.Longitude)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `<html>`},
		{"no bulletin", `{"Infogempa":{}}`},
		{"bad magnitude", `{"Infogempa":{"gempa":{"DateTime":"2026-10-19T01:12:44+00:00","Magnitude":"big"}}}`},
		{"bad time", `{"Infogempa":{"gempa":{"Magnitude":"5.0"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}

	if _, err := Parse([]byte(`{"Infogempa":{}}`)); !errors.Is(err, ErrNoBulletin) {
		t.Errorf("error = %v, want ErrNoBulletin", err)
	}
}

func TestTsunamiPotential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"Tidak berpotensi tsunami", false},
		{"Berpotensi tsunami", true},
		{"POTENSI TSUNAMI untuk diteruskan pada masyarakat", true},
		{"Gempa ini dirasakan", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := TsunamiPotential(tt.text); got != tt.want {
			t.Errorf("TsunamiPotential(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestHaversineKm(t *testing.T) {
	t.Parallel()

	// Yogyakarta to Jakarta is roughly 430 km.
	got := haversineKm(-7.797, 110.370, -6.208, 106.845)
	if math.Abs(got-428) > 10 {
		t.Errorf("haversineKm() = %.1f, want about 428", got)
	}
	if d := haversineKm(1, 1, 1, 1); d != 0 {
		t.Errorf("same point distance = %v, want 0", d)
	}
}

func TestClient_Latest(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		agent string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agent = r.Header.Get("User-Agent")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBulletin))
	}))
	defer srv.Close()

	ev, err := NewClient(srv.Client(), srv.URL).Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if ev.Magnitude != 5.6 {
		t.Errorf("Magnitude = %v, want 5.6", ev.Magnitude)
	}
	mu.Lock()
	defer mu.Unlock()
	if agent == "" {
		t.Error("User-Agent not sent")
	}
}

func TestClient_LatestStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.Client(), srv.URL).Latest(context.Background()); err == nil {
		t.Error("Latest() error = nil, want error on 502")
	}
}

type staticFeed struct {
	mu  sync.Mutex
	ev  models.QuakeEvent
	err error
}

func (f *staticFeed) Latest(context.Context) (models.QuakeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ev, f.err
}

type mockRaiser struct {
	mu     sync.Mutex
	alerts []alerting.Alert
	err    error
}

func (m *mockRaiser) Raise(_ context.Context, a alerting.Alert) (models.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.AlertEvent{}, m.err
	}
	m.alerts = append(m.alerts, a)
	return models.AlertEvent{ID: "a1", Severity: a.Severity, Source: a.Source, Title: a.Title}, nil
}

func testQuakeConfig() config.QuakeConfig {
	return config.QuakeConfig{
		Enabled:          true,
		URL:              "http://feed.test",
		PollInterval:     time.Minute,
		MinMagnitude:     5,
		TsunamiMagnitude: 6,
		MaxAge:           time.Hour,
	}
}

func TestPoller_Poll(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 1, 20, 0, 0, time.UTC)
	base, err := Parse([]byte(sampleBulletin))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		mutate       func(ev *models.QuakeEvent)
		wantAlert    bool
		wantSeverity models.Severity
	}{
		{"moderate quake", nil, true, models.SeverityEarthquake},
		{"below minimum", func(ev *models.QuakeEvent) { ev.Magnitude = 4.2 }, false, ""},
		{"stale", func(ev *models.QuakeEvent) { ev.OccurredAt = now.Add(-2 * time.Hour) }, false, ""},
		{"tsunami magnitude", func(ev *models.QuakeEvent) { ev.Magnitude = 6.3 }, true, models.SeverityTsunami},
		{"tsunami potential", func(ev *models.QuakeEvent) { ev.Potential = "Berpotensi tsunami" }, true, models.SeverityTsunami},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := base
			if tt.mutate != nil {
				tt.mutate(&ev)
			}
			raiser := &mockRaiser{}
			p := NewPoller(&staticFeed{ev: ev}, raiser, testQuakeConfig(), models.Location{Name: "Parangtritis", Latitude: -8.02, Longitude: 110.33})
			p.Clock = func() time.Time { return now }

			got, err := p.Poll(context.Background())
			if err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
			if (got != nil) != tt.wantAlert {
				t.Fatalf("alert raised = %v, want %v", got != nil, tt.wantAlert)
			}
			if !tt.wantAlert {
				return
			}
			a := raiser.alerts[0]
			if a.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", a.Severity, tt.wantSeverity)
			}
			if a.Source != models.SourceQuake {
				t.Errorf("source = %s, want quake", a.Source)
			}
			if !strings.Contains(a.Body, "from Parangtritis") {
				t.Errorf("body missing distance line: %q", a.Body)
			}
			wantEvac := tt.wantSeverity == models.SeverityTsunami
			if strings.Contains(a.Body, "EVACUATE") != wantEvac {
				t.Errorf("evacuation line present = %v, want %v", !wantEvac, wantEvac)
			}
		})
	}
}

func TestPoller_Dedup(t *testing.T) {
	t.Parallel()

	ev, err := Parse([]byte(sampleBulletin))
	if err != nil {
		t.Fatal(err)
	}
	raiser := &mockRaiser{}
	p := NewPoller(&staticFeed{ev: ev}, raiser, testQuakeConfig(), models.Location{})
	p.Clock = func() time.Time { return ev.OccurredAt.Add(time.Minute) }

	for i := 0; i < 3; i++ {
		if _, err := p.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	}
	if len(raiser.alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(raiser.alerts))
	}

	latest, ok := p.Latest()
	if !ok || latest.ID != ev.ID {
		t.Errorf("Latest() = %v,%v, want %s", latest.ID, ok, ev.ID)
	}
	if latest.DistanceKm == 0 {
		t.Error("DistanceKm not computed")
	}
}

func TestPoller_SuppressedIsNotError(t *testing.T) {
	t.Parallel()

	ev, err := Parse([]byte(sampleBulletin))
	if err != nil {
		t.Fatal(err)
	}
	p := NewPoller(&staticFeed{ev: ev}, &mockRaiser{err: alerting.ErrSuppressed}, testQuakeConfig(), models.Location{})
	p.Clock = func() time.Time { return ev.OccurredAt }

	got, err := p.Poll(context.Background())
	if err != nil || got != nil {
		t.Errorf("Poll() = %v, %v, want nil, nil", got, err)
	}
}

func TestPoller_ServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	feed := &staticFeed{err: errors.New("feed down")}
	p := NewPoller(feed, &mockRaiser{}, testQuakeConfig(), models.Location{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
