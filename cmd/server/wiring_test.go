// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/pipeline"
)

func loadTestConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STREAM_MODE", "file")
	t.Setenv("STREAM_URL", "file://"+dir)
	t.Setenv("OBSLOG_PATH", filepath.Join(dir, "obslog"))
	t.Setenv("EVENTS_BACKEND", "none")
	t.Setenv("ARCHIVE_ENABLED", "false")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestLocationFrom(t *testing.T) {
	loc := locationFrom(&config.LocationConfig{Name: "Anyer", Latitude: -6.05, Longitude: 105.88, Timezone: "Asia/Jakarta"})
	if loc.Name != "Anyer" || loc.Latitude != -6.05 || loc.Longitude != 105.88 || loc.Timezone != "Asia/Jakarta" {
		t.Errorf("got %+v", loc)
	}
}

func TestBuild_Minimal(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	c, err := build(context.Background(), cfg)
	defer c.close()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if c.log == nil || c.detector == nil || c.dispatcher == nil || c.controller == nil || c.hub == nil {
		t.Fatalf("missing core component: %+v", c)
	}
	if c.bus != nil || c.poller != nil || c.archive != nil || c.archiver != nil {
		t.Errorf("optional components built while disabled: %+v", c)
	}
	if got := c.controller.State(); got != pipeline.StateStarting {
		t.Errorf("got state %v, want %v", got, pipeline.StateStarting)
	}
}

func TestBuild_Optional(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"QUAKE_ENABLED":   "true",
		"EVENTS_BACKEND":  "memory",
		"ARCHIVE_ENABLED": "true",
		"ARCHIVE_PATH":    filepath.Join(t.TempDir(), "archive.duckdb"),
	})

	c, err := build(context.Background(), cfg)
	defer c.close()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if c.bus == nil {
		t.Error("event bus not built")
	} else {
		defer c.bus.Close()
	}
	if c.poller == nil {
		t.Error("quake poller not built")
	}
	if c.archive == nil || c.archiver == nil {
		t.Error("archive not built")
	}
}

func TestBuild_BadTimezone(t *testing.T) {
	cfg := loadTestConfig(t, nil)
	cfg.Location.Timezone = "Nowhere/Atlantis"

	c, err := build(context.Background(), cfg)
	defer c.close()
	if err == nil {
		t.Fatal("got nil error, want timezone failure")
	}
	if c.log != nil {
		t.Error("observation log opened before timezone check")
	}
}

func TestRetune(t *testing.T) {
	cfg := loadTestConfig(t, nil)
	c, err := build(context.Background(), cfg)
	defer c.close()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	next := *cfg
	next.Alerting.Elevated.Cooldown = 42 * time.Second
	c.retune(&next)

	if got := c.dispatcher.Policy().Routes[models.SeverityElevated].Cooldown; got != 42*time.Second {
		t.Errorf("got elevated cooldown %v, want 42s", got)
	}
}
