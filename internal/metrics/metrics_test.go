// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordObservation(t *testing.T) {
	beforeElevated := testutil.ToFloat64(ObservationsTotal.WithLabelValues("elevated"))
	beforeDegraded := testutil.ToFloat64(ObservationsTotal.WithLabelValues("degraded"))
	beforeFrames := testutil.ToFloat64(FramesProcessed)

	RecordObservation("elevated", false, 1.8, 0.6)
	RecordObservation("normal", true, 99, 99)

	if got := testutil.ToFloat64(ObservationsTotal.WithLabelValues("elevated")) - beforeElevated; got != 1 {
		t.Errorf("elevated delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ObservationsTotal.WithLabelValues("degraded")) - beforeDegraded; got != 1 {
		t.Errorf("degraded delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(FramesProcessed) - beforeFrames; got != 2 {
		t.Errorf("frames delta = %v, want 2", got)
	}
	// Degraded observations leave the gauges alone.
	if got := testutil.ToFloat64(WaveMetric); got != 1.8 {
		t.Errorf("WaveMetric = %v, want 1.8", got)
	}
	if got := testutil.ToFloat64(WaveBaseline); got != 0.6 {
		t.Errorf("WaveBaseline = %v, want 0.6", got)
	}
}

func TestSetPipelineState(t *testing.T) {
	SetPipelineState("degraded")

	tests := []struct {
		state string
		want  float64
	}{
		{"starting", 0},
		{"running", 0},
		{"degraded", 1},
		{"stopped", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(PipelineState.WithLabelValues(tt.state)); got != tt.want {
			t.Errorf("state %s = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSetStreamConnected(t *testing.T) {
	before := testutil.ToFloat64(StreamReconnects)

	SetStreamConnected(true)
	if got := testutil.ToFloat64(StreamConnected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	SetStreamConnected(false)
	if got := testutil.ToFloat64(StreamConnected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}
	if got := testutil.ToFloat64(StreamReconnects) - before; got != 1 {
		t.Errorf("disconnects delta = %v, want 1", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert"))

	RecordDBQuery("insert", 5*time.Millisecond, nil)
	RecordDBQuery("insert", 5*time.Millisecond, errors.New("constraint"))

	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert")) - before; got != 1 {
		t.Errorf("errors delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/status", "200"))

	RecordAPIRequest("GET", "/api/v1/status", "200", 3*time.Millisecond)

	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/status", "200")) - before; got != 1 {
		t.Errorf("requests delta = %v, want 1", got)
	}

	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestRecordArchiveRun(t *testing.T) {
	before := testutil.ToFloat64(ArchiveRows)
	at := time.Unix(1_790_000_000, 0)

	RecordArchiveRun(42, at)

	if got := testutil.ToFloat64(ArchiveRows) - before; got != 42 {
		t.Errorf("rows delta = %v, want 42", got)
	}
	if got := testutil.ToFloat64(ArchiveLastRun); got != float64(at.Unix()) {
		t.Errorf("last run = %v, want %d", got, at.Unix())
	}
}
