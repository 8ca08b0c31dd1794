// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package alerting

import (
	"fmt"
	"strings"

	"github.com/tomtom215/tidewatch/internal/models"
)

// observationAlert renders a detector alert for obs at severity sev.
func observationAlert(sev models.Severity, obs *models.Observation, loc string) Alert {
	a := Alert{
		Severity:      sev,
		Source:        models.SourceDetector,
		At:            obs.Timestamp,
		ObservationID: obs.ID,
		Metric:        obs.Metric,
	}

	where := ""
	if loc != "" {
		where = " at " + loc
	}

	var sb strings.Builder
	switch sev {
	case models.SeverityTsunami:
		a.Title = "POTENTIAL TSUNAMI ALERT" + where
		fmt.Fprintf(&sb, "Extreme wave activity for %d consecutive readings.\n", obs.CriticalRun)
		writeMeasurement(&sb, obs)
		sb.WriteString("\nEVACUATE TO HIGHER GROUND IMMEDIATELY")
	case models.SeverityCritical:
		a.Title = "CRITICAL wave activity" + where
		writeMeasurement(&sb, obs)
		sb.WriteString("\nMove away from the shoreline.")
	default:
		a.Title = "Elevated wave activity" + where
		writeMeasurement(&sb, obs)
	}
	a.Body = strings.TrimRight(sb.String(), "\n")
	return a
}

func writeMeasurement(sb *strings.Builder, obs *models.Observation) {
	fmt.Fprintf(sb, "Wave height: %.2f m", obs.Metric)
	if obs.Baseline != 0 {
		fmt.Fprintf(sb, " (baseline %.2f m, %+.2f m)", obs.Baseline, obs.Deviation)
	}
	sb.WriteString("\n")
	if level := obs.MetaString("level"); level != "" {
		fmt.Fprintf(sb, "Level: %s\n", level)
	}
	if y, ok := obs.MetaFloat("peak_y"); ok {
		fmt.Fprintf(sb, "Peak Y: %.0f (frame %d)\n", y, obs.Sequence)
	}
}
