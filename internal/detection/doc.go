// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package detection turns decoded frames into classified wave observations.

# Architecture

Metric extraction and classification are separate concerns:

  - Analyzer: extracts one wave metric from a frame. The peak line analyzer
    finds the topmost strong horizontal edge in a region of interest and maps
    its pixel row to a wave height through a calibration table. Other
    strategies (optical flow, learned models) plug in behind the same
    interface.
  - Baseline: exponentially weighted mean and variance of recent conclusive
    readings, decayed by elapsed time so irregular sampling does not skew it.
  - Detector: compares each reading with the baseline and applies the
    threshold and debounce policy.

# Classification

	critical  metric >= CriticalThreshold, immediately unless
	          CriticalSustained is set
	elevated  metric - baseline >= ElevatedThreshold for at least
	          SustainedDuration of consecutive readings
	normal    anything else, including inconclusive readings

Elevated classification waits until the baseline has MinBaselineSamples
readings. Readings that breach a threshold do not feed the baseline, so a
long swell event cannot drag the baseline up and mask itself.

# Failure Handling

An analyzer error never escapes Analyze. The observation is returned with
Degraded set and the normal classification; after DegradedAfter consecutive
degraded observations Degraded() reports true so the pipeline controller can
move to its Degraded state.

# Thread Safety

Analyze is called from a single goroutine. Tune, Reset and the read
accessors may be called concurrently with it.
*/
package detection
