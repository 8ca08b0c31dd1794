// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package services

import "context"

// Runner is any component with a context-aware run loop: the alert
// dispatcher, event bus, quake poller, websocket hub and bus feed, and the
// archiver all satisfy it.
type Runner interface {
	Serve(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
//
//	services.NewNamedService("obslog-maintenance", services.RunnerFunc(log.Maintain))
type RunnerFunc func(ctx context.Context) error

// Serve calls f.
func (f RunnerFunc) Serve(ctx context.Context) error {
	return f(ctx)
}

// NamedService gives a Runner a name for supervisor logs.
type NamedService struct {
	runner Runner
	name   string
}

// NewNamedService wraps runner.
func NewNamedService(name string, runner Runner) *NamedService {
	return &NamedService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *NamedService) Serve(ctx context.Context) error {
	return s.runner.Serve(ctx)
}

// String implements fmt.Stringer.
func (s *NamedService) String() string {
	return s.name
}
