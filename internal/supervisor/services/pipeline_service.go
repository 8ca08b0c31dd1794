// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package services

import (
	"context"
	"errors"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/pipeline"
)

// PipelineService runs the pipeline controller under suture.
//
// Transient errors are returned so suture restarts the loop. A lost stream
// or an exhausted finite source ends the process: Serve returns
// suture.ErrTerminateSupervisorTree and Err reports the cause.
type PipelineService struct {
	runner Runner
	name   string

	mu    sync.Mutex
	fatal error
	ended bool
}

// NewPipelineService wraps the controller.
func NewPipelineService(controller Runner) *PipelineService {
	return &PipelineService{runner: controller, name: "pipeline"}
}

// Serve implements suture.Service.
func (p *PipelineService) Serve(ctx context.Context) error {
	err := p.runner.Serve(ctx)

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil:
		p.mu.Lock()
		p.ended = true
		p.mu.Unlock()
		logging.Info().Msg("Frame source exhausted, stopping")
		return suture.ErrTerminateSupervisorTree
	case errors.Is(err, pipeline.ErrStreamLost):
		p.mu.Lock()
		p.fatal = err
		p.mu.Unlock()
		logging.Error().Err(err).Msg("Pipeline lost its stream, stopping")
		return suture.ErrTerminateSupervisorTree
	default:
		logging.Warn().Err(err).Msg("Pipeline failed, restarting")
		return err
	}
}

// Err returns the fatal cause after the tree terminated, or nil.
func (p *PipelineService) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

// Ended reports whether a finite source ran to completion.
func (p *PipelineService) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// String implements fmt.Stringer.
func (p *PipelineService) String() string {
	return p.name
}
