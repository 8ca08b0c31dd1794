// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tidewatch/internal/api"
	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/metrics"
	"github.com/tomtom215/tidewatch/internal/supervisor"
	"github.com/tomtom215/tidewatch/internal/supervisor/services"
	"github.com/tomtom215/tidewatch/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on signal or finite source
// exhaustion, 1 on configuration errors or a lost stream.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	metrics.SetAppInfo(version, runtime.Version())

	logging.Info().
		Str("version", version).
		Str("location", cfg.Location.Name).
		Str("stream_mode", cfg.Stream.Mode).
		Msg("Starting Tidewatch with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg)
	defer c.close()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize")
		return 1
	}

	if path := config.ConfigFilePath(); path != "" {
		err := config.WatchConfigFile(path, c.retune, func(err error) {
			logging.Warn().Err(err).Msg("Configuration reload failed, keeping previous settings")
		})
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config file watch disabled")
		} else {
			logging.Info().Str("path", path).Msg("Watching config file for threshold changes")
		}
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return 1
	}

	pipelineSvc := services.NewPipelineService(c.controller)
	tree.AddPipelineService(pipelineSvc)

	// Data layer
	tree.AddDataService(services.NewNamedService("obslog-maintenance", services.RunnerFunc(c.log.Maintain)))
	if c.archiver != nil {
		tree.AddDataService(services.NewNamedService("archiver", c.archiver))
	}

	// Messaging layer
	tree.AddMessagingService(services.NewNamedService("alert-dispatcher", c.dispatcher))
	tree.AddMessagingService(services.NewNamedService("websocket-hub", c.hub))
	if c.bus != nil {
		tree.AddMessagingService(services.NewNamedService("event-bus", c.bus))
		tree.AddMessagingService(services.NewNamedService("websocket-feed", websocket.NewBusFeed(c.hub, c.bus)))
	}
	if c.poller != nil {
		tree.AddMessagingService(services.NewNamedService("quake-poller", c.poller))
	}

	// API layer
	deps := api.HandlerDeps{
		Status:    c.controller,
		Store:     c.log,
		WebSocket: websocket.Handler(c.hub, cfg.Server.CORSOrigins),
		Version:   version,
	}
	if c.archive != nil {
		deps.Archive = c.archive
	}
	if c.poller != nil {
		deps.Quake = c.poller
	}
	server := api.NewServer(&cfg.Server, api.NewHandler(deps))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = <-tree.ServeBackground(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err := pipelineSvc.Err(); err != nil {
		logging.Error().Err(err).Msg("Pipeline stopped on fatal error")
		return 1
	}
	if pipelineSvc.Ended() {
		logging.Info().Msg("Frame source exhausted")
	}
	logging.Info().Msg("Application stopped gracefully")
	return 0
}
