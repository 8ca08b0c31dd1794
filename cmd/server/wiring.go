// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/tidewatch/internal/alerting"
	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/database"
	"github.com/tomtom215/tidewatch/internal/detection"
	"github.com/tomtom215/tidewatch/internal/events"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/notify"
	"github.com/tomtom215/tidewatch/internal/obslog"
	"github.com/tomtom215/tidewatch/internal/pipeline"
	"github.com/tomtom215/tidewatch/internal/quake"
	"github.com/tomtom215/tidewatch/internal/stream"
	"github.com/tomtom215/tidewatch/internal/websocket"
)

// components holds everything main wires into the supervisor tree.
// Optional parts are nil when disabled.
type components struct {
	log        *obslog.Log
	detector   *detection.Detector
	dispatcher *alerting.Dispatcher
	controller *pipeline.Controller
	hub        *websocket.Hub
	bus        *events.Bus
	poller     *quake.Poller
	archive    *database.DB
	archiver   *database.Archiver
}

// close releases the stores. Safe to call on a partially built set.
func (c *components) close() {
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close archive")
		}
	}
	if c.log != nil {
		if err := c.log.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close observation log")
		}
	}
}

func locationFrom(cfg *config.LocationConfig) models.Location {
	return models.Location{
		Name:      cfg.Name,
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Timezone:  cfg.Timezone,
	}
}

// build constructs the pipeline and its collaborators. On error the caller
// must still call close.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	loc := locationFrom(&cfg.Location)

	tz, err := time.LoadLocation(cfg.Location.Timezone)
	if err != nil {
		return c, fmt.Errorf("load timezone %q: %w", cfg.Location.Timezone, err)
	}

	c.log, err = obslog.Open(cfg.ObsLog)
	if err != nil {
		return c, err
	}
	logging.Info().Str("path", cfg.ObsLog.Path).Int64("observations", c.log.Count()).Msg("Observation log opened")

	analyzer, err := detection.NewAnalyzer(&cfg.Detector)
	if err != nil {
		return c, fmt.Errorf("build analyzer: %w", err)
	}
	c.detector = detection.NewDetector(analyzer, detection.ThresholdsFrom(&cfg.Detector))

	channels := notify.FromConfig(&cfg.Notify, nil)
	c.dispatcher = alerting.NewDispatcher(
		alerting.OptionsFrom(&cfg.Alerting, loc),
		alerting.PolicyFrom(&cfg.Alerting, cfg.Detector.TsunamiConsecutive),
		channels,
		c.log,
	)
	logging.Info().Strs("channels", c.dispatcher.Channels()).Msg("Alert dispatcher configured")

	dialer, err := stream.NewDialer(cfg.Stream.Mode, &http.Client{}, cfg.Stream.SampleInterval)
	if err != nil {
		return c, fmt.Errorf("build stream dialer: %w", err)
	}
	streamCfg := cfg.Stream
	c.controller = pipeline.NewController(
		func(sink stream.StatusSink) pipeline.FrameSource {
			return stream.NewReader(streamCfg, dialer, sink)
		},
		c.detector, c.log, c.dispatcher, loc,
	)

	c.hub = websocket.NewHub()
	c.hub.SetSnapshot(c.controller.Status)

	if cfg.Events.Backend != "" && cfg.Events.Backend != "none" {
		c.bus, err = events.New(&cfg.Events)
		if err != nil {
			return c, fmt.Errorf("start event bus: %w", err)
		}
		logging.Info().Str("backend", c.bus.Backend()).Msg("Event bus started")
	}

	if cfg.Quake.Enabled {
		c.poller = quake.NewPoller(quake.NewClient(nil, cfg.Quake.URL), c.dispatcher, cfg.Quake, loc)
		logging.Info().Str("url", cfg.Quake.URL).Dur("interval", cfg.Quake.PollInterval).Msg("Earthquake feed enabled")
	}

	if cfg.Archive.Enabled {
		c.archive, err = database.Open(cfg.Archive.Path, tz)
		if err != nil {
			return c, fmt.Errorf("open archive: %w", err)
		}
		c.archiver = database.NewArchiver(c.archive, c.log, cfg.Archive.Interval, cfg.Archive.BatchSize)
		logging.Info().Str("path", cfg.Archive.Path).Msg("Archive opened")
	}

	c.fanout(ctx)
	return c, nil
}

// fanout connects controller and dispatcher events to the live feeds. With
// a bus, events are published and the websocket BusFeed relays them back;
// without one the hub is fed directly.
func (c *components) fanout(ctx context.Context) {
	bus, hub, ctrl := c.bus, c.hub, c.controller

	ctrl.OnObservation(func(obs models.Observation) {
		if bus != nil {
			bus.PublishObservation(ctx, &obs)
			return
		}
		hub.BroadcastObservation(&obs)
	})
	ctrl.Subscribe(func(st pipeline.Status) {
		if bus != nil {
			bus.PublishStatus(ctx, &st)
			return
		}
		hub.BroadcastStatus(&st)
	})
	c.dispatcher.OnAlert(func(ev models.AlertEvent) {
		ctrl.RecordAlert(ev)
		if bus != nil {
			bus.PublishAlert(ctx, &ev)
			return
		}
		hub.BroadcastAlert(&ev)
	})
	c.dispatcher.OnDelivery(func(a models.DeliveryAttempt) {
		ctrl.RecordDelivery(a)
		if bus != nil {
			bus.PublishDelivery(ctx, &a)
			return
		}
		hub.BroadcastDelivery(&a)
	})
}

// retune applies the live-tunable parts of a reloaded configuration.
// Anything else needs a restart.
func (c *components) retune(cfg *config.Config) {
	c.detector.Tune(detection.ThresholdsFrom(&cfg.Detector))
	c.dispatcher.Tune(alerting.PolicyFrom(&cfg.Alerting, cfg.Detector.TsunamiConsecutive))
	logging.SetLevelString(cfg.Logging.Level)
	logging.Info().
		Float64("elevated", cfg.Detector.ElevatedThreshold).
		Float64("critical", cfg.Detector.CriticalThreshold).
		Msg("Configuration reloaded")
}
