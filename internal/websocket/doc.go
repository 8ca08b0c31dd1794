// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package websocket pushes live observations, alerts, delivery outcomes and
status changes to dashboards.

A Hub owns the set of connected clients and fans messages out in client ID
order. Each Client runs a read pump (pings, disconnect detection) and a
write pump (messages and keepalives). A client whose send buffer fills is
disconnected rather than allowed to stall the hub.

Messages are JSON objects with a type and a data payload:

	{"type": "observation", "data": {...}}
	{"type": "alert", "data": {...}}
	{"type": "delivery", "data": {...}}
	{"type": "status", "data": {...}}

New clients receive the current status immediately after connecting.

The hub is fed either directly from pipeline and dispatcher listeners or,
when the event bus supports subscriptions, by a BusFeed relaying the bus
topics.

	hub := websocket.NewHub()
	hub.SetSnapshot(controller.Status)
	go hub.Serve(ctx)
	r.Get("/api/v1/ws", websocket.Handler(hub, cfg.Server.CORSOrigins))
*/
package websocket
