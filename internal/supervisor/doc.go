// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

/*
Package supervisor provides process supervision for Tidewatch using suture v4.

All long-running components run as suture services in a three-layer tree
plus the pipeline controller at the root:

	tidewatch
	├── pipeline (services.PipelineService)
	├── data-layer
	│   ├── obslog-maintenance
	│   └── archiver (if archive.enabled)
	├── messaging-layer
	│   ├── alert-dispatcher
	│   ├── event-bus
	│   ├── quake-poller (if quake.enabled)
	│   ├── websocket-hub
	│   └── websocket-bus-feed (memory and nats backends)
	└── api-layer
	    └── http-server

Crashed services restart with suture's backoff. The pipeline service is the
exception: a lost stream returns suture.ErrTerminateSupervisorTree and the
process exits non-zero.

Supervisor events are logged through sutureslog into the zerolog stream:

	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"),
	    supervisor.TreeConfigFrom(&cfg.Supervisor))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	err := tree.Serve(ctx)
*/
package supervisor
