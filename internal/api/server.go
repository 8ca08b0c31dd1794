// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/tidewatch/internal/config"
)

// NewServer builds the HTTP server for handler. WriteTimeout is left at
// zero when unset so websocket connections and long exports are not cut.
func NewServer(cfg *config.ServerConfig, handler *Handler) *http.Server {
	router := NewRouter(handler, NewChiMiddleware(MiddlewareConfigFrom(cfg)))
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
