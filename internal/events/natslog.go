// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package events

import (
	"fmt"

	"github.com/tomtom215/tidewatch/internal/logging"
)

// natsLogger implements the nats-server Logger interface.
type natsLogger struct{}

func (natsLogger) Noticef(format string, v ...interface{}) {
	logging.Debug().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}

func (natsLogger) Warnf(format string, v ...interface{}) {
	logging.Warn().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}

func (natsLogger) Fatalf(format string, v ...interface{}) {
	logging.Error().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}

func (natsLogger) Errorf(format string, v ...interface{}) {
	logging.Error().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}

func (natsLogger) Debugf(format string, v ...interface{}) {
	logging.Trace().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}

func (natsLogger) Tracef(format string, v ...interface{}) {
	logging.Trace().Str("component", "nats").Msg(fmt.Sprintf(format, v...))
}
