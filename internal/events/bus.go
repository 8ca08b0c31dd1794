// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package events publishes observations, alerts, deliveries and status
// changes to a Watermill bus so external consumers can follow the monitor.
//
// Publishing is best effort. Failures are logged and counted but never
// returned to the detection loop.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
	"github.com/tomtom215/tidewatch/internal/pipeline"
)

// Topic suffixes. Full topics are "<prefix>.<suffix>".
const (
	TopicObservations = "observations"
	TopicAlerts       = "alerts"
	TopicDeliveries   = "deliveries"
	TopicStatus       = "status"
)

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// Bus publishes monitor events. The zero backend ("none") accepts and
// discards everything.
type Bus struct {
	backend string
	prefix  string
	natsURL string
	logger  watermill.LoggerAdapter

	pub      message.Publisher
	sub      message.Subscriber
	embedded *EmbeddedServer
	breaker  *gobreaker.CircuitBreaker[any]

	mu     sync.Mutex
	closed bool
}

// New creates a bus for the configured backend. For the nats backend with
// Embedded set, an in-process JetStream server is started first.
func New(cfg *config.EventsConfig) (*Bus, error) {
	b := &Bus{
		backend: cfg.Backend,
		prefix:  cfg.TopicPrefix,
		logger:  NewLoggerAdapter(),
	}
	b.breaker = newBreaker()

	switch cfg.Backend {
	case "", "none":
		b.backend = "none"
		return b, nil

	case "memory":
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(cfg.BufferSize),
		}, b.logger)
		b.pub = ch
		b.sub = ch
		return b, nil

	case "nats":
		b.natsURL = cfg.URL
		if cfg.Embedded {
			srv, err := StartEmbedded(cfg.EmbeddedDir, cfg.Port)
			if err != nil {
				return nil, err
			}
			b.embedded = srv
			b.natsURL = srv.ClientURL()
		}
		pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
			URL:         b.natsURL,
			NatsOptions: b.natsOptions(),
			Marshaler:   &wmNats.NATSMarshaler{},
			JetStream: wmNats.JetStreamConfig{
				AutoProvision: true,
				TrackMsgId:    true,
				PublishOptions: []natsgo.PubOpt{
					natsgo.RetryAttempts(3),
					natsgo.RetryWait(100 * time.Millisecond),
				},
			},
		}, b.logger)
		if err != nil {
			b.shutdownEmbedded()
			return nil, fmt.Errorf("create watermill publisher: %w", err)
		}
		b.pub = pub
		logging.Info().Str("url", b.natsURL).Bool("embedded", cfg.Embedded).Msg("Event bus connected to NATS")
		return b, nil
	}
	return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "events",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logging.Warn().Str("component", "events").
				Str("from", from.String()).Str("to", to.String()).
				Msg("Event bus circuit breaker state changed")
		},
	})
}

func (b *Bus) natsOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("tidewatch"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				b.logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			b.logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// Backend returns the active backend name.
func (b *Bus) Backend() string { return b.backend }

// Topic returns the full topic for suffix.
func (b *Bus) Topic(suffix string) string {
	return b.prefix + "." + suffix
}

// PublishObservation publishes one observation.
func (b *Bus) PublishObservation(ctx context.Context, obs *models.Observation) {
	meta := map[string]string{"classification": string(obs.Classification)}
	b.publish(ctx, TopicObservations, obs.ID, obs, meta)
}

// PublishAlert publishes one dispatched alert event.
func (b *Bus) PublishAlert(ctx context.Context, ev *models.AlertEvent) {
	meta := map[string]string{"severity": string(ev.Severity), "source": string(ev.Source)}
	b.publish(ctx, TopicAlerts, ev.ID, ev, meta)
}

// PublishDelivery publishes one delivery attempt outcome.
func (b *Bus) PublishDelivery(ctx context.Context, a *models.DeliveryAttempt) {
	meta := map[string]string{"channel": a.Channel, "status": string(a.Status)}
	b.publish(ctx, TopicDeliveries, a.ID, a, meta)
}

// PublishStatus publishes a pipeline status snapshot.
func (b *Bus) PublishStatus(ctx context.Context, st *pipeline.Status) {
	meta := map[string]string{"state": string(st.State)}
	b.publish(ctx, TopicStatus, "", st, meta)
}

func (b *Bus) publish(_ context.Context, suffix, id string, v any, meta map[string]string) {
	if b.pub == nil || b.isClosed() {
		return
	}
	topic := b.Topic(suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		published.WithLabelValues(suffix, "encode_error").Inc()
		logging.Error().Err(err).Str("topic", topic).Msg("Failed to encode event")
		return
	}
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, payload)
	for k, val := range meta {
		msg.Metadata.Set(k, val)
	}
	if b.backend == "nats" {
		msg.Metadata.Set(natsgo.MsgIdHdr, id)
	}

	_, err = b.breaker.Execute(func() (any, error) {
		return nil, b.pub.Publish(topic, msg)
	})
	if err != nil {
		published.WithLabelValues(suffix, "error").Inc()
		logging.Warn().Err(err).Str("component", "events").Str("topic", topic).Msg("Event publish failed")
		return
	}
	published.WithLabelValues(suffix, "ok").Inc()
}

// Subscribe returns messages published to the topic suffix. For the nats
// backend a durable JetStream subscriber is created on first use.
func (b *Bus) Subscribe(ctx context.Context, suffix string) (<-chan *message.Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	if b.sub == nil {
		if b.backend != "nats" {
			b.mu.Unlock()
			return nil, fmt.Errorf("backend %q does not support subscriptions", b.backend)
		}
		sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
			URL:              b.natsURL,
			QueueGroupPrefix: b.prefix,
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     5 * time.Second,
			NatsOptions:      b.natsOptions(),
			Unmarshaler:      &wmNats.NATSMarshaler{},
			JetStream: wmNats.JetStreamConfig{
				AutoProvision: true,
				DurablePrefix: b.prefix,
				SubscribeOptions: []natsgo.SubOpt{
					natsgo.DeliverNew(),
				},
			},
		}, b.logger)
		if err != nil {
			b.mu.Unlock()
			return nil, fmt.Errorf("create watermill subscriber: %w", err)
		}
		b.sub = sub
	}
	sub := b.sub
	b.mu.Unlock()

	return sub.Subscribe(ctx, b.Topic(suffix))
}

// Decode unmarshals a message payload into v.
func Decode(msg *message.Message, v any) error {
	return json.Unmarshal(msg.Payload, v)
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts down the publisher, subscriber and embedded server.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if b.pub != nil {
		if err := b.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	// gochannel is both publisher and subscriber.
	if b.sub != nil && b.backend == "nats" {
		if err := b.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	b.shutdownEmbedded()
	return errors.Join(errs...)
}

func (b *Bus) shutdownEmbedded() {
	if b.embedded != nil {
		b.embedded.Shutdown()
		b.embedded = nil
	}
}

// Serve blocks until ctx is done, then closes the bus. It lets the bus run
// under the supervisor and shut down in order.
func (b *Bus) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := b.Close(); err != nil {
		logging.Error().Err(err).Msg("Event bus close failed")
	}
	return ctx.Err()
}
