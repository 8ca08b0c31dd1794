// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/tidewatch/internal/events"
	"github.com/tomtom215/tidewatch/internal/logging"
)

// Subscriber is the event bus as seen by the feed. *events.Bus implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// feedTopics maps bus topics to websocket message types.
var feedTopics = map[string]string{
	events.TopicObservations: MessageTypeObservation,
	events.TopicAlerts:       MessageTypeAlert,
	events.TopicDeliveries:   MessageTypeDelivery,
	events.TopicStatus:       MessageTypeStatus,
}

// BusFeed relays event bus messages to the hub, so dashboards see the
// same stream external consumers do.
type BusFeed struct {
	hub *Hub
	sub Subscriber
}

// NewBusFeed creates a feed.
func NewBusFeed(hub *Hub, sub Subscriber) *BusFeed {
	return &BusFeed{hub: hub, sub: sub}
}

// Serve subscribes to every feed topic and relays until ctx is cancelled
// or a subscription closes.
func (f *BusFeed) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for topic, msgType := range feedTopics {
		ch, err := f.sub.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		wg.Add(1)
		go func(msgType string, ch <-chan *message.Message) {
			defer wg.Done()
			defer cancel()
			f.relay(ctx, msgType, ch)
		}(msgType, ch)
	}
	logging.Info().Str("component", "websocket").Int("topics", len(feedTopics)).Msg("Event bus feed started")

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("event bus subscription closed")
}

func (f *BusFeed) relay(ctx context.Context, msgType string, ch <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.hub.BroadcastRaw(msgType, msg.Payload)
			msg.Ack()
		}
	}
}
