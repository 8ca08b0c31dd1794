// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/models"
)

// WebhookChannel posts alerts as JSON to a single URL. The URL is the only
// recipient.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// WebhookPayload is the JSON body sent to webhook endpoints.
type WebhookPayload struct {
	AlertID     string          `json:"alert_id"`
	Severity    models.Severity `json:"severity"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Text        string          `json:"text"`
	TriggeredAt time.Time       `json:"triggered_at"`
	Location    models.Location `json:"location"`
}

// NewWebhookChannel creates a named webhook channel.
func NewWebhookChannel(client *http.Client, name, url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		name:    name,
		url:     url,
		headers: headers,
		client:  client,
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return c.name }

// Recipients implements Channel.
func (c *WebhookChannel) Recipients() []string { return []string{c.url} }

// Send implements Channel. recipient is ignored in favour of the configured URL.
func (c *WebhookChannel) Send(ctx context.Context, _ string, msg *Message) error {
	payload, err := json.Marshal(WebhookPayload{
		AlertID:     msg.AlertID,
		Severity:    msg.Severity,
		Title:       msg.Title,
		Body:        msg.Body,
		Text:        msg.Text(),
		TriggeredAt: msg.TriggeredAt,
		Location:    msg.Location,
	})
	if err != nil {
		return NewPermanent(CodeInvalidRequest, fmt.Errorf("marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return NewPermanent(CodeInvalidRequest, fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Tidewatch/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Classify(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return ClassifyHTTPStatus(resp.StatusCode, resp.Header,
			fmt.Errorf("webhook %s returned status %d", c.name, resp.StatusCode))
	}
	return nil
}
