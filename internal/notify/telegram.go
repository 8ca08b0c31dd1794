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
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const telegramMaxText = 4096

// TelegramChannel implements Telegram Bot API delivery.
type TelegramChannel struct {
	client  *http.Client
	baseURL string
	token   string
	chatIDs []string
}

// NewTelegramChannel creates a Telegram channel posting to chatIDs.
func NewTelegramChannel(client *http.Client, baseURL, token string, chatIDs []string) *TelegramChannel {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramChannel{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatIDs: splitRecipients(chatIDs),
	}
}

// Name implements Channel.
func (c *TelegramChannel) Name() string { return "telegram" }

// Recipients implements Channel.
func (c *TelegramChannel) Recipients() []string { return c.chatIDs }

type telegramSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// Send implements Channel.
func (c *TelegramChannel) Send(ctx context.Context, recipient string, msg *Message) error {
	payload, err := json.Marshal(telegramSendMessage{
		ChatID:                recipient,
		Text:                  truncate(msg.Text(), telegramMaxText),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return NewPermanent(CodeInvalidRequest, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return NewPermanent(CodeInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Classify(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		if resp.StatusCode >= 400 {
			return ClassifyHTTPStatus(resp.StatusCode, resp.Header, fmt.Errorf("telegram: %s", http.StatusText(resp.StatusCode)))
		}
		return NewRetryable(CodeServerError, fmt.Errorf("telegram: decode response: %w", err))
	}
	if tr.OK {
		return nil
	}
	return classifyTelegramError(resp, &tr)
}

func classifyTelegramError(resp *http.Response, tr *telegramResponse) *DeliveryError {
	code := tr.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	cause := fmt.Errorf("telegram %d: %s", code, tr.Description)
	desc := strings.ToLower(tr.Description)

	switch {
	case code == http.StatusUnauthorized:
		return &DeliveryError{Kind: Permanent, Code: CodeAuthFailed, Status: code, Err: cause}
	case code == http.StatusBadRequest && strings.Contains(desc, "chat not found"):
		return &DeliveryError{Kind: Permanent, Code: CodeInvalidRecipient, Status: code, Err: cause}
	case code == http.StatusForbidden:
		// bot was blocked or kicked
		return &DeliveryError{Kind: Permanent, Code: CodeInvalidRecipient, Status: code, Err: cause}
	case code == http.StatusTooManyRequests:
		de := &DeliveryError{Kind: Retryable, Code: CodeRateLimited, Status: code, Err: cause}
		if tr.Parameters != nil && tr.Parameters.RetryAfter > 0 {
			de.RetryAfter = time.Duration(tr.Parameters.RetryAfter) * time.Second
		}
		return de
	}
	return ClassifyHTTPStatus(code, resp.Header, cause)
}
