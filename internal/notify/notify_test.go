// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/models"
)

func testMessage() *Message {
	return &Message{
		AlertID:     "a-1",
		Severity:    models.SeverityCritical,
		Title:       "CRITICAL wave activity",
		Body:        "Wave height 3.2m",
		TriggeredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Location: models.Location{
			Name:      "Pantai Selatan",
			Latitude:  -8.0123,
			Longitude: 110.2934,
		},
	}
}

func TestMessageText(t *testing.T) {
	t.Parallel()

	text := testMessage().Text()
	for _, want := range []string{
		"CRITICAL wave activity",
		"Wave height 3.2m",
		"Location: Pantai Selatan",
		"https://maps.google.com/?q=-8.01230,110.29340",
		"2026-03-01 12:00:00",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   Kind
		code   string
	}{
		{http.StatusBadRequest, Permanent, CodeInvalidRequest},
		{http.StatusUnauthorized, Permanent, CodeAuthFailed},
		{http.StatusForbidden, Permanent, CodeAuthFailed},
		{http.StatusNotFound, Permanent, CodeInvalidRecipient},
		{http.StatusRequestTimeout, Retryable, CodeTimeout},
		{http.StatusTooManyRequests, Retryable, CodeRateLimited},
		{http.StatusInternalServerError, Retryable, CodeServerError},
		{http.StatusServiceUnavailable, Retryable, CodeServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			de := ClassifyHTTPStatus(tt.status, nil, errors.New("x"))
			if de.Kind != tt.kind || de.Code != tt.code {
				t.Errorf("got %s/%s, want %s/%s", de.Kind, de.Code, tt.kind, tt.code)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	if got := Classify(context.DeadlineExceeded); got.Code != CodeTimeout || got.Kind != Retryable {
		t.Errorf("deadline: got %s/%s", got.Kind, got.Code)
	}
	if got := Classify(errors.New("connection refused")); got.Code != CodeNetworkError {
		t.Errorf("network: got %s", got.Code)
	}
	perm := NewPermanent(CodeAuthFailed, errors.New("bad token"))
	if got := Classify(perm); got != perm {
		t.Error("Classify should return an existing DeliveryError unchanged")
	}
	if !IsPermanent(perm) {
		t.Error("IsPermanent(perm) = false")
	}
}

func TestRetryAfterHeader(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "7")
	de := ClassifyHTTPStatus(http.StatusTooManyRequests, h, errors.New("slow down"))
	if de.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", de.RetryAfter)
	}
}

type twilioRequest struct {
	path string
	user string
	form url.Values
}

func newTwilioServer(t *testing.T, status int, body string) (*httptest.Server, *[]twilioRequest, *sync.Mutex) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []twilioRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		_ = r.ParseForm()
		mu.Lock()
		reqs = append(reqs, twilioRequest{path: r.URL.Path, user: user, form: r.PostForm})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs, &mu
}

func TestWhatsAppChannelSend(t *testing.T) {
	t.Parallel()

	srv, reqs, mu := newTwilioServer(t, http.StatusCreated, `{"sid":"SM123","status":"queued"}`)
	ch := NewWhatsAppChannel(srv.Client(), srv.URL, "AC1", "tok", "", []string{"+6281111, +6282222", " "})

	if got := ch.Recipients(); len(got) != 2 || got[0] != "whatsapp:+6281111" || got[1] != "whatsapp:+6282222" {
		t.Fatalf("Recipients() = %v", got)
	}
	if err := ch.Send(context.Background(), ch.Recipients()[0], testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(*reqs))
	}
	r := (*reqs)[0]
	if r.path != "/2010-04-01/Accounts/AC1/Messages.json" {
		t.Errorf("path = %q", r.path)
	}
	if r.user != "AC1" {
		t.Errorf("basic auth user = %q, want AC1", r.user)
	}
	if got := r.form.Get("From"); got != DefaultWhatsAppFrom {
		t.Errorf("From = %q, want %q", got, DefaultWhatsAppFrom)
	}
	if got := r.form.Get("To"); got != "whatsapp:+6281111" {
		t.Errorf("To = %q", got)
	}
	if !strings.Contains(r.form.Get("Body"), "CRITICAL wave activity") {
		t.Errorf("Body = %q", r.form.Get("Body"))
	}
}

func TestSMSChannelPrefersMessagingService(t *testing.T) {
	t.Parallel()

	srv, reqs, mu := newTwilioServer(t, http.StatusCreated, `{"sid":"SM1"}`)
	ch := NewSMSChannel(srv.Client(), srv.URL, "AC1", "tok", "+1555", "MG9", []string{"+6281111"})
	if err := ch.Send(context.Background(), "+6281111", testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	form := (*reqs)[0].form
	if form.Get("MessagingServiceSid") != "MG9" || form.Get("From") != "" {
		t.Errorf("form = %v, want MessagingServiceSid only", form)
	}
}

func TestSMSChannelRejectsNonE164(t *testing.T) {
	t.Parallel()

	ch := NewSMSChannel(http.DefaultClient, "http://unused", "AC1", "tok", "+1555", "", nil)
	err := ch.Send(context.Background(), "0812", testMessage())
	if !IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestTwilioErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
		code   string
	}{
		{"invalid number", 400, `{"code":21211,"message":"Invalid 'To' Phone Number"}`, Permanent, CodeInvalidRecipient},
		{"unsubscribed", 400, `{"code":21610,"message":"Attempt to send to unsubscribed recipient"}`, Permanent, CodeInvalidRecipient},
		{"auth", 401, `{"code":20003,"message":"Authenticate"}`, Permanent, CodeAuthFailed},
		{"rate limited", 429, `{"code":20429,"message":"Too Many Requests"}`, Retryable, CodeRateLimited},
		{"server", 503, `{"message":"unavailable"}`, Retryable, CodeServerError},
		{"garbage", 502, `<html>`, Retryable, CodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _, _ := newTwilioServer(t, tt.status, tt.body)
			ch := NewSMSChannel(srv.Client(), srv.URL, "AC1", "tok", "+1555", "", nil)
			err := ch.Send(context.Background(), "+6281111", testMessage())
			var de *DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("got %T %v, want *DeliveryError", err, err)
			}
			if de.Kind != tt.kind || de.Code != tt.code {
				t.Errorf("got %s/%s, want %s/%s", de.Kind, de.Code, tt.kind, tt.code)
			}
		})
	}
}

func TestTelegramChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
		after  time.Duration
	}{
		{"ok", 200, `{"ok":true,"result":{}}`, "", 0},
		{"chat not found", 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, CodeInvalidRecipient, 0},
		{"unauthorized", 401, `{"ok":false,"error_code":401,"description":"Unauthorized"}`, CodeAuthFailed, 0},
		{"blocked", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, CodeInvalidRecipient, 0},
		{"flood", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, CodeRateLimited, 3 * time.Second},
		{"server", 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, CodeServerError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var (
				mu               sync.Mutex
				gotPath, gotChat string
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req telegramSendMessage
				_ = json.NewDecoder(r.Body).Decode(&req)
				mu.Lock()
				gotPath, gotChat = r.URL.Path, req.ChatID
				mu.Unlock()
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			ch := NewTelegramChannel(srv.Client(), srv.URL, "123:abc", []string{"-100"})
			err := ch.Send(context.Background(), "-100", testMessage())
			mu.Lock()
			defer mu.Unlock()
			if gotPath != "/bot123:abc/sendMessage" {
				t.Errorf("path = %q", gotPath)
			}
			if gotChat != "-100" {
				t.Errorf("chat_id = %q", gotChat)
			}
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Send() error = %v", err)
				}
				return
			}
			de := Classify(err)
			if de == nil || de.Code != tt.want {
				t.Fatalf("got %v, want code %s", err, tt.want)
			}
			if de.RetryAfter != tt.after {
				t.Errorf("RetryAfter = %v, want %v", de.RetryAfter, tt.after)
			}
		})
	}
}

func TestWebhookChannel(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		got  WebhookPayload
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.Client(), "tsunami", srv.URL, map[string]string{"Authorization": "Bearer s"})
	if ch.Name() != "tsunami" {
		t.Errorf("Name() = %q", ch.Name())
	}
	if err := ch.Send(context.Background(), "", testMessage()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer s" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.AlertID != "a-1" || got.Severity != models.SeverityCritical {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookChannelServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.Client(), "siren", srv.URL, nil).Send(context.Background(), "", testMessage())
	if err == nil || IsPermanent(err) {
		t.Fatalf("got %v, want retryable error", err)
	}
}

// scriptedChannel returns errors from a script, then nil.
type scriptedChannel struct {
	mu     sync.Mutex
	script []error
	calls  atomic.Int32
}

func (c *scriptedChannel) Name() string         { return "scripted" }
func (c *scriptedChannel) Recipients() []string { return []string{"r"} }
func (c *scriptedChannel) Send(context.Context, string, *Message) error {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) == 0 {
		return nil
	}
	err := c.script[0]
	c.script = c.script[1:]
	return err
}

func TestGuardOpensOnRetryableFailures(t *testing.T) {
	t.Parallel()

	fail := NewRetryable(CodeServerError, errors.New("503"))
	inner := &scriptedChannel{script: []error{fail, fail, fail}}
	g := NewGuard(inner, GuardConfig{MaxFailures: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		if err := g.Send(context.Background(), "r", testMessage()); err == nil {
			t.Fatalf("send %d: want error", i)
		}
	}
	err := g.Send(context.Background(), "r", testMessage())
	de := Classify(err)
	if de.Code != CodeCircuitOpen || de.Kind != Retryable {
		t.Fatalf("got %v, want retryable CIRCUIT_OPEN", err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("inner calls = %d, want 2", n)
	}
	if g.State() != "open" {
		t.Errorf("State() = %q, want open", g.State())
	}
}

func TestGuardIgnoresPermanentFailures(t *testing.T) {
	t.Parallel()

	perm := NewPermanent(CodeInvalidRecipient, errors.New("bad number"))
	inner := &scriptedChannel{script: []error{perm, perm, perm, perm}}
	g := NewGuard(inner, GuardConfig{MaxFailures: 2, OpenTimeout: time.Hour})

	for i := 0; i < 4; i++ {
		if err := g.Send(context.Background(), "r", testMessage()); !IsPermanent(err) {
			t.Fatalf("send %d: got %v, want permanent", i, err)
		}
	}
	if g.State() != "closed" {
		t.Errorf("State() = %q, want closed", g.State())
	}
}

func TestGuardRateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	g := NewGuard(&scriptedChannel{}, GuardConfig{RatePerSecond: 0.001, Burst: 1})
	if err := g.Send(context.Background(), "r", testMessage()); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Send(ctx, "r", testMessage()); err == nil {
		t.Fatal("second send should fail waiting for the limiter")
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.NotifyConfig{
		Timeout:            time.Second,
		RatePerSecond:      1,
		RateBurst:          1,
		BreakerMaxFailures: 3,
		BreakerOpenTimeout: time.Minute,
		Twilio:             config.TwilioConfig{AccountSID: "AC1", AuthToken: "t", BaseURL: "http://twilio"},
		WhatsApp:           config.WhatsAppConfig{Enabled: true, To: []string{"+62811"}},
		Telegram:           config.TelegramConfig{Enabled: true, BotToken: "1:a", ChatIDs: []string{"5"}},
		Webhooks:           []config.WebhookConfig{{Name: "tsunami", URL: "http://siren"}},
	}
	chans := FromConfig(cfg, nil)
	for _, name := range []string{"log", "whatsapp", "telegram", "tsunami"} {
		if _, ok := chans[name]; !ok {
			t.Errorf("missing channel %q", name)
		}
	}
	if _, ok := chans["sms"]; ok {
		t.Error("sms is disabled but was built")
	}
	if _, ok := chans["whatsapp"].(*Guard); !ok {
		t.Error("provider channels should be guarded")
	}
}
