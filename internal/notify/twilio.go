// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// twilioMaxBody is the Messages API body limit.
const twilioMaxBody = 1600

// Twilio error codes that identify a bad or unreachable recipient.
var twilioRecipientCodes = map[int]bool{
	21211: true, // invalid To number
	21408: true, // region not enabled
	21608: true, // unverified number on trial account
	21610: true, // recipient replied STOP
	21614: true, // not a mobile number
	63003: true, // WhatsApp channel could not find recipient
	63016: true, // outside WhatsApp session window without template
}

const twilioAuthCode = 20003

// twilioClient posts to the Twilio Messages API.
type twilioClient struct {
	client     *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// send creates one message. form must carry From or MessagingServiceSid.
func (c *twilioClient) send(ctx context.Context, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.accountSID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", NewPermanent(CodeInvalidRequest, err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", Classify(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var msg twilioMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return "", nil
		}
		return msg.SID, nil
	}
	return "", classifyTwilioError(resp, body)
}

func classifyTwilioError(resp *http.Response, body []byte) *DeliveryError {
	var te twilioError
	_ = json.Unmarshal(body, &te)

	msg := te.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("twilio %d: %s", te.Code, msg)

	switch {
	case twilioRecipientCodes[te.Code]:
		return &DeliveryError{Kind: Permanent, Code: CodeInvalidRecipient, Status: resp.StatusCode, Err: cause}
	case te.Code == twilioAuthCode:
		return &DeliveryError{Kind: Permanent, Code: CodeAuthFailed, Status: resp.StatusCode, Err: cause}
	}
	return ClassifyHTTPStatus(resp.StatusCode, resp.Header, cause)
}

// WhatsAppChannel sends through Twilio's WhatsApp sender.
type WhatsAppChannel struct {
	api        *twilioClient
	from       string
	recipients []string
}

// DefaultWhatsAppFrom is the Twilio sandbox sender.
const DefaultWhatsAppFrom = "whatsapp:+14155238886"

// NewWhatsAppChannel builds a WhatsApp channel. Recipients and sender are
// normalized to the whatsapp: address scheme.
func NewWhatsAppChannel(client *http.Client, baseURL, accountSID, authToken, from string, to []string) *WhatsAppChannel {
	if from == "" {
		from = DefaultWhatsAppFrom
	}
	recipients := make([]string, 0, len(to))
	for _, r := range splitRecipients(to) {
		recipients = append(recipients, whatsappAddress(r))
	}
	return &WhatsAppChannel{
		api: &twilioClient{
			client:     client,
			baseURL:    baseURL,
			accountSID: accountSID,
			authToken:  authToken,
		},
		from:       whatsappAddress(from),
		recipients: recipients,
	}
}

// Name implements Channel.
func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Recipients implements Channel.
func (c *WhatsAppChannel) Recipients() []string { return c.recipients }

// Send implements Channel.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient string, msg *Message) error {
	if recipient == "" {
		return NewPermanent(CodeInvalidRecipient, errors.New("empty recipient"))
	}
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", whatsappAddress(recipient))
	form.Set("Body", truncate(msg.Text(), twilioMaxBody))
	_, err := c.api.send(ctx, form)
	return err
}

// SMSChannel sends plain SMS through Twilio.
type SMSChannel struct {
	api                 *twilioClient
	from                string
	messagingServiceSID string
	recipients          []string
}

// NewSMSChannel builds an SMS channel. A messaging service SID takes
// precedence over the from number.
func NewSMSChannel(client *http.Client, baseURL, accountSID, authToken, from, messagingServiceSID string, to []string) *SMSChannel {
	return &SMSChannel{
		api: &twilioClient{
			client:     client,
			baseURL:    baseURL,
			accountSID: accountSID,
			authToken:  authToken,
		},
		from:                from,
		messagingServiceSID: messagingServiceSID,
		recipients:          splitRecipients(to),
	}
}

// Name implements Channel.
func (c *SMSChannel) Name() string { return "sms" }

// Recipients implements Channel.
func (c *SMSChannel) Recipients() []string { return c.recipients }

// Send implements Channel.
func (c *SMSChannel) Send(ctx context.Context, recipient string, msg *Message) error {
	if !strings.HasPrefix(recipient, "+") {
		return NewPermanent(CodeInvalidRecipient, fmt.Errorf("recipient %q is not E.164", recipient))
	}
	form := url.Values{}
	if c.messagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.messagingServiceSID)
	} else {
		form.Set("From", c.from)
	}
	form.Set("To", recipient)
	form.Set("Body", truncate(msg.Text(), twilioMaxBody))
	_, err := c.api.send(ctx, form)
	return err
}

func whatsappAddress(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "whatsapp:") {
		return s
	}
	return "whatsapp:" + s
}

// splitRecipients flattens comma separated entries and drops blanks.
func splitRecipients(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
