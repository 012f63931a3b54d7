// Package gateway models the messaging provider's webhook payload and
// implements the outbound message sender.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookPayload is the provider's nested webhook delivery envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level delivery batch.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps one field-level change notification.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the messages and sender contacts of a change.
type Value struct {
	Contacts []Contact `json:"contacts"`
	Messages []Message `json:"messages"`
}

// Contact carries the sender's profile info.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message. Only type "text" carries a body.
type Message struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Inbound is a flattened text message ready for dispatch.
type Inbound struct {
	From string
	Name string
	Body string
}

// TextMessages flattens the payload into its text messages, resolving each
// sender's profile name when the contacts block carries one. Non-text and
// empty-body messages are skipped.
func (p *WebhookPayload) TextMessages() []Inbound {
	var out []Inbound
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					continue
				}
				body := strings.TrimSpace(msg.Text.Body)
				if body == "" {
					continue
				}
				out = append(out, Inbound{
					From: msg.From,
					Name: names[msg.From],
					Body: body,
				})
			}
		}
	}
	return out
}

// Sender delivers one outbound reply to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Client sends messages through the provider's HTTP API.
type Client struct {
	apiBase       string
	accessToken   string
	phoneNumberID string
	httpc         *http.Client
}

// NewClient creates an outbound message client.
func NewClient(apiBase, accessToken, phoneNumberID string) *Client {
	return &Client{
		apiBase:       strings.TrimRight(apiBase, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpc:         &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

// Send posts one plain-text message to a single recipient.
func (c *Client) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
