package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "123",
    "changes": [{
      "field": "messages",
      "value": {
        "contacts": [{"wa_id": "2348012345678", "profile": {"name": "Amina"}}],
        "messages": [
          {"from": "2348012345678", "type": "text", "text": {"body": "  I paid 5000 naira  "}},
          {"from": "2348012345678", "type": "image"},
          {"from": "2348099999999", "type": "text", "text": {"body": "   "}}
        ]
      }
    }]
  }]
}`

func TestTextMessages(t *testing.T) {
	t.Parallel()

	var payload WebhookPayload
	if err := json.Unmarshal([]byte(samplePayload), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	msgs := payload.TextMessages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1 (non-text and empty skipped)", len(msgs))
	}
	got := msgs[0]
	if got.From != "2348012345678" {
		t.Errorf("From = %q", got.From)
	}
	if got.Name != "Amina" {
		t.Errorf("Name = %q, want profile name resolved", got.Name)
	}
	if got.Body != "I paid 5000 naira" {
		t.Errorf("Body = %q, want trimmed", got.Body)
	}
}

func TestTextMessagesUnknownContact(t *testing.T) {
	t.Parallel()

	var payload WebhookPayload
	raw := `{"entry":[{"changes":[{"value":{"messages":[{"from":"2348000000000","type":"text","text":{"body":"hello"}}]}}]}]}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	msgs := payload.TextMessages()
	if len(msgs) != 1 || msgs[0].Name != "" {
		t.Errorf("msgs = %+v, want one message with empty name", msgs)
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token123", "555001")
	if err := c.Send(context.Background(), "+2348012345678", "Welcome!"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if gotPath != "/555001/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.MessagingProduct != "whatsapp" || gotBody.Type != "text" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.To != "+2348012345678" || gotBody.Text.Body != "Welcome!" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", "555001")
	err := c.Send(context.Background(), "+2348012345678", "hi")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want status 401", err)
	}
}
