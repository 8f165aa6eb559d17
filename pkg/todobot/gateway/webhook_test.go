package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func postWebhook(t *testing.T, tg *testGateway, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(tg.srv.URL+"/webhook/whatsapp", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /webhook/whatsapp: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	return resp, ack
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	tg := newTestGateway(t, Config{})

	resp, _ := postWebhook(t, tg, "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhookIgnoresEchoAndIncomplete(t *testing.T) {
	tg := newTestGateway(t, Config{BotNumber: "+5511888880000"})

	cases := []struct {
		name string
		body string
	}{
		{"from me", `{"from": "5511999990000@c.us", "body": "#todolist", "fromMe": true}`},
		{"missing from", `{"body": "#todolist"}`},
		{"missing body", `{"from": "5511999990000@c.us"}`},
		{"own number", `{"from": "5511888880000@c.us", "body": "#todolist"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, ack := postWebhook(t, tg, tc.body)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if ack["status"] != "ignored" {
				t.Errorf("status field = %q, want ignored", ack["status"])
			}
		})
	}
	if len(tg.sender.sent) != 0 {
		t.Errorf("sender was called %d times, want 0", len(tg.sender.sent))
	}
}

func TestWebhookActivatesConversation(t *testing.T) {
	tg := newTestGateway(t, Config{})

	resp, ack := postWebhook(t, tg, `{"from": "5511999990000@c.us", "body": "#todolist"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ack["status"] != "ok" {
		t.Errorf("status field = %q, want ok", ack["status"])
	}
	if !strings.Contains(ack["message"], "Welcome") {
		t.Errorf("ack message %q does not contain the welcome prompt", ack["message"])
	}

	if len(tg.sender.sent) != 1 {
		t.Fatalf("sender called %d times, want 1", len(tg.sender.sent))
	}
	if got := tg.sender.sent[0].To; got != "5511999990000" {
		t.Errorf("reply sent to %q, want normalized address", got)
	}
}

func TestWebhookAcceptsNestedPayload(t *testing.T) {
	tg := newTestGateway(t, Config{})

	_, ack := postWebhook(t, tg, `{"data": {"from": "+5581999990000", "body": "hey #ToDoList"}}`)
	if !strings.Contains(ack["message"], "Welcome") {
		t.Errorf("ack message %q does not contain the welcome prompt", ack["message"])
	}
	if len(tg.sender.sent) != 1 || tg.sender.sent[0].To != "5581999990000" {
		t.Errorf("sent = %+v, want one message to 5581999990000", tg.sender.sent)
	}
}

func TestWebhookSilentMessageSendsNothing(t *testing.T) {
	tg := newTestGateway(t, Config{})

	resp, ack := postWebhook(t, tg, `{"from": "5511999990000", "body": "hello there"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ack["message"] != "" {
		t.Errorf("message = %q, want empty for unrelated chatter", ack["message"])
	}
	if len(tg.sender.sent) != 0 {
		t.Errorf("sender called %d times, want 0", len(tg.sender.sent))
	}
}

func TestWebhookDeliveryFailureStillAcks(t *testing.T) {
	tg := newTestGateway(t, Config{})
	tg.sender.fail = true

	resp, ack := postWebhook(t, tg, `{"from": "5511999990000", "body": "#todolist"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 despite delivery failure", resp.StatusCode)
	}
	if ack["status"] != "ok" {
		t.Errorf("status field = %q, want ok", ack["status"])
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"5511999990000@c.us", "5511999990000"},
		{"+5511999990000", "5511999990000"},
		{"+5511999990000@s.whatsapp.net", "5511999990000"},
		{" 5511999990000 ", "5511999990000"},
		{"5511999990000", "5511999990000"},
	}
	for _, tc := range cases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
