package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
)

// webhookPayload is the inbound message shape posted by the messaging
// gateway. Some gateway versions nest the fields under "data".
type webhookPayload struct {
	From   string `json:"from"`
	Body   string `json:"body"`
	FromMe bool   `json:"fromMe"`
	Data   *struct {
		From string `json:"from"`
		Body string `json:"body"`
	} `json:"data"`
}

// handleWebhook is the WhatsApp entry point. It normalizes the sender
// address, filters echoes, steps the conversation engine, and fires the
// reply through the outbound sender. Conversational failures never surface
// as transport errors: the response is 200 unless the payload cannot be
// parsed at all.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		g.logger.Warn("unparseable webhook payload", "error", err)
		g.writeError(w, "invalid payload", http.StatusBadRequest)
		return
	}

	from, body := payload.From, payload.Body
	if payload.Data != nil {
		from, body = payload.Data.From, payload.Data.Body
	}

	// Echoes of our own outbound messages come back with fromMe set.
	if payload.FromMe {
		g.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if from == "" || body == "" {
		g.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	address := NormalizeAddress(from)
	if g.cfg.BotNumber != "" && address == NormalizeAddress(g.cfg.BotNumber) {
		g.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	reply := g.engine.HandleMessage(r.Context(), address, body)
	if reply != "" {
		// Fire-and-forget: a delivery failure is logged, never retried, and
		// never turns the webhook ack into an error.
		if err := g.sender.Send(r.Context(), address, reply); err != nil {
			g.logger.Error("outbound delivery failed", "to", address, "error", err)
		}
	}

	// The reply is included in the ack so browser-based test clients can
	// render the conversation without a WhatsApp round trip.
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": reply,
	})
}

// NormalizeAddress turns a transport sender id into the session key:
// the "@server" suffix and a leading "+" are stripped.
func NormalizeAddress(from string) string {
	if idx := strings.IndexByte(from, '@'); idx >= 0 {
		from = from[:idx]
	}
	return strings.TrimPrefix(strings.TrimSpace(from), "+")
}
