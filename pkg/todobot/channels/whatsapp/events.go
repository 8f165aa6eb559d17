package whatsapp

import (
	"strings"

	"github.com/harmonyservices/todobot/pkg/todobot/channels"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// handleEvent is the whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.setState(StateConnected)
		w.connected.Store(true)
		w.errorCount.Store(0)
		w.reconnectAttempts.Store(0)
		w.logger.Info("whatsapp: connected", "jid", w.clientJID())

	case *events.Disconnected:
		wasConnected := w.getState() == StateConnected
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Warn("whatsapp: disconnected")
		if wasConnected && w.ctx.Err() == nil {
			go w.attemptReconnect()
		}

	case *events.StreamReplaced:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: stream replaced, another device connected")

	case *events.LoggedOut:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: logged out, session invalidated, QR scan required")

	case *events.KeepAliveTimeout:
		w.errorCount.Add(1)
		// Half-open connections look connected while the socket is dead.
		if evt.ErrorCount >= 3 && w.getState() == StateConnected {
			w.logger.Error("whatsapp: keep-alive failed repeatedly, forcing reconnection",
				"error_count", evt.ErrorCount)
			w.connected.Store(false)
			go w.attemptReconnect()
		}

	case *events.KeepAliveRestored:
		w.logger.Info("whatsapp: keep-alive restored")
		w.errorCount.Store(0)

	case *events.ConnectFailure:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: connect failure", "message", evt.Message)
		if evt.PermanentDisconnectDescription() == "" && w.ctx.Err() == nil {
			go w.attemptReconnect()
		}
	}
}

// handleMessageEvt converts a WhatsApp message event into an IncomingMessage.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup && !w.cfg.RespondToGroups {
		return
	}

	content := extractText(evt.Message)
	if content == "" {
		return
	}

	w.emitMessage(&channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      normalizeJIDUser(evt.Info.Sender.String()),
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		IsGroup:   evt.Info.IsGroup,
		Content:   content,
		Timestamp: evt.Info.Timestamp,
	})
}

// extractText pulls the plain text out of the message variants we handle.
func extractText(waMsg *waE2E.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// buildTextMessage wraps plain text in the wire message envelope.
func buildTextMessage(content string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(content)}
}

// normalizeJIDUser reduces a full JID to the bare user part used as the
// session key (matches the webhook address normalization).
func normalizeJIDUser(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		jid = jid[:idx]
	}
	// Device suffixes look like "5511999990000:12".
	if idx := strings.IndexByte(jid, ':'); idx >= 0 {
		jid = jid[:idx]
	}
	return strings.TrimPrefix(jid, "+")
}
