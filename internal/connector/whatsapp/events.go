package whatsapp

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
)

func (m *Manager) dispatch(whatsappID int64, client *whatsmeow.Client, raw interface{}) {
	h := m.currentHandler()
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	var err error
	switch evt := raw.(type) {
	case *events.PairSuccess:
		if err = m.whatsapps.UpdateSession(ctx, whatsappID, evt.ID.String()); err == nil {
			err = h.HandleStatus(ctx, connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionPairing, SessionJID: evt.ID.String()})
		}
	case *events.Connected:
		jid := ""
		if client.Store.ID != nil {
			jid = client.Store.ID.String()
		}
		err = h.HandleStatus(ctx, connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionConnected, SessionJID: jid})
	case *events.Disconnected, *events.StreamReplaced:
		err = h.HandleStatus(ctx, connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionDisconnected})
	case *events.LoggedOut:
		if err = m.whatsapps.UpdateSession(ctx, whatsappID, ""); err == nil {
			err = h.HandleStatus(ctx, connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionDisconnected})
		}
	case *events.Message:
		err = m.handleMessage(ctx, h, whatsappID, evt)
	case *events.Receipt:
		ack, ok := receiptAck(evt.Type)
		if !ok {
			return
		}
		for _, id := range evt.MessageIDs {
			if err = h.HandleAck(ctx, connector.AckUpdate{WhatsappID: whatsappID, MessageID: id, Ack: ack}); err != nil {
				break
			}
		}
	default:
		return
	}
	if err != nil {
		m.logger.Warn("whatsapp event handling failed",
			zap.Int64("whatsapp_id", whatsappID),
			zap.String("event", eventName(raw)),
			zap.Error(err))
	}
}

func (m *Manager) handleMessage(ctx context.Context, h connector.Handler, whatsappID int64, evt *events.Message) error {
	info := evt.Info
	if info.IsGroup || info.Chat.Server == types.BroadcastServer {
		return nil
	}

	if pm := evt.Message.GetProtocolMessage(); pm != nil {
		if pm.GetType() == waE2E.ProtocolMessage_REVOKE {
			return h.HandleRevoke(ctx, connector.Revocation{WhatsappID: whatsappID, MessageID: pm.GetKey().GetID()})
		}
		return nil
	}

	body, mediaType, quotedID := extractContent(evt.Message)
	if body == "" && mediaType == "chat" {
		return nil
	}

	return h.HandleInbound(ctx, connector.InboundMessage{
		WhatsappID: whatsappID,
		ID:         info.ID,
		From:       info.Chat.User,
		PushName:   info.PushName,
		Body:       body,
		MediaType:  mediaType,
		QuotedID:   quotedID,
		FromMe:     info.IsFromMe,
		Timestamp:  info.Timestamp,
	})
}

// extractContent returns the display text, media kind and quoted stanza id.
func extractContent(msg *waE2E.Message) (body, mediaType, quotedID string) {
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation(), "chat", ""
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		return ext.GetText(), "chat", ext.GetContextInfo().GetStanzaID()
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return img.GetCaption(), "image", img.GetContextInfo().GetStanzaID()
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return vid.GetCaption(), "video", vid.GetContextInfo().GetStanzaID()
	case msg.GetAudioMessage() != nil:
		return "", "audio", msg.GetAudioMessage().GetContextInfo().GetStanzaID()
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return doc.GetFileName(), "document", doc.GetContextInfo().GetStanzaID()
	case msg.GetStickerMessage() != nil:
		return "", "sticker", ""
	case msg.GetLocationMessage() != nil:
		return msg.GetLocationMessage().GetName(), "location", ""
	case msg.GetContactMessage() != nil:
		return msg.GetContactMessage().GetDisplayName(), "vcard", ""
	}
	return "", "chat", ""
}

func receiptAck(t types.ReceiptType) (domain.MessageAck, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return domain.AckDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return domain.AckRead, true
	case types.ReceiptTypePlayed:
		return domain.AckPlayed, true
	}
	return 0, false
}

func eventName(raw interface{}) string {
	switch raw.(type) {
	case *events.Message:
		return "message"
	case *events.Receipt:
		return "receipt"
	case *events.PairSuccess:
		return "pair_success"
	case *events.LoggedOut:
		return "logged_out"
	default:
		return "connection"
	}
}
