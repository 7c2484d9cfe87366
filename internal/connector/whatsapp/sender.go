package whatsapp

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// SendText delivers a text, as a reply when a quoted message is given.
func (m *Manager) SendText(ctx context.Context, msg connector.OutboundMessage) (connector.SentMessage, error) {
	client, err := m.client(msg.WhatsappID)
	if err != nil {
		return connector.SentMessage{}, err
	}
	to := types.NewJID(domain.NormalizeNumber(msg.To), types.DefaultUserServer)

	content := &waE2E.Message{Conversation: proto.String(msg.Body)}
	if msg.Quoted != nil {
		participant := to
		if msg.Quoted.FromMe && client.Store.ID != nil {
			participant = client.Store.ID.ToNonAD()
		}
		content = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String(msg.Body),
				ContextInfo: &waE2E.ContextInfo{
					StanzaID:      proto.String(msg.Quoted.ID),
					Participant:   proto.String(participant.String()),
					QuotedMessage: &waE2E.Message{Conversation: proto.String(msg.Quoted.Body)},
				},
			},
		}
	}

	resp, err := client.SendMessage(ctx, to, content)
	if err != nil {
		return connector.SentMessage{}, err
	}
	ts := resp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return connector.SentMessage{ID: resp.ID, Timestamp: ts}, nil
}

// Revoke deletes one of our own messages for everyone.
func (m *Manager) Revoke(ctx context.Context, whatsappID int64, to, messageID string) error {
	client, err := m.client(whatsappID)
	if err != nil {
		return err
	}
	chat := types.NewJID(domain.NormalizeNumber(to), types.DefaultUserServer)
	_, err = client.SendMessage(ctx, chat, client.BuildRevoke(chat, types.EmptyJID, types.MessageID(messageID)))
	return err
}

// Contacts lists the address book synced to the device.
func (m *Manager) Contacts(ctx context.Context, whatsappID int64) ([]connector.Contact, error) {
	client, err := m.client(whatsappID)
	if err != nil {
		return nil, err
	}
	all, err := client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]connector.Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		if name == "" {
			name = jid.User
		}
		out = append(out, connector.Contact{Number: jid.User, Name: name})
	}
	return out, nil
}
