// Package connector defines the messaging transport the helpdesk core
// talks to. Every call is keyed by connection id.
package connector

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// OutboundMessage is a text to deliver from a connection to a number.
type OutboundMessage struct {
	WhatsappID int64
	To         string
	Body       string
	// Quoted is set when replying to an earlier message.
	Quoted *QuotedRef
}

// QuotedRef identifies the message being replied to.
type QuotedRef struct {
	ID     string
	Body   string
	FromMe bool
}

// SentMessage is the transport's receipt for a send.
type SentMessage struct {
	ID        string
	Timestamp time.Time
}

// Contact is an address book entry exposed by the transport.
type Contact struct {
	Number string
	Name   string
}

// Sender delivers outbound traffic.
type Sender interface {
	SendText(ctx context.Context, msg OutboundMessage) (SentMessage, error)
	Revoke(ctx context.Context, whatsappID int64, to, messageID string) error
	Contacts(ctx context.Context, whatsappID int64) ([]Contact, error)
}

// SessionController manages connection lifecycles.
type SessionController interface {
	StartSession(ctx context.Context, whatsappID int64) error
	StopSession(ctx context.Context, whatsappID int64) error
	Logout(ctx context.Context, whatsappID int64) error
}

// Transport is a full messaging collaborator.
type Transport interface {
	Sender
	SessionController
}

// InboundMessage is a message observed on a connection, either received
// from a contact or sent from the paired phone itself.
type InboundMessage struct {
	WhatsappID int64
	ID         string
	From       string
	PushName   string
	Body       string
	MediaType  string
	QuotedID   string
	FromMe     bool
	IsGroup    bool
	Timestamp  time.Time
}

// AckUpdate reports a delivery acknowledgment for a sent message.
type AckUpdate struct {
	WhatsappID int64
	MessageID  string
	Ack        domain.MessageAck
}

// StatusUpdate reports a connection lifecycle change.
type StatusUpdate struct {
	WhatsappID int64
	Status     domain.ConnectionStatus
	QRCode     string
	SessionJID string
	// Retries is only meaningful for reconnect attempts.
	Retries int
}

// Revocation reports a message deleted for everyone by its author.
type Revocation struct {
	WhatsappID int64
	MessageID  string
}

// Handler receives transport callbacks.
type Handler interface {
	HandleInbound(ctx context.Context, msg InboundMessage) error
	HandleAck(ctx context.Context, ack AckUpdate) error
	HandleStatus(ctx context.Context, status StatusUpdate) error
	HandleRevoke(ctx context.Context, rev Revocation) error
}
