package connector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Loopback is a transport that accepts every send without a network. It
// runs the service in development when no WhatsApp session is configured.
type Loopback struct {
	mu       sync.Mutex
	handler  Handler
	sessions map[int64]bool
	logger   *zap.Logger
}

// NewLoopback creates the transport.
func NewLoopback(logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loopback{sessions: make(map[int64]bool), logger: logger}
}

// SetHandler installs the callback receiver.
func (l *Loopback) SetHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

func (l *Loopback) SendText(_ context.Context, msg OutboundMessage) (SentMessage, error) {
	id := "LOOPBACK-" + uuid.NewString()
	l.logger.Debug("loopback send",
		zap.Int64("whatsapp_id", msg.WhatsappID),
		zap.String("to", msg.To),
		zap.String("message_id", id))
	return SentMessage{ID: id, Timestamp: time.Now().UTC()}, nil
}

func (l *Loopback) Revoke(_ context.Context, whatsappID int64, to, messageID string) error {
	l.logger.Debug("loopback revoke", zap.Int64("whatsapp_id", whatsappID), zap.String("message_id", messageID))
	return nil
}

func (l *Loopback) Contacts(context.Context, int64) ([]Contact, error) {
	return nil, nil
}

func (l *Loopback) StartSession(ctx context.Context, whatsappID int64) error {
	l.mu.Lock()
	l.sessions[whatsappID] = true
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.HandleStatus(ctx, StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionConnected})
}

func (l *Loopback) StopSession(ctx context.Context, whatsappID int64) error {
	l.mu.Lock()
	delete(l.sessions, whatsappID)
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.HandleStatus(ctx, StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionDisconnected})
}

func (l *Loopback) Logout(ctx context.Context, whatsappID int64) error {
	return l.StopSession(ctx, whatsappID)
}

// Inject feeds a message to the handler as if it had been received.
func (l *Loopback) Inject(ctx context.Context, msg InboundMessage) error {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.HandleInbound(ctx, msg)
}
