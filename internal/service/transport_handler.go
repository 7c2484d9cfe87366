package service

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/connector"
)

// TransportHandler routes messaging transport callbacks into the services.
type TransportHandler struct {
	messages    *MessageService
	connections *ConnectionService
}

// NewTransportHandler constructs the handler.
func NewTransportHandler(messages *MessageService, connections *ConnectionService) *TransportHandler {
	return &TransportHandler{messages: messages, connections: connections}
}

var _ connector.Handler = (*TransportHandler)(nil)

func (h *TransportHandler) HandleInbound(ctx context.Context, msg connector.InboundMessage) error {
	_, err := h.messages.HandleInbound(ctx, msg)
	return err
}

func (h *TransportHandler) HandleAck(ctx context.Context, ack connector.AckUpdate) error {
	return h.messages.UpdateAck(ctx, ack)
}

func (h *TransportHandler) HandleStatus(ctx context.Context, status connector.StatusUpdate) error {
	return h.connections.HandleStatus(ctx, status)
}

func (h *TransportHandler) HandleRevoke(ctx context.Context, rev connector.Revocation) error {
	return h.messages.HandleRevoke(ctx, rev)
}
