package dto

import (
	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload. An explicit null queueId opens a ticket
// without a queue; an absent one lets the server pick the agent's queue.
type CreateTicketRequest struct {
	ContactID  int64               `json:"contactId"`
	UserID     *int64              `json:"userId"`
	QueueID    domain.OptionalID   `json:"queueId,omitzero"`
	WhatsappID *int64              `json:"whatsappId"`
	Status     domain.TicketStatus `json:"status"`
}

// UpdateTicketRequest payload. userId and queueId distinguish an absent
// key from an explicit null.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus `json:"status"`
	UserID     domain.OptionalID    `json:"userId"`
	QueueID    domain.OptionalID    `json:"queueId"`
	WhatsappID *int64               `json:"whatsappId"`
}

// TicketListResponse is one page of the ticket board.
type TicketListResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
	Count   int             `json:"count"`
	HasMore bool            `json:"hasMore"`
}

// TicketDetailResponse carries a ticket with its audit trail.
type TicketDetailResponse struct {
	*domain.Ticket
	History []domain.TicketHistory `json:"history,omitempty"`
}
