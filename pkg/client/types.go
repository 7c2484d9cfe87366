// Package client is the Go SDK for the helpdesk API: a REST client, a
// reconnecting event socket and the reconciling caches that keep ticket
// and message views in step with bus events.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

type (
	Ticket       = domain.Ticket
	TicketStatus = domain.TicketStatus
	Message      = domain.Message
	Contact      = domain.Contact
	OptionalID   = domain.OptionalID

	Frame          = events.Frame
	EventName      = events.EventName
	Action         = events.Action
	TicketPayload  = events.TicketPayload
	MessagePayload = events.MessagePayload
	ContactPayload = events.ContactPayload
)

const (
	StatusPending = domain.TicketStatusPending
	StatusOpen    = domain.TicketStatusOpen
	StatusClosed  = domain.TicketStatusClosed

	EventTicket     = events.EventTicket
	EventAppMessage = events.EventAppMessage
	EventContact    = events.EventContact

	ActionCreate       = events.ActionCreate
	ActionUpdate       = events.ActionUpdate
	ActionDelete       = events.ActionDelete
	ActionUpdateUnread = events.ActionUpdateUnread

	TopicNotification = events.TopicNotification
)

// TopicStatus is the board topic for a ticket status.
func TopicStatus(status TicketStatus) string { return events.TopicStatus(status) }

// TopicTicket is the chat box topic for one ticket.
func TopicTicket(ticketID int64) string { return events.TopicTicket(ticketID) }

// Some and Null build update fields for UpdateTicket.
var (
	Some = domain.Some
	Null = domain.Null
)

func decodeFrame[T any](frame Frame) (T, error) {
	var payload T
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s frame: %w", frame.Event, err)
	}
	return payload, nil
}

func ticketKey(t Ticket) int64    { return t.ID }
func messageKey(m Message) string { return m.ID }

// newerTicket keeps event-delivered copies over older page copies.
func newerTicket(incoming, current Ticket) bool {
	return incoming.UpdatedAt.After(current.UpdatedAt)
}

func newerMessage(incoming, current Message) bool {
	return incoming.UpdatedAt.After(current.UpdatedAt)
}

func chronological(a, b Message) bool {
	return a.CreatedAt.Before(b.CreatedAt)
}

func cloneTicket(t *Ticket) Ticket {
	return *t.Clone()
}

func cloneMessage(m *Message) Message {
	c := *m
	if m.ContactID != nil {
		id := *m.ContactID
		c.ContactID = &id
	}
	if m.QuotedMsgID != nil {
		id := *m.QuotedMsgID
		c.QuotedMsgID = &id
	}
	if m.Contact != nil {
		c.Contact = m.Contact.Clone()
	}
	if m.QuotedMsg != nil {
		q := cloneMessage(m.QuotedMsg)
		c.QuotedMsg = &q
	}
	return c
}
