package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventName identifies the entity an event is about. Values match the
// names subscribed to by existing front-ends.
type EventName string

const (
	EventTicket          EventName = "ticket"
	EventAppMessage      EventName = "appMessage"
	EventContact         EventName = "contact"
	EventWhatsapp        EventName = "whatsapp"
	EventWhatsappSession EventName = "whatsappSession"
	EventQueue           EventName = "queue"
	EventUser            EventName = "user"

	// AllEvents subscribes a handler to every event name.
	AllEvents EventName = "*"
)

// Action is the mutation kind carried by an event.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionUpdateUnread Action = "updateUnread"
)

// Well-known topics.
const (
	TopicNotification = "notification"
	TopicGlobal       = "global"
)

// TopicStatus is the board topic for a ticket status.
func TopicStatus(status domain.TicketStatus) string {
	return string(status)
}

// TopicTicket is the chat box topic for one ticket.
func TopicTicket(ticketID int64) string {
	return "ticket:" + strconv.FormatInt(ticketID, 10)
}

// Event is a typed mutation broadcast to topic subscribers.
type Event struct {
	ID        string          `json:"id"`
	Name      EventName       `json:"event"`
	Action    Action          `json:"action"`
	Topics    []string        `json:"topics"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Frame is the shape pushed to websocket clients.
type Frame struct {
	ID        string          `json:"id"`
	Event     EventName       `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Frame drops routing metadata from the event.
func (e Event) Frame() Frame {
	return Frame{ID: e.ID, Event: e.Name, Data: e.Data, Timestamp: e.Timestamp}
}

// TicketPayload is the data of ticket events. Delete events only carry TicketID.
type TicketPayload struct {
	Action   Action         `json:"action"`
	Ticket   *domain.Ticket `json:"ticket,omitempty"`
	TicketID int64          `json:"ticketId,omitempty"`
}

// MessagePayload is the data of appMessage events.
type MessagePayload struct {
	Action  Action          `json:"action"`
	Message *domain.Message `json:"message"`
	Ticket  *domain.Ticket  `json:"ticket,omitempty"`
	Contact *domain.Contact `json:"contact,omitempty"`
}

// ContactPayload is the data of contact events.
type ContactPayload struct {
	Action  Action          `json:"action"`
	Contact *domain.Contact `json:"contact"`
}

// SessionPayload is the data of whatsappSession events.
type SessionPayload struct {
	Action  Action           `json:"action"`
	Session *domain.Whatsapp `json:"session"`
}

// NewEvent encodes payload into a routed event. ID and timestamp are
// filled on publish.
func NewEvent(name EventName, action Action, payload any, topics ...string) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Name:   name,
		Action: action,
		Topics: dedupeTopics(topics),
		Data:   data,
	}, nil
}

// TicketEvent builds a ticket event.
func TicketEvent(action Action, ticket *domain.Ticket, topics ...string) (Event, error) {
	return NewEvent(EventTicket, action, TicketPayload{Action: action, Ticket: ticket}, topics...)
}

// TicketDeletedEvent builds the removal notice for a ticket.
func TicketDeletedEvent(ticketID int64, topics ...string) (Event, error) {
	return NewEvent(EventTicket, ActionDelete, TicketPayload{Action: ActionDelete, TicketID: ticketID}, topics...)
}

// DecodeTicket reads a ticket payload back from an event.
func DecodeTicket(e Event) (TicketPayload, error) {
	var p TicketPayload
	err := json.Unmarshal(e.Data, &p)
	return p, err
}

func dedupeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
