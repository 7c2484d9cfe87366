package client

import (
	"sync"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationTray tracks tickets with unread customer messages for the
// agent, most recent first. The ticket open in the chat view is never
// listed.
type NotificationTray struct {
	mu       sync.RWMutex
	userID   int64
	queueIDs []int64
	active   int64
	items    Collection[int64, Ticket]
}

// NewNotificationTray creates an empty tray for the agent.
func NewNotificationTray(userID int64, queueIDs []int64) *NotificationTray {
	return &NotificationTray{
		userID:   userID,
		queueIDs: append([]int64(nil), queueIDs...),
		items:    NewCollection(ticketKey),
	}
}

// SetActiveTicket marks the ticket open in the chat view; zero clears it.
func (n *NotificationTray) SetActiveTicket(ticketID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = ticketID
	n.items, _ = n.items.Remove(ticketID)
}

// Tickets returns the tray in display order.
func (n *NotificationTray) Tickets() []Ticket {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.items.Items()
}

// Len is the badge count.
func (n *NotificationTray) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.items.Len()
}

// Apply merges a bus frame. notify is true when a new notification should
// be announced to the agent.
func (n *NotificationTray) Apply(frame Frame) (notify bool, err error) {
	switch frame.Event {
	case EventAppMessage:
		payload, err := decodeFrame[MessagePayload](frame)
		if err != nil {
			return false, err
		}
		if payload.Action != ActionCreate || payload.Message == nil || payload.Ticket == nil {
			return false, nil
		}
		return n.onMessage(payload.Message, payload.Ticket), nil
	case EventTicket:
		payload, err := decodeFrame[TicketPayload](frame)
		if err != nil {
			return false, err
		}
		n.onTicket(payload)
	}
	return false, nil
}

func (n *NotificationTray) onMessage(m *Message, t *Ticket) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m.FromMe || m.Read || t.ID == n.active || !n.concerns(t) {
		return false
	}
	n.items = n.items.Prepend(cloneTicket(t))
	return true
}

func (n *NotificationTray) onTicket(p TicketPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch p.Action {
	case ActionDelete:
		n.items, _ = n.items.Remove(p.TicketID)
	case ActionUpdateUnread:
		if p.Ticket != nil {
			n.items, _ = n.items.Remove(p.Ticket.ID)
		}
	case ActionUpdate:
		if p.Ticket == nil {
			return
		}
		if p.Ticket.UnreadMessages == 0 || !n.concerns(p.Ticket) {
			n.items, _ = n.items.Remove(p.Ticket.ID)
			return
		}
		n.items, _ = n.items.Replace(cloneTicket(p.Ticket))
	}
}

// concerns is true for tickets assigned to the agent and for unassigned
// tickets in one of the agent's queues.
func (n *NotificationTray) concerns(t *Ticket) bool {
	if t.Status == StatusClosed {
		return false
	}
	if t.UserID != nil {
		return *t.UserID == n.userID
	}
	if t.QueueID == nil || len(n.queueIDs) == 0 {
		return true
	}
	return domain.ContainsQueue(n.queueIDs, *t.QueueID)
}
