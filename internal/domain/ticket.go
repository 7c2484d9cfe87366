package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClosed  TicketStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusOpen, TicketStatusClosed:
		return true
	}
	return false
}

// Active reports whether the status counts against the one-active-ticket rule.
func (s TicketStatus) Active() bool {
	return s == TicketStatusPending || s == TicketStatusOpen
}

// Ticket is a conversation between one contact and one whatsapp connection.
type Ticket struct {
	ID             int64        `json:"id"`
	Status         TicketStatus `json:"status"`
	UnreadMessages int          `json:"unreadMessages"`
	LastMessage    string       `json:"lastMessage"`
	IsGroup        bool         `json:"isGroup"`
	ContactID      int64        `json:"contactId"`
	WhatsappID     int64        `json:"whatsappId"`
	UserID         *int64       `json:"userId"`
	QueueID        *int64       `json:"queueId"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`

	// Hydrated on reads; events always carry the hydrated ticket.
	Contact  *Contact         `json:"contact,omitempty"`
	Queue    *Queue           `json:"queue,omitempty"`
	User     *UserSummary     `json:"user,omitempty"`
	Whatsapp *WhatsappSummary `json:"whatsapp,omitempty"`
}

// Clone returns a copy that shares no pointers with t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.UserID = cloneID(t.UserID)
	c.QueueID = cloneID(t.QueueID)
	if t.Contact != nil {
		c.Contact = t.Contact.Clone()
	}
	if t.Queue != nil {
		q := *t.Queue
		c.Queue = &q
	}
	if t.User != nil {
		u := *t.User
		c.User = &u
	}
	if t.Whatsapp != nil {
		w := *t.Whatsapp
		c.Whatsapp = &w
	}
	return &c
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SameID compares two nullable ids.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IDPtr is a small helper for literal nullable ids.
func IDPtr(id int64) *int64 {
	return &id
}
