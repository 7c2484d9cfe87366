package domain

import "time"

// MessageAck is the delivery acknowledgment level reported by the transport.
// Levels only ever increase for a given message.
type MessageAck int

const (
	AckPending   MessageAck = 0
	AckServer    MessageAck = 1
	AckDelivered MessageAck = 2
	AckRead      MessageAck = 3
	AckPlayed    MessageAck = 4
)

// Valid reports whether the ack is inside the known range.
func (a MessageAck) Valid() bool {
	return a >= AckPending && a <= AckPlayed
}

// Message belongs to exactly one ticket.
type Message struct {
	ID          string     `json:"id"`
	Seq         int64      `json:"-"`
	TicketID    int64      `json:"ticketId"`
	ContactID   *int64     `json:"contactId"`
	Body        string     `json:"body"`
	FromMe      bool       `json:"fromMe"`
	Read        bool       `json:"read"`
	Ack         MessageAck `json:"ack"`
	MediaType   string     `json:"mediaType"`
	MediaURL    string     `json:"mediaUrl,omitempty"`
	QuotedMsgID *string    `json:"quotedMsgId"`
	IsDeleted   bool       `json:"isDeleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Contact   *Contact `json:"contact,omitempty"`
	QuotedMsg *Message `json:"quotedMsg,omitempty"`
}

// Preview returns the body shortened for ticket list snapshots.
func (m *Message) Preview(max int) string {
	return stringPreview(m.Body, max)
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
