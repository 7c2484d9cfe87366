package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee   TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeQueue      TicketChangeType = "QUEUE_CHANGE"
	ChangeTypeConnection TicketChangeType = "CONNECTION_CHANGE"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          int64            `json:"id"`
	TicketID    int64            `json:"ticketId"`
	ChangedByID *int64           `json:"changedById"`
	ChangeType  TicketChangeType `json:"changeType"`
	OldValue    map[string]any   `json:"oldValue"`
	NewValue    map[string]any   `json:"newValue"`
	CreatedAt   time.Time        `json:"createdAt"`
}
