package dto

import "github.com/spec-kit/helpdesk/internal/domain"

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body        string `json:"body"`
	QuotedMsgID string `json:"quotedMsgId"`
}

// MessageListResponse is one page of a conversation, oldest first.
type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	Ticket   *domain.Ticket   `json:"ticket"`
	Count    int              `json:"count"`
	HasMore  bool             `json:"hasMore"`
}

// ImportContactsResponse reports how many new contacts were stored.
type ImportContactsResponse struct {
	Imported int `json:"imported"`
}
