package client

import "sync"

// MessageList is the reconciling cache behind an open chat, oldest first.
type MessageList struct {
	mu       sync.RWMutex
	ticketID int64
	items    Collection[string, Message]
	hasMore  bool
	onGone   func(ticketID int64)
	gone     bool
}

// NewMessageList creates the cache for one ticket.
func NewMessageList(ticketID int64) *MessageList {
	return &MessageList{ticketID: ticketID, items: NewCollection(messageKey)}
}

// OnTicketGone registers the callback fired once when the ticket is
// deleted, so the detail view can navigate away.
func (l *MessageList) OnTicketGone(fn func(ticketID int64)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onGone = fn
}

// TicketID returns the ticket this list follows.
func (l *MessageList) TicketID() int64 { return l.ticketID }

// Snapshot returns the current immutable collection.
func (l *MessageList) Snapshot() Collection[string, Message] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items
}

// Messages returns the conversation in display order.
func (l *MessageList) Messages() []Message {
	return l.Snapshot().Items()
}

// HasMore reports whether older pages remain.
func (l *MessageList) HasMore() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasMore
}

// LoadPage puts an older page above the loaded messages. The returned count
// is what the view scrolls by to keep its position.
func (l *MessageList) LoadPage(page []Message, hasMore bool) int {
	copies := make([]Message, 0, len(page))
	for i := range page {
		if page[i].TicketID == l.ticketID {
			copies = append(copies, cloneMessage(&page[i]))
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var added int
	l.items, added = l.items.Merge(copies, true, newerMessage)
	l.hasMore = hasMore
	return added
}

// Apply merges a bus frame and reports whether the conversation changed.
func (l *MessageList) Apply(frame Frame) (bool, error) {
	switch frame.Event {
	case EventAppMessage:
		payload, err := decodeFrame[MessagePayload](frame)
		if err != nil {
			return false, err
		}
		if payload.Message == nil || payload.Message.TicketID != l.ticketID {
			return false, nil
		}
		return l.applyMessage(payload.Action, payload.Message), nil
	case EventTicket:
		payload, err := decodeFrame[TicketPayload](frame)
		if err != nil {
			return false, err
		}
		id := payload.TicketID
		if id == 0 && payload.Ticket != nil {
			id = payload.Ticket.ID
		}
		if payload.Action == ActionDelete && id == l.ticketID {
			l.ticketGone()
			return true, nil
		}
	}
	return false, nil
}

func (l *MessageList) applyMessage(action Action, m *Message) bool {
	msg := cloneMessage(m)
	l.mu.Lock()
	defer l.mu.Unlock()
	switch action {
	case ActionCreate:
		l.items = l.items.Insert(msg, chronological)
		return true
	case ActionUpdate:
		var ok bool
		l.items, ok = l.items.Replace(msg)
		return ok
	}
	return false
}

func (l *MessageList) ticketGone() {
	l.mu.Lock()
	if l.gone {
		l.mu.Unlock()
		return
	}
	l.gone = true
	l.items = NewCollection(messageKey)
	fn := l.onGone
	l.mu.Unlock()
	if fn != nil {
		fn(l.ticketID)
	}
}
