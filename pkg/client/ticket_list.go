package client

import (
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter mirrors the board query a TicketList was loaded with. Bus
// topics are not filtered per user, so every event is checked against it.
type TicketFilter struct {
	Status   TicketStatus
	UserID   int64
	QueueIDs []int64
	ShowAll  bool
	// Searching lists only hold query results; events may update or drop
	// them but never add new tickets.
	Searching bool
}

// Visible reports whether a ticket belongs on the board.
func (f TicketFilter) Visible(t *Ticket) bool {
	if t == nil || t.Status != f.Status {
		return false
	}
	if !f.ShowAll && t.UserID != nil && *t.UserID != f.UserID {
		return false
	}
	if t.QueueID != nil && len(f.QueueIDs) > 0 && !domain.ContainsQueue(f.QueueIDs, *t.QueueID) {
		return false
	}
	return true
}

// TicketList is the reconciling cache behind one status board, most
// recently active first.
type TicketList struct {
	mu      sync.RWMutex
	filter  TicketFilter
	items   Collection[int64, Ticket]
	hasMore bool
	// left holds tickets that events took off the board, with the newest
	// time known for them. Page copies not newer than that are stale.
	left map[int64]time.Time
}

// NewTicketList creates an empty board.
func NewTicketList(filter TicketFilter) *TicketList {
	return &TicketList{
		filter: filter,
		items:  NewCollection(ticketKey),
		left:   make(map[int64]time.Time),
	}
}

// Filter returns the board query.
func (l *TicketList) Filter() TicketFilter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter
}

// Reset clears the board for a new query.
func (l *TicketList) Reset(filter TicketFilter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = filter
	l.items = NewCollection(ticketKey)
	l.hasMore = false
	l.left = make(map[int64]time.Time)
}

// Snapshot returns the current immutable collection.
func (l *TicketList) Snapshot() Collection[int64, Ticket] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items
}

// Tickets returns the board in display order.
func (l *TicketList) Tickets() []Ticket {
	return l.Snapshot().Items()
}

// HasMore reports whether older pages remain.
func (l *TicketList) HasMore() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasMore
}

// LoadPage appends an older page and returns how many tickets were new.
// Tickets that events removed after the page was fetched stay removed.
func (l *TicketList) LoadPage(page []Ticket, hasMore bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	copies := make([]Ticket, 0, len(page))
	for i := range page {
		if at, gone := l.left[page[i].ID]; gone && !page[i].UpdatedAt.After(at) {
			continue
		}
		copies = append(copies, cloneTicket(&page[i]))
	}
	var added int
	l.items, added = l.items.Merge(copies, false, newerTicket)
	l.hasMore = hasMore
	return added
}

// Apply merges a bus frame and reports whether the board changed.
func (l *TicketList) Apply(frame Frame) (bool, error) {
	switch frame.Event {
	case EventTicket:
		payload, err := decodeFrame[TicketPayload](frame)
		if err != nil {
			return false, err
		}
		return l.applyTicket(payload, frame.Timestamp), nil
	case EventAppMessage:
		payload, err := decodeFrame[MessagePayload](frame)
		if err != nil {
			return false, err
		}
		if payload.Action != ActionCreate || payload.Ticket == nil {
			return false, nil
		}
		return l.touch(payload.Ticket), nil
	case EventContact:
		payload, err := decodeFrame[ContactPayload](frame)
		if err != nil {
			return false, err
		}
		if payload.Action != ActionUpdate || payload.Contact == nil {
			return false, nil
		}
		return l.updateContact(payload.Contact), nil
	}
	return false, nil
}

func (l *TicketList) applyTicket(p TicketPayload, at time.Time) bool {
	switch p.Action {
	case ActionDelete:
		id := p.TicketID
		if id == 0 && p.Ticket != nil {
			id = p.Ticket.ID
		}
		return l.remove(id, at)
	case ActionUpdateUnread:
		if p.Ticket == nil {
			return false
		}
		return l.touch(p.Ticket)
	case ActionCreate, ActionUpdate:
		if p.Ticket == nil {
			return false
		}
		return l.upsert(p.Ticket)
	}
	return false
}

// upsert replaces in place, prepends when unseen and drops tickets that no
// longer match the board.
func (l *TicketList) upsert(t *Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.filter.Visible(t) {
		return l.removeLocked(t.ID, t.UpdatedAt)
	}
	delete(l.left, t.ID)
	ticket := cloneTicket(t)
	if next, ok := l.items.Replace(ticket); ok {
		l.items = next
		return true
	}
	if l.filter.Searching {
		return false
	}
	l.items = l.items.Prepend(ticket)
	return true
}

// touch moves a ticket with new activity to the front.
func (l *TicketList) touch(t *Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.filter.Visible(t) {
		return l.removeLocked(t.ID, t.UpdatedAt)
	}
	delete(l.left, t.ID)
	if l.filter.Searching && !l.items.Has(t.ID) {
		return false
	}
	l.items = l.items.Prepend(cloneTicket(t))
	return true
}

func (l *TicketList) remove(id int64, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(id, at)
}

// removeLocked drops id and records when it left, whether or not it was
// on the board yet: a page still in flight may carry it.
func (l *TicketList) removeLocked(id int64, at time.Time) bool {
	if cur, ok := l.items.Get(id); ok && cur.UpdatedAt.After(at) {
		at = cur.UpdatedAt
	}
	if prev, ok := l.left[id]; ok && prev.After(at) {
		at = prev
	}
	l.left[id] = at
	var removed bool
	l.items, removed = l.items.Remove(id)
	return removed
}

func (l *TicketList) updateContact(c *Contact) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for _, t := range l.items.Items() {
		if t.ContactID != c.ID {
			continue
		}
		updated := cloneTicket(&t)
		updated.Contact = c.Clone()
		l.items, _ = l.items.Replace(updated)
		changed = true
	}
	return changed
}
