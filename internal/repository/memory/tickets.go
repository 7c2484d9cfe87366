package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type ticketRepository struct{ s *Store }

// activeConflict must be called with the write lock held.
func (r *ticketRepository) activeConflict(t *domain.Ticket) bool {
	if !t.Status.Active() {
		return false
	}
	for _, existing := range r.s.tickets {
		if existing.ID == t.ID || !existing.Status.Active() {
			continue
		}
		if existing.ContactID == t.ContactID && existing.WhatsappID == t.WhatsappID {
			return true
		}
	}
	return false
}

func (r *ticketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.contacts[ticket.ContactID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.whatsapps[ticket.WhatsappID]; !ok {
		return repository.ErrNotFound
	}
	if r.activeConflict(ticket) {
		return repository.ErrActiveTicketExists
	}
	now := r.s.timestamp()
	ticket.ID = r.s.nextID("tickets")
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	stored := ticket.Clone()
	stored.Contact, stored.Queue, stored.User, stored.Whatsapp = nil, nil, nil, nil
	r.s.tickets[ticket.ID] = stored
	return nil
}

func (r *ticketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	candidate := stored.Clone()
	candidate.Status = ticket.Status
	candidate.UserID = ticket.UserID
	candidate.QueueID = ticket.QueueID
	candidate.WhatsappID = ticket.WhatsappID
	if r.activeConflict(candidate) {
		return repository.ErrActiveTicketExists
	}
	candidate.UpdatedAt = r.s.timestamp()
	r.s.tickets[ticket.ID] = candidate
	ticket.UpdatedAt = candidate.UpdatedAt
	return nil
}

func (r *ticketRepository) SetLastMessage(_ context.Context, id int64, body string) error {
	return r.mutate(id, func(t *domain.Ticket) { t.LastMessage = body })
}

func (r *ticketRepository) SetUnread(_ context.Context, id int64, unread int) error {
	return r.mutate(id, func(t *domain.Ticket) { t.UnreadMessages = unread })
}

func (r *ticketRepository) mutate(id int64, fn func(*domain.Ticket)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(t)
	t.UpdatedAt = r.s.timestamp()
	return nil
}

func (r *ticketRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	delete(r.s.history, id)
	for msgID, m := range r.s.messages {
		if m.TicketID == id {
			delete(r.s.messages, msgID)
		}
	}
	return nil
}

func (r *ticketRepository) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := r.s.hydrate(t)
	return &out, nil
}

func (r *ticketRepository) FindActive(_ context.Context, contactID, whatsappID int64) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tickets {
		if t.ContactID == contactID && t.WhatsappID == whatsappID && t.Status.Active() {
			out := r.s.hydrate(t)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ticketRepository) FindLatestUpdatedBetween(_ context.Context, contactID, whatsappID int64, from, to time.Time) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *domain.Ticket
	for _, t := range r.s.tickets {
		if t.ContactID != contactID || t.WhatsappID != whatsappID {
			continue
		}
		if t.UpdatedAt.Before(from) || t.UpdatedAt.After(to) {
			continue
		}
		if latest == nil || t.UpdatedAt.After(latest.UpdatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	out := r.s.hydrate(latest)
	return &out, nil
}

func (r *ticketRepository) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.Ticket
	for _, t := range r.s.tickets {
		if !r.matches(t, filter) {
			continue
		}
		matched = append(matched, r.s.hydrate(t))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 40
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// matches must be called with the lock held.
func (r *ticketRepository) matches(t *domain.Ticket, f repository.TicketFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == t.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.VisibleTo != nil {
		mine := t.UserID != nil && *t.UserID == *f.VisibleTo
		if !mine && t.Status != domain.TicketStatusPending {
			return false
		}
	}
	if len(f.QueueIDs) > 0 || f.IncludeNoQueue {
		ok := (t.QueueID == nil && f.IncludeNoQueue) ||
			(t.QueueID != nil && domain.ContainsQueue(f.QueueIDs, *t.QueueID))
		if !ok {
			return false
		}
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.WithUnread && t.UnreadMessages == 0 {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		return r.searchHit(t, term)
	}
	return true
}

func (r *ticketRepository) searchHit(t *domain.Ticket, term string) bool {
	if c, ok := r.s.contacts[t.ContactID]; ok {
		if strings.Contains(strings.ToLower(c.Name), term) || strings.Contains(c.Number, term) {
			return true
		}
	}
	for _, m := range r.s.messages {
		if m.TicketID == t.ID && strings.Contains(strings.ToLower(m.Body), term) {
			return true
		}
	}
	return false
}
