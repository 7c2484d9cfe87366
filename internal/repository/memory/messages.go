package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type messageRepository struct{ s *Store }

func (r *messageRepository) Create(_ context.Context, message *domain.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.messages[message.ID]; exists {
		return false, nil
	}
	if _, ok := r.s.tickets[message.TicketID]; !ok {
		return false, repository.ErrNotFound
	}
	now := r.s.timestamp()
	message.Seq = r.s.nextID("messages")
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	message.UpdatedAt = now
	if message.MediaType == "" {
		message.MediaType = "chat"
	}
	stored := *message
	stored.Contact, stored.QuotedMsg = nil, nil
	r.s.messages[message.ID] = &stored
	return true, nil
}

// hydrate must be called with the lock held.
func (r *messageRepository) hydrate(m *domain.Message) domain.Message {
	out := *m
	if m.ContactID != nil {
		if c, ok := r.s.contacts[*m.ContactID]; ok {
			out.Contact = c.Clone()
		}
	}
	if m.QuotedMsgID != nil {
		if q, ok := r.s.messages[*m.QuotedMsgID]; ok {
			quoted := *q
			quoted.Contact, quoted.QuotedMsg = nil, nil
			out.QuotedMsg = &quoted
		}
	}
	return out
}

func (r *messageRepository) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := r.hydrate(m)
	return &out, nil
}

func (r *messageRepository) ListByTicket(_ context.Context, ticketID int64, limit, offset int) ([]domain.Message, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*domain.Message
	for _, m := range r.s.messages {
		if m.TicketID == ticketID {
			all = append(all, m)
		}
	}
	// newest first for paging
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })

	total := len(all)
	if limit <= 0 {
		limit = 20
	}
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
	page := make([]domain.Message, 0, end-offset)
	for i := end - 1; i >= offset; i-- {
		page = append(page, r.hydrate(all[i]))
	}
	return page, total, nil
}

func (r *messageRepository) UpdateAck(_ context.Context, id string, ack domain.MessageAck) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.Ack >= ack {
		return false, nil
	}
	m.Ack = ack
	m.UpdatedAt = r.s.timestamp()
	return true, nil
}

func (r *messageRepository) SoftDelete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsDeleted = true
	m.UpdatedAt = r.s.timestamp()
	return nil
}

func (r *messageRepository) MarkTicketRead(_ context.Context, ticketID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.TicketID == ticketID {
			m.Read = true
		}
	}
	return nil
}

func (r *messageRepository) CountUnread(_ context.Context, ticketID int64) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, m := range r.s.messages {
		if m.TicketID == ticketID && !m.Read && !m.FromMe {
			n++
		}
	}
	return n, nil
}
