package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type contactRepository struct{ s *Store }

func (r *contactRepository) Create(_ context.Context, contact *domain.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.contacts {
		if existing.Number == contact.Number {
			return repository.ErrDuplicate
		}
	}
	now := r.s.timestamp()
	contact.ID = r.s.nextID("contacts")
	contact.CreatedAt = now
	contact.UpdatedAt = now
	r.s.contacts[contact.ID] = contact.Clone()
	return nil
}

func (r *contactRepository) Update(_ context.Context, contact *domain.Contact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.contacts[contact.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = contact.Name
	stored.Email = contact.Email
	stored.ProfilePicURL = contact.ProfilePicURL
	if contact.ExtraInfo != nil {
		stored.ExtraInfo = append([]domain.ContactCustomField(nil), contact.ExtraInfo...)
	}
	stored.UpdatedAt = r.s.timestamp()
	contact.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *contactRepository) GetByID(_ context.Context, id int64) (*domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *contactRepository) GetByNumber(_ context.Context, number string) (*domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.contacts {
		if c.Number == number {
			return c.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

type userRepository struct{ s *Store }

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	now := r.s.timestamp()
	user.ID = r.s.nextID("users")
	user.CreatedAt = now
	user.UpdatedAt = now
	user.QueueIDs = sortedIDs(user.QueueIDs)
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *userRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.QueueIDs = append([]int64{}, u.QueueIDs...)
	return &cp
}

type queueRepository struct{ s *Store }

func (r *queueRepository) Create(_ context.Context, queue *domain.Queue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.queues {
		if existing.Name == queue.Name || existing.Color == queue.Color {
			return repository.ErrDuplicate
		}
	}
	now := r.s.timestamp()
	queue.ID = r.s.nextID("queues")
	queue.CreatedAt = now
	queue.UpdatedAt = now
	cp := *queue
	r.s.queues[queue.ID] = &cp
	return nil
}

func (r *queueRepository) GetByID(_ context.Context, id int64) (*domain.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.queues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *queueRepository) ListByIDs(_ context.Context, ids []int64) ([]domain.Queue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Queue
	for _, id := range sortedIDs(ids) {
		if q, ok := r.s.queues[id]; ok {
			out = append(out, *q)
		}
	}
	return out, nil
}

type whatsappRepository struct{ s *Store }

func (r *whatsappRepository) Create(_ context.Context, whatsapp *domain.Whatsapp) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.whatsapps {
		if existing.Name == whatsapp.Name || (whatsapp.IsDefault && existing.IsDefault) {
			return repository.ErrDuplicate
		}
	}
	now := r.s.timestamp()
	whatsapp.ID = r.s.nextID("whatsapps")
	whatsapp.CreatedAt = now
	whatsapp.UpdatedAt = now
	if whatsapp.Status == "" {
		whatsapp.Status = domain.ConnectionOpening
	}
	whatsapp.QueueIDs = sortedIDs(whatsapp.QueueIDs)
	r.s.whatsapps[whatsapp.ID] = copyWhatsapp(whatsapp)
	return nil
}

func (r *whatsappRepository) GetByID(_ context.Context, id int64) (*domain.Whatsapp, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.whatsapps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyWhatsapp(w), nil
}

func (r *whatsappRepository) GetDefault(_ context.Context) (*domain.Whatsapp, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.whatsapps {
		if w.IsDefault {
			return copyWhatsapp(w), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *whatsappRepository) List(_ context.Context) ([]domain.Whatsapp, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Whatsapp, 0, len(r.s.whatsapps))
	for _, w := range r.s.whatsapps {
		out = append(out, *copyWhatsapp(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *whatsappRepository) UpdateStatus(_ context.Context, id int64, status domain.ConnectionStatus, qrcode string, retries int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.whatsapps[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.Status = status
	w.QRCode = qrcode
	w.Retries = retries
	w.UpdatedAt = r.s.timestamp()
	return nil
}

func (r *whatsappRepository) UpdateSession(_ context.Context, id int64, jid string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.whatsapps[id]
	if !ok {
		return repository.ErrNotFound
	}
	w.SessionJID = jid
	w.UpdatedAt = r.s.timestamp()
	return nil
}

func copyWhatsapp(w *domain.Whatsapp) *domain.Whatsapp {
	cp := *w
	cp.QueueIDs = append([]int64{}, w.QueueIDs...)
	return &cp
}

type historyRepository struct{ s *Store }

func (r *historyRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	history.ID = r.s.nextID("ticket_history")
	history.CreatedAt = r.s.timestamp()
	r.s.history[history.TicketID] = append(r.s.history[history.TicketID], *history)
	return nil
}

func (r *historyRepository) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.TicketHistory(nil), r.s.history[ticketID]...), nil
}
