// Package memory is an in-process implementation of the repository
// interfaces. It enforces the same uniqueness rules as the SQL schema.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	seq       map[string]int64
	contacts  map[int64]*domain.Contact
	tickets   map[int64]*domain.Ticket
	messages  map[string]*domain.Message
	queues    map[int64]*domain.Queue
	users     map[int64]*domain.User
	whatsapps map[int64]*domain.Whatsapp
	history   map[int64][]domain.TicketHistory
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		seq:       make(map[string]int64),
		contacts:  make(map[int64]*domain.Contact),
		tickets:   make(map[int64]*domain.Ticket),
		messages:  make(map[string]*domain.Message),
		queues:    make(map[int64]*domain.Queue),
		users:     make(map[int64]*domain.User),
		whatsapps: make(map[int64]*domain.Whatsapp),
		history:   make(map[int64][]domain.TicketHistory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set exposes the store through the repository interfaces.
func (s *Store) Set() repository.Set {
	return repository.Set{
		Tickets:   &ticketRepository{s},
		Messages:  &messageRepository{s},
		Contacts:  &contactRepository{s},
		Users:     &userRepository{s},
		Queues:    &queueRepository{s},
		Whatsapps: &whatsappRepository{s},
		History:   &historyRepository{s},
	}
}

func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// hydrate must be called with the lock held.
func (s *Store) hydrate(t *domain.Ticket) domain.Ticket {
	out := *t.Clone()
	if c, ok := s.contacts[t.ContactID]; ok {
		out.Contact = c.Clone()
	}
	out.Queue = nil
	if t.QueueID != nil {
		if q, ok := s.queues[*t.QueueID]; ok {
			cp := *q
			out.Queue = &cp
		}
	}
	out.User = nil
	if t.UserID != nil {
		if u, ok := s.users[*t.UserID]; ok {
			out.User = u.Summary()
		}
	}
	if w, ok := s.whatsapps[t.WhatsappID]; ok {
		out.Whatsapp = w.Summary()
	}
	return out
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
