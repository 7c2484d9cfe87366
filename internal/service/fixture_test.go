package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) matching(name events.EventName, action events.Action) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Name == name && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []connector.OutboundMessage
	revoked  []string
	contacts []connector.Contact
	err      error
	n        int
}

func (f *fakeSender) SendText(_ context.Context, msg connector.OutboundMessage) (connector.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return connector.SentMessage{}, f.err
	}
	f.n++
	f.sent = append(f.sent, msg)
	return connector.SentMessage{ID: "OUT-" + string(rune('A'+f.n-1)), Timestamp: time.Now().UTC()}, nil
}

func (f *fakeSender) Revoke(_ context.Context, _ int64, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, messageID)
	return nil
}

func (f *fakeSender) Contacts(context.Context, int64) ([]connector.Contact, error) {
	return f.contacts, f.err
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Body)
	}
	return out
}

var errTransportDown = errors.New("transport down")

type fixtureConfig struct {
	connectionQueues int
	farewell         string
	reopenWindow     time.Duration
	clock            func() time.Time
}

type fixtureOption func(*fixtureConfig)

func withConnectionQueues(n int) fixtureOption {
	return func(c *fixtureConfig) { c.connectionQueues = n }
}

func withFarewell(text string) fixtureOption {
	return func(c *fixtureConfig) { c.farewell = text }
}

func withReopenWindow(window time.Duration, clock func() time.Time) fixtureOption {
	return func(c *fixtureConfig) {
		c.reopenWindow = window
		c.clock = clock
	}
}

type fixture struct {
	ctx      context.Context
	repos    repository.Set
	tickets  *TicketService
	messages *MessageService
	contacts *ContactService
	rec      *recorder
	sender   *fakeSender

	wa      *domain.Whatsapp
	sales   *domain.Queue
	support *domain.Queue
	billing *domain.Queue

	admin    *domain.User // no queues
	agent    *domain.User // sales only
	multi    *domain.User // sales and support
	outsider *domain.User // billing only
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{connectionQueues: 2, clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memory.NewStore(memory.WithClock(cfg.clock))
	f := &fixture{
		ctx:    context.Background(),
		repos:  store.Set(),
		rec:    &recorder{},
		sender: &fakeSender{},
	}

	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.Subscribe(events.AllEvents, f.rec.handle)

	f.sales = f.mustQueue(t, "Sales", "")
	f.support = f.mustQueue(t, "Support", "Welcome to support")
	f.billing = f.mustQueue(t, "Billing", "")

	connQueues := []int64{f.sales.ID, f.support.ID}[:cfg.connectionQueues]
	f.wa = &domain.Whatsapp{
		Name:            "main",
		IsDefault:       true,
		Status:          domain.ConnectionConnected,
		GreetingMessage: "Hi! Pick a department:",
		FarewellMessage: cfg.farewell,
		QueueIDs:        connQueues,
	}
	if err := f.repos.Whatsapps.Create(f.ctx, f.wa); err != nil {
		t.Fatalf("seed whatsapp: %v", err)
	}

	f.admin = f.mustUser(t, "admin", domain.ProfileAdmin)
	f.agent = f.mustUser(t, "agent", domain.ProfileUser, f.sales.ID)
	f.multi = f.mustUser(t, "multi", domain.ProfileUser, f.sales.ID, f.support.ID)
	f.outsider = f.mustUser(t, "outsider", domain.ProfileUser, f.billing.ID)

	f.tickets = NewTicketService(TicketDependencies{
		Repos:        f.repos,
		Dispatcher:   dispatcher,
		ReopenWindow: cfg.reopenWindow,
		Clock:        cfg.clock,
	})
	f.contacts = NewContactService(f.repos.Contacts, f.sender, dispatcher, nil)
	f.contacts.batchDelay = 0
	f.messages = NewMessageService(MessageDependencies{
		Repos:      f.repos,
		Tickets:    f.tickets,
		Contacts:   f.contacts,
		Sender:     f.sender,
		Dispatcher: dispatcher,
	})
	return f
}

func (f *fixture) mustQueue(t *testing.T, name, greeting string) *domain.Queue {
	t.Helper()
	q := &domain.Queue{Name: name, Color: "#" + name, GreetingMessage: greeting}
	if err := f.repos.Queues.Create(f.ctx, q); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	return q
}

func (f *fixture) mustUser(t *testing.T, name string, profile domain.Profile, queues ...int64) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", Profile: profile, QueueIDs: queues}
	if err := f.repos.Users.Create(f.ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) mustContact(t *testing.T, number string) *domain.Contact {
	t.Helper()
	c, err := f.contacts.EnsureContact(f.ctx, number, "")
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return c
}

// mustTicket creates a ticket in the given state directly through the
// state machine.
func (f *fixture) mustTicket(t *testing.T, number string, status domain.TicketStatus, user *domain.User, queueID *int64) *domain.Ticket {
	t.Helper()
	contact := f.mustContact(t, number)
	input := CreateTicketInput{ContactID: contact.ID, Status: domain.TicketStatusPending}
	if queueID != nil {
		input.QueueID = domain.Some(*queueID)
	}
	ticket, err := f.tickets.CreateTicket(f.ctx, f.admin, input)
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if status == domain.TicketStatusPending {
		return ticket
	}
	accept := UpdateTicketInput{Status: statusPtr(domain.TicketStatusOpen), UserID: domain.Some(user.ID)}
	if queueID == nil {
		accept.QueueID = domain.Null()
	}
	ticket, err = f.tickets.UpdateTicket(f.ctx, nil, ticket.ID, accept)
	if err != nil {
		t.Fatalf("accept ticket: %v", err)
	}
	if status == domain.TicketStatusClosed {
		closed := domain.TicketStatusClosed
		ticket, err = f.tickets.UpdateTicket(f.ctx, nil, ticket.ID, UpdateTicketInput{Status: &closed})
		if err != nil {
			t.Fatalf("close ticket: %v", err)
		}
	}
	return ticket
}

func (f *fixture) inbound(t *testing.T, id, from, body string) *domain.Message {
	t.Helper()
	msg, err := f.messages.HandleInbound(f.ctx, connector.InboundMessage{
		WhatsappID: f.wa.ID,
		ID:         id,
		From:       from,
		Body:       body,
		MediaType:  "chat",
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("inbound %s: %v", id, err)
	}
	return msg
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func hasTopics(e events.Event, topics ...string) bool {
	set := make(map[string]bool, len(e.Topics))
	for _, t := range e.Topics {
		set[t] = true
	}
	for _, t := range topics {
		if !set[t] {
			return false
		}
	}
	return true
}
