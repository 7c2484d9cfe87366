package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const ticketsPageSize = 40

// TicketMessenger sends a system text on a ticket's conversation.
type TicketMessenger interface {
	SendTicketText(ctx context.Context, ticket *domain.Ticket, body string) (*domain.Message, error)
}

// TicketService resolves inbound traffic to tickets and runs the ticket
// state machine.
type TicketService struct {
	tickets   repository.TicketRepository
	contacts  repository.ContactRepository
	users     repository.UserRepository
	whatsapps repository.WhatsappRepository
	history   repository.TicketHistoryRepository
	messenger TicketMessenger
	publisher

	reopenWindow time.Duration
	now          func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Repos        repository.Set
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	ReopenWindow time.Duration
	Clock        func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:      deps.Repos.Tickets,
		contacts:     deps.Repos.Contacts,
		users:        deps.Repos.Users,
		whatsapps:    deps.Repos.Whatsapps,
		history:      deps.Repos.History,
		publisher:    newPublisher(deps.Dispatcher, deps.Logger),
		reopenWindow: deps.ReopenWindow,
		now:          now,
	}
}

// UseMessenger installs the sender for farewell messages.
func (s *TicketService) UseMessenger(m TicketMessenger) {
	s.messenger = m
}

// ResolveTicketForInboundMessage returns the active ticket of the contact
// on the connection, creating a pending one when none exists. A negative
// unread leaves the counter untouched.
func (s *TicketService) ResolveTicketForInboundMessage(ctx context.Context, contact *domain.Contact, whatsappID int64, unread int) (*domain.Ticket, error) {
	wa, err := s.connectionFor(ctx, whatsappID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.FindActive(ctx, contact.ID, wa.ID)
	switch {
	case err == nil:
		return s.withUnread(ctx, ticket, unread)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if s.reopenWindow > 0 {
		reopened, err := s.reopenRecent(ctx, contact.ID, wa.ID)
		if err != nil {
			return nil, err
		}
		if reopened != nil {
			return s.withUnread(ctx, reopened, unread)
		}
	}

	ticket = &domain.Ticket{
		Status:     domain.TicketStatusPending,
		ContactID:  contact.ID,
		WhatsappID: wa.ID,
		IsGroup:    contact.IsGroup,
	}
	if unread > 0 {
		ticket.UnreadMessages = unread
	}
	if len(wa.QueueIDs) == 1 {
		ticket.QueueID = domain.IDPtr(wa.QueueIDs[0])
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		if !errors.Is(err, repository.ErrActiveTicketExists) {
			return nil, err
		}
		// Lost the race to a concurrent message; join the winner.
		winner, err := s.tickets.FindActive(ctx, contact.ID, wa.ID)
		if err != nil {
			return nil, err
		}
		return s.withUnread(ctx, winner, unread)
	}

	created, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	s.publishTicket(ctx, events.ActionCreate, created,
		events.TopicStatus(created.Status), events.TopicNotification, events.TopicTicket(created.ID))
	return created, nil
}

// reopenRecent moves the contact's latest ticket back to pending when it
// was touched inside the reopen window.
func (s *TicketService) reopenRecent(ctx context.Context, contactID, whatsappID int64) (*domain.Ticket, error) {
	now := s.now()
	recent, err := s.tickets.FindLatestUpdatedBetween(ctx, contactID, whatsappID, now.Add(-s.reopenWindow), now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	before := recent.Clone()
	recent.Status = domain.TicketStatusPending
	recent.UserID = nil
	if err := s.tickets.Update(ctx, recent); err != nil {
		if errors.Is(err, repository.ErrActiveTicketExists) {
			return s.tickets.FindActive(ctx, contactID, whatsappID)
		}
		return nil, err
	}
	return s.afterUpdate(ctx, nil, before, recent.ID)
}

func (s *TicketService) withUnread(ctx context.Context, ticket *domain.Ticket, unread int) (*domain.Ticket, error) {
	if unread < 0 || ticket.UnreadMessages == unread {
		return ticket, nil
	}
	if err := s.tickets.SetUnread(ctx, ticket.ID, unread); err != nil {
		return nil, err
	}
	return s.tickets.GetByID(ctx, ticket.ID)
}

// connectionFor picks the requested connection, else the default one.
func (s *TicketService) connectionFor(ctx context.Context, whatsappID int64) (*domain.Whatsapp, error) {
	if whatsappID > 0 {
		wa, err := s.whatsapps.GetByID(ctx, whatsappID)
		if err != nil {
			return nil, notFound(err, "whatsapp", map[string]any{"whatsapp_id": whatsappID})
		}
		return wa, nil
	}
	wa, err := s.whatsapps.GetDefault(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNoDefaultWhatsapp()
	}
	return wa, err
}

// CreateTicketInput is the agent-side creation request.
type CreateTicketInput struct {
	ContactID  int64
	UserID     *int64
	QueueID    domain.OptionalID
	WhatsappID *int64
	Status     domain.TicketStatus
}

// CreateTicket opens a ticket for a contact on behalf of an agent.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input CreateTicketInput) (*domain.Ticket, error) {
	status := input.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	if !status.Active() {
		return nil, apperrors.NewValidationError("tickets can only be created open or pending", map[string]any{"status": status})
	}

	contact, err := s.contacts.GetByID(ctx, input.ContactID)
	if err != nil {
		return nil, notFound(err, "contact", map[string]any{"contact_id": input.ContactID})
	}

	userID := input.UserID
	if userID == nil && actor != nil {
		userID = domain.IDPtr(actor.ID)
	}
	if userID == nil {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}
	user, err := s.loadUser(ctx, *userID)
	if err != nil {
		return nil, err
	}

	var whatsappID int64
	switch {
	case input.WhatsappID != nil:
		whatsappID = *input.WhatsappID
	case user.WhatsappID != nil:
		whatsappID = *user.WhatsappID
	}
	wa, err := s.connectionFor(ctx, whatsappID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.tickets.FindActive(ctx, contact.ID, wa.ID); err == nil {
		return nil, apperrors.NewOtherOpenTicket(existing.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	queueID := input.QueueID.Value
	if !input.QueueID.Set && len(user.QueueIDs) == 1 {
		queueID = domain.IDPtr(user.QueueIDs[0])
	}
	if queueID != nil && len(user.QueueIDs) > 0 && !user.ServesQueue(*queueID) {
		return nil, apperrors.NewValidationError("queue is not served by the user", map[string]any{"queueId": *queueID})
	}
	if status == domain.TicketStatusOpen && queueID == nil && (len(user.QueueIDs) > 0 || !input.QueueID.Set) {
		return nil, apperrors.NewQueueRequired(map[string]any{"userId": user.ID})
	}

	ticket := &domain.Ticket{
		Status:     status,
		ContactID:  contact.ID,
		WhatsappID: wa.ID,
		QueueID:    queueID,
		IsGroup:    contact.IsGroup,
	}
	if status == domain.TicketStatusOpen {
		ticket.UserID = domain.IDPtr(user.ID)
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrActiveTicketExists) {
			var winnerID int64
			if winner, findErr := s.tickets.FindActive(ctx, contact.ID, wa.ID); findErr == nil {
				winnerID = winner.ID
			}
			return nil, apperrors.NewOtherOpenTicket(winnerID)
		}
		return nil, err
	}

	created, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	s.publishTicket(ctx, events.ActionCreate, created,
		events.TopicStatus(created.Status), events.TopicNotification, events.TopicTicket(created.ID))
	return created, nil
}

// ShowTicket returns the hydrated ticket.
func (s *TicketService) ShowTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListTicketsInput mirrors the ticket board query parameters.
type ListTicketsInput struct {
	Status             domain.TicketStatus
	SearchParam        string
	QueueIDs           []int64
	ShowAll            bool
	Date               *time.Time
	WithUnreadMessages bool
	PageNumber         int
}

// TicketPage is one page of the ticket board.
type TicketPage struct {
	Tickets []domain.Ticket `json:"tickets"`
	Count   int             `json:"count"`
	HasMore bool            `json:"hasMore"`
}

// ListTickets pages the tickets visible to the actor, most recently
// updated first.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, input ListTicketsInput) (*TicketPage, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	page := input.PageNumber
	if page < 1 {
		page = 1
	}

	filter := repository.TicketFilter{
		SearchTerm: strings.TrimSpace(input.SearchParam),
		WithUnread: input.WithUnreadMessages,
		Limit:      ticketsPageSize,
		Offset:     (page - 1) * ticketsPageSize,
	}
	if input.Status != "" {
		if !input.Status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": input.Status})
		}
		filter.Statuses = []domain.TicketStatus{input.Status}
	}
	if !(input.ShowAll && auth.Can(actor.Profile, auth.ActionShowAllTickets)) {
		filter.VisibleTo = domain.IDPtr(actor.ID)
	}
	queueIDs := input.QueueIDs
	if len(queueIDs) == 0 {
		queueIDs = actor.QueueIDs
	}
	if len(queueIDs) > 0 {
		filter.QueueIDs = queueIDs
		filter.IncludeNoQueue = true
	}
	if input.Date != nil {
		y, m, d := input.Date.Date()
		from := time.Date(y, m, d, 0, 0, 0, 0, input.Date.Location())
		to := from.Add(24*time.Hour - time.Nanosecond)
		filter.CreatedFrom, filter.CreatedTo = &from, &to
	}

	tickets, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return &TicketPage{
		Tickets: tickets,
		Count:   total,
		HasMore: total > filter.Offset+len(tickets),
	}, nil
}

// DeleteTicket removes a ticket with its messages and history.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, ticketID int64) error {
	if actor == nil || !auth.Can(actor.Profile, auth.ActionDeleteTicket) {
		return apperrors.NewForbidden("insufficient permissions")
	}
	ticket, err := s.ShowTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return notFound(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	s.publishTicketDeleted(ctx, ticket.ID,
		events.TopicStatus(ticket.Status), events.TopicNotification, events.TopicTicket(ticket.ID))
	return nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID int64) ([]domain.TicketHistory, error) {
	if actor == nil || !auth.Can(actor.Profile, auth.ActionViewTicketHistory) {
		return nil, apperrors.NewForbidden("insufficient permissions")
	}
	if _, err := s.ShowTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}

func (s *TicketService) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}
