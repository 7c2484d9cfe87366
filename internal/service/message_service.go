package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	messagesPageSize   = 20
	lastMessagePreview = 255
)

// MessageService records conversation traffic and relays agent replies.
type MessageService struct {
	messages  repository.MessageRepository
	tickets   repository.TicketRepository
	queues    repository.QueueRepository
	whatsapps repository.WhatsappRepository
	resolver  *TicketService
	contacts  *ContactService
	sender    connector.Sender
	publisher
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	Repos      repository.Set
	Tickets    *TicketService
	Contacts   *ContactService
	Sender     connector.Sender
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewMessageService constructs the service and registers it as the
// ticket service's messenger.
func NewMessageService(deps MessageDependencies) *MessageService {
	s := &MessageService{
		messages:  deps.Repos.Messages,
		tickets:   deps.Repos.Tickets,
		queues:    deps.Repos.Queues,
		whatsapps: deps.Repos.Whatsapps,
		resolver:  deps.Tickets,
		contacts:  deps.Contacts,
		sender:    deps.Sender,
		publisher: newPublisher(deps.Dispatcher, deps.Logger),
	}
	if deps.Tickets != nil {
		deps.Tickets.UseMessenger(s)
	}
	return s
}

// HandleInbound stores a message observed on a connection and attaches it
// to the contact's active ticket. Redelivered messages are ignored.
func (s *MessageService) HandleInbound(ctx context.Context, in connector.InboundMessage) (*domain.Message, error) {
	if in.IsGroup {
		return nil, nil
	}
	if existing, err := s.messages.GetByID(ctx, in.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	contact, err := s.contacts.EnsureContact(ctx, in.From, in.PushName)
	if err != nil {
		return nil, err
	}

	unread := -1
	if in.FromMe {
		unread = 0
	}
	ticket, err := s.resolver.ResolveTicketForInboundMessage(ctx, contact, in.WhatsappID, unread)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		ID:        in.ID,
		TicketID:  ticket.ID,
		Body:      in.Body,
		FromMe:    in.FromMe,
		Read:      in.FromMe,
		MediaType: in.MediaType,
		CreatedAt: in.Timestamp,
	}
	if in.FromMe {
		message.Ack = domain.AckServer
	} else {
		message.ContactID = domain.IDPtr(contact.ID)
	}
	if in.QuotedID != "" {
		quoted := in.QuotedID
		message.QuotedMsgID = &quoted
	}

	stored, ticket, err := s.store(ctx, ticket, message)
	if err != nil || stored == nil {
		return stored, err
	}

	if !in.FromMe && ticket.QueueID == nil && ticket.UserID == nil {
		s.routeToQueue(ctx, ticket, in.Body)
	}
	return stored, nil
}

// store persists message on ticket, refreshes the ticket snapshot and
// emits the appMessage event. A nil message means it was a duplicate.
func (s *MessageService) store(ctx context.Context, ticket *domain.Ticket, message *domain.Message) (*domain.Message, *domain.Ticket, error) {
	created, err := s.messages.Create(ctx, message)
	if err != nil {
		return nil, ticket, err
	}
	if !created {
		return nil, ticket, nil
	}

	if err := s.tickets.SetLastMessage(ctx, ticket.ID, message.Preview(lastMessagePreview)); err != nil {
		return nil, ticket, err
	}
	if message.FromMe {
		if err := s.markRead(ctx, ticket.ID); err != nil {
			return nil, ticket, err
		}
	} else {
		unread, err := s.messages.CountUnread(ctx, ticket.ID)
		if err != nil {
			return nil, ticket, err
		}
		if err := s.tickets.SetUnread(ctx, ticket.ID, unread); err != nil {
			return nil, ticket, err
		}
	}

	fresh, err := s.tickets.GetByID(ctx, ticket.ID)
	if err != nil {
		return nil, ticket, err
	}
	stored, err := s.messages.GetByID(ctx, message.ID)
	if err != nil {
		return nil, fresh, err
	}
	s.publish(ctx, events.EventAppMessage, events.ActionCreate,
		events.MessagePayload{Action: events.ActionCreate, Message: stored, Ticket: fresh, Contact: fresh.Contact},
		events.TopicTicket(fresh.ID), events.TopicStatus(fresh.Status), events.TopicNotification)
	return stored, fresh, nil
}

func (s *MessageService) markRead(ctx context.Context, ticketID int64) error {
	if err := s.messages.MarkTicketRead(ctx, ticketID); err != nil {
		return err
	}
	return s.tickets.SetUnread(ctx, ticketID, 0)
}

// SendMessageInput is an agent reply.
type SendMessageInput struct {
	Body        string
	QuotedMsgID string
}

// SendMessage delivers an agent reply on the ticket's connection. Transport
// failures are reported, never retried.
func (s *MessageService) SendMessage(ctx context.Context, actor *domain.User, ticketID int64, input SendMessageInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("body is required", nil)
	}
	ticket, err := s.resolver.ShowTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var quoted *domain.Message
	if input.QuotedMsgID != "" {
		quoted, err = s.messages.GetByID(ctx, input.QuotedMsgID)
		if err != nil {
			return nil, notFound(err, "message", map[string]any{"message_id": input.QuotedMsgID})
		}
	}
	return s.deliver(ctx, ticket, body, quoted)
}

// SendTicketText sends a system text such as a greeting or farewell.
func (s *MessageService) SendTicketText(ctx context.Context, ticket *domain.Ticket, body string) (*domain.Message, error) {
	return s.deliver(ctx, ticket, body, nil)
}

func (s *MessageService) deliver(ctx context.Context, ticket *domain.Ticket, body string, quoted *domain.Message) (*domain.Message, error) {
	if ticket.Contact == nil {
		return nil, apperrors.NewInternalError(errors.New("ticket contact not loaded"))
	}
	out := connector.OutboundMessage{
		WhatsappID: ticket.WhatsappID,
		To:         ticket.Contact.Number,
		Body:       body,
	}
	if quoted != nil {
		out.Quoted = &connector.QuotedRef{ID: quoted.ID, Body: quoted.Body, FromMe: quoted.FromMe}
	}

	sent, err := s.sender.SendText(ctx, out)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSessionNotFound) {
			return nil, err
		}
		return nil, apperrors.NewSendingMessage(err)
	}

	message := &domain.Message{
		ID:        sent.ID,
		TicketID:  ticket.ID,
		Body:      body,
		FromMe:    true,
		Read:      true,
		Ack:       domain.AckServer,
		MediaType: "chat",
		CreatedAt: sent.Timestamp,
	}
	if quoted != nil {
		message.QuotedMsgID = &quoted.ID
	}
	stored, _, err := s.store(ctx, ticket, message)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		// The transport echo was recorded first.
		return s.messages.GetByID(ctx, sent.ID)
	}
	return stored, nil
}

// DeleteMessage revokes one of our messages for everyone and keeps it as
// a soft-deleted row.
func (s *MessageService) DeleteMessage(ctx context.Context, actor *domain.User, messageID string) (*domain.Message, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message", map[string]any{"message_id": messageID})
	}
	if !message.FromMe {
		return nil, apperrors.NewValidationError("only sent messages can be deleted", map[string]any{"message_id": messageID})
	}
	ticket, err := s.resolver.ShowTicket(ctx, message.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Contact != nil {
		if err := s.sender.Revoke(ctx, ticket.WhatsappID, ticket.Contact.Number, message.ID); err != nil {
			if apperrors.HasCode(err, apperrors.CodeSessionNotFound) {
				return nil, err
			}
			return nil, apperrors.NewSendingMessage(err)
		}
	}
	return s.softDelete(ctx, message.ID)
}

// HandleRevoke marks a message deleted by its author.
func (s *MessageService) HandleRevoke(ctx context.Context, rev connector.Revocation) error {
	_, err := s.softDelete(ctx, rev.MessageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (s *MessageService) softDelete(ctx context.Context, messageID string) (*domain.Message, error) {
	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return nil, err
	}
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventAppMessage, events.ActionUpdate,
		events.MessagePayload{Action: events.ActionUpdate, Message: message},
		events.TopicTicket(message.TicketID))
	return message, nil
}

// UpdateAck raises a message's delivery level; stale acks are dropped.
func (s *MessageService) UpdateAck(ctx context.Context, ack connector.AckUpdate) error {
	if !ack.Ack.Valid() {
		return apperrors.NewValidationError("unknown ack level", map[string]any{"ack": ack.Ack})
	}
	changed, err := s.messages.UpdateAck(ctx, ack.MessageID, ack.Ack)
	if err != nil || !changed {
		return err
	}
	message, err := s.messages.GetByID(ctx, ack.MessageID)
	if err != nil {
		return err
	}
	s.publish(ctx, events.EventAppMessage, events.ActionUpdate,
		events.MessagePayload{Action: events.ActionUpdate, Message: message},
		events.TopicTicket(message.TicketID))
	return nil
}

// MessagePage is one backward page of a conversation.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Ticket   *domain.Ticket   `json:"ticket"`
	Count    int              `json:"count"`
	HasMore  bool             `json:"hasMore"`
}

// ListMessages pages a conversation from the newest message backwards and
// marks the ticket read.
func (s *MessageService) ListMessages(ctx context.Context, actor *domain.User, ticketID int64, pageNumber int) (*MessagePage, error) {
	ticket, err := s.resolver.ShowTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	offset := (pageNumber - 1) * messagesPageSize
	messages, total, err := s.messages.ListByTicket(ctx, ticket.ID, messagesPageSize, offset)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	if ticket.UnreadMessages > 0 {
		if err := s.markRead(ctx, ticket.ID); err != nil {
			return nil, err
		}
		if ticket, err = s.tickets.GetByID(ctx, ticket.ID); err != nil {
			return nil, err
		}
		s.publishTicket(ctx, events.ActionUpdateUnread, ticket,
			events.TopicStatus(ticket.Status), events.TopicNotification)
	}

	return &MessagePage{
		Messages: messages,
		Ticket:   ticket,
		Count:    total,
		HasMore:  total > offset+len(messages),
	}, nil
}
