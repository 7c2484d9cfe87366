package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// UpdateTicketInput is the single mutation entry point of the state
// machine. UserID and QueueID distinguish "absent" from "null".
type UpdateTicketInput struct {
	Status     *domain.TicketStatus
	UserID     domain.OptionalID
	QueueID    domain.OptionalID
	WhatsappID *int64
}

// UpdateTicket applies one state machine transition as a single write.
// A nil actor is the system itself and skips permission checks.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID int64, input UpdateTicketInput) (*domain.Ticket, error) {
	ticket, err := s.ShowTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	before := ticket.Clone()

	target := ticket.Status
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": *input.Status})
		}
		target = *input.Status
	}

	if input.WhatsappID != nil && *input.WhatsappID != ticket.WhatsappID {
		if actor != nil && !auth.Can(actor.Profile, auth.ActionTransferWhatsapp) {
			return nil, apperrors.NewForbidden("insufficient permissions")
		}
		if _, err := s.connectionFor(ctx, *input.WhatsappID); err != nil {
			return nil, err
		}
		ticket.WhatsappID = *input.WhatsappID
	}

	var apply func(context.Context, *domain.Ticket, UpdateTicketInput) error
	switch {
	case before.Status == domain.TicketStatusPending && target == domain.TicketStatusOpen:
		apply = s.accept
	case before.Status == domain.TicketStatusPending && target == domain.TicketStatusPending:
		apply = s.reroutePending
	case before.Status == domain.TicketStatusOpen && target == domain.TicketStatusPending:
		apply = s.returnToQueue
	case before.Status == domain.TicketStatusOpen && target == domain.TicketStatusClosed:
		apply = s.close
	case before.Status == domain.TicketStatusClosed && target == domain.TicketStatusOpen:
		apply = s.reopen
	case before.Status == domain.TicketStatusOpen && target == domain.TicketStatusOpen:
		apply = s.transfer
	default:
		return nil, apperrors.NewInvalidTransition(string(before.Status), string(target))
	}
	if err := apply(ctx, ticket, input); err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveTicketExists):
			var otherID int64
			if other, findErr := s.tickets.FindActive(ctx, ticket.ContactID, ticket.WhatsappID); findErr == nil {
				otherID = other.ID
			}
			return nil, apperrors.NewOtherOpenTicket(otherID)
		default:
			return nil, notFound(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
	}

	updated, err := s.afterUpdate(ctx, actor, before, ticket.ID)
	if err != nil {
		return nil, err
	}
	if before.Status != domain.TicketStatusClosed && updated.Status == domain.TicketStatusClosed {
		s.sendFarewell(ctx, updated)
	}
	return updated, nil
}

// accept moves a waiting ticket to an agent.
func (s *TicketService) accept(ctx context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	if !in.UserID.Set || in.UserID.IsNull() {
		return apperrors.NewValidationError("userId is required to accept a ticket", nil)
	}
	user, err := s.loadUser(ctx, *in.UserID.Value)
	if err != nil {
		return err
	}
	if in.QueueID.Set {
		t.QueueID = in.QueueID.Value
	}
	// A queue-less ticket only opens without a queue when the agent serves
	// no queues and sent an explicit null.
	if t.QueueID == nil && (len(user.QueueIDs) > 0 || !in.QueueID.Set) {
		return apperrors.NewQueueRequired(map[string]any{"ticketId": t.ID})
	}
	if err := checkQueueServed(user, t.QueueID); err != nil {
		return err
	}
	t.Status = domain.TicketStatusOpen
	t.UserID = domain.IDPtr(user.ID)
	return nil
}

// reroutePending changes the queue of a ticket that is still waiting.
func (s *TicketService) reroutePending(_ context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	if in.UserID.Set && !in.UserID.IsNull() {
		return apperrors.NewValidationError("pending tickets cannot be assigned; accept the ticket instead", nil)
	}
	if in.QueueID.Set {
		t.QueueID = in.QueueID.Value
	}
	t.UserID = nil
	return nil
}

// returnToQueue releases the agent and keeps the queue unless a hint is given.
func (s *TicketService) returnToQueue(_ context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	if in.QueueID.Set {
		t.QueueID = in.QueueID.Value
	}
	t.Status = domain.TicketStatusPending
	t.UserID = nil
	return nil
}

// close resolves the ticket and keeps the resolving agent on it.
func (s *TicketService) close(ctx context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	userID := t.UserID
	if in.UserID.Set {
		userID = in.UserID.Value
	}
	if userID == nil {
		return apperrors.NewValidationError("userId is required to close a ticket", nil)
	}
	if !domain.SameID(userID, t.UserID) {
		if _, err := s.loadUser(ctx, *userID); err != nil {
			return err
		}
	}
	t.Status = domain.TicketStatusClosed
	t.UserID = userID
	return nil
}

// reopen brings a closed ticket back to an agent with its old queue.
func (s *TicketService) reopen(ctx context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	if !in.UserID.Set || in.UserID.IsNull() {
		return apperrors.NewValidationError("userId is required to reopen a ticket", nil)
	}
	user, err := s.loadUser(ctx, *in.UserID.Value)
	if err != nil {
		return err
	}
	if in.QueueID.Set {
		if err := checkQueueServed(user, in.QueueID.Value); err != nil {
			return err
		}
		t.QueueID = in.QueueID.Value
	}
	t.Status = domain.TicketStatusOpen
	t.UserID = domain.IDPtr(user.ID)
	return nil
}

// transfer reassigns user, queue or connection without leaving open. An
// explicit null user turns it into a return to queue.
func (s *TicketService) transfer(ctx context.Context, t *domain.Ticket, in UpdateTicketInput) error {
	if in.UserID.Set && in.UserID.IsNull() {
		return s.returnToQueue(ctx, t, in)
	}
	userID := t.UserID
	if in.UserID.Set {
		userID = in.UserID.Value
	}
	if userID == nil {
		return apperrors.NewValidationError("userId is required for an open ticket", nil)
	}
	user, err := s.loadUser(ctx, *userID)
	if err != nil {
		return err
	}

	if in.QueueID.Set {
		if err := checkQueueServed(user, in.QueueID.Value); err != nil {
			return err
		}
		t.QueueID = in.QueueID.Value
	} else if len(user.QueueIDs) > 0 && (t.QueueID == nil || !user.ServesQueue(*t.QueueID)) {
		if len(user.QueueIDs) == 1 {
			t.QueueID = domain.IDPtr(user.QueueIDs[0])
		} else {
			t.QueueID = nil
		}
	}
	t.UserID = domain.IDPtr(user.ID)
	return nil
}

func checkQueueServed(user *domain.User, queueID *int64) error {
	if queueID == nil || len(user.QueueIDs) == 0 || user.ServesQueue(*queueID) {
		return nil
	}
	return apperrors.NewValidationError("queue is not served by the user", map[string]any{
		"userId":  user.ID,
		"queueId": *queueID,
	})
}

// afterUpdate records history and emits the board events for a committed
// ticket write.
func (s *TicketService) afterUpdate(ctx context.Context, actor *domain.User, before *domain.Ticket, ticketID int64) (*domain.Ticket, error) {
	after, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.recordChanges(ctx, actor, before, after)

	if before.Status != after.Status || !domain.SameID(before.UserID, after.UserID) {
		s.publishTicketDeleted(ctx, after.ID, events.TopicStatus(before.Status))
	}
	s.publishTicket(ctx, events.ActionUpdate, after,
		events.TopicStatus(after.Status), events.TopicNotification, events.TopicTicket(after.ID))
	return after, nil
}

func (s *TicketService) recordChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket) {
	if s.history == nil {
		return
	}
	var changedBy *int64
	if actor != nil {
		changedBy = domain.IDPtr(actor.ID)
	}
	record := func(kind domain.TicketChangeType, key string, oldValue, newValue any) {
		entry := &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: changedBy,
			ChangeType:  kind,
			OldValue:    map[string]any{key: oldValue},
			NewValue:    map[string]any{key: newValue},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record ticket history", zap.Int64("ticket_id", after.ID), zap.Error(err))
		}
	}
	if before.Status != after.Status {
		record(domain.ChangeTypeStatus, "status", before.Status, after.Status)
	}
	if !domain.SameID(before.UserID, after.UserID) {
		record(domain.ChangeTypeAssignee, "userId", before.UserID, after.UserID)
	}
	if !domain.SameID(before.QueueID, after.QueueID) {
		record(domain.ChangeTypeQueue, "queueId", before.QueueID, after.QueueID)
	}
	if before.WhatsappID != after.WhatsappID {
		record(domain.ChangeTypeConnection, "whatsappId", before.WhatsappID, after.WhatsappID)
	}
}

func (s *TicketService) sendFarewell(ctx context.Context, ticket *domain.Ticket) {
	if s.messenger == nil {
		return
	}
	wa, err := s.whatsapps.GetByID(ctx, ticket.WhatsappID)
	if err != nil || wa.FarewellMessage == "" {
		return
	}
	if _, err := s.messenger.SendTicketText(ctx, ticket, wa.FarewellMessage); err != nil {
		s.logger.Warn("send farewell message", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
}
