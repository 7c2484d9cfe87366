package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// routeToQueue runs the greeting menu for a ticket that arrived on a
// connection serving several queues. A reply with an option number moves
// the ticket to that queue; anything else repeats the menu.
func (s *MessageService) routeToQueue(ctx context.Context, ticket *domain.Ticket, body string) {
	wa, err := s.whatsapps.GetByID(ctx, ticket.WhatsappID)
	if err != nil {
		s.logger.Warn("queue routing: load connection", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if len(wa.QueueIDs) < 2 {
		return
	}
	queues, err := s.queues.ListByIDs(ctx, wa.QueueIDs)
	if err != nil || len(queues) == 0 {
		s.logger.Warn("queue routing: load queues", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return
	}

	if chosen := pickQueue(queues, body); chosen != nil {
		updated, err := s.resolver.UpdateTicket(ctx, nil, ticket.ID, UpdateTicketInput{QueueID: domain.Some(chosen.ID)})
		if err != nil {
			s.logger.Warn("queue routing: assign queue", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			return
		}
		if chosen.GreetingMessage != "" {
			s.sendBot(ctx, updated, chosen.GreetingMessage)
		}
		return
	}

	s.sendBot(ctx, ticket, greetingMenu(wa.GreetingMessage, queues))
}

func (s *MessageService) sendBot(ctx context.Context, ticket *domain.Ticket, body string) {
	// The left-to-right mark tags bot texts so the echo is recognizable.
	if _, err := s.SendTicketText(ctx, ticket, "\u200e"+body); err != nil {
		s.logger.Warn("queue routing: send", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
}

// pickQueue maps a 1-based menu answer onto a queue.
func pickQueue(queues []domain.Queue, body string) *domain.Queue {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || n < 1 || n > len(queues) {
		return nil
	}
	return &queues[n-1]
}

func greetingMenu(greeting string, queues []domain.Queue) string {
	var b strings.Builder
	if greeting != "" {
		b.WriteString(greeting)
		b.WriteString("\n")
	}
	for i, q := range queues {
		fmt.Fprintf(&b, "\n*%d* - %s", i+1, q.Name)
	}
	return b.String()
}
