// Package service holds the helpdesk workflows: ticket resolution, the
// ticket state machine, message flow and connection lifecycle.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// publisher emits bus events on behalf of a service. Publishing is
// best-effort: a failed publish is logged, never returned to the caller.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func newPublisher(dispatcher events.Dispatcher, logger *zap.Logger) publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return publisher{dispatcher: dispatcher, logger: logger}
}

// publish encodes payload and dispatches it to topics.
func (p publisher) publish(ctx context.Context, name events.EventName, action events.Action, payload any, topics ...string) {
	event, err := events.NewEvent(name, action, payload, topics...)
	if err != nil {
		p.logger.Error("encode event", zap.String("event", string(name)), zap.Error(err))
		return
	}
	p.publishEvent(ctx, event)
}

func (p publisher) publishTicket(ctx context.Context, action events.Action, ticket *domain.Ticket, topics ...string) {
	p.publish(ctx, events.EventTicket, action, events.TicketPayload{Action: action, Ticket: ticket}, topics...)
}

func (p publisher) publishTicketDeleted(ctx context.Context, ticketID int64, topics ...string) {
	p.publish(ctx, events.EventTicket, events.ActionDelete, events.TicketPayload{Action: events.ActionDelete, TicketID: ticketID}, topics...)
}

func (p publisher) publishEvent(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish event",
			zap.String("event", string(event.Name)),
			zap.String("action", string(event.Action)),
			zap.Error(err))
	}
}

// notFound maps a repository miss to a typed not-found error and passes
// everything else through.
func notFound(err error, resource string, details map[string]any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	return err
}
