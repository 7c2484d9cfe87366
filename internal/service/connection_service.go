package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ConnectionService drives whatsapp session lifecycles.
type ConnectionService struct {
	whatsapps repository.WhatsappRepository
	sessions  connector.SessionController
	publisher
}

// NewConnectionService constructs the service.
func NewConnectionService(whatsapps repository.WhatsappRepository, sessions connector.SessionController, dispatcher events.Dispatcher, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{
		whatsapps: whatsapps,
		sessions:  sessions,
		publisher: newPublisher(dispatcher, logger),
	}
}

// ListConnections returns every configured connection.
func (s *ConnectionService) ListConnections(ctx context.Context) ([]domain.Whatsapp, error) {
	return s.whatsapps.List(ctx)
}

// StartSession connects (or pairs) a connection.
func (s *ConnectionService) StartSession(ctx context.Context, actor *domain.User, whatsappID int64) (*domain.Whatsapp, error) {
	wa, err := s.authorize(ctx, actor, whatsappID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.StartSession(ctx, wa.ID); err != nil {
		return nil, err
	}
	return s.whatsapps.GetByID(ctx, wa.ID)
}

// Logout unpairs a connection.
func (s *ConnectionService) Logout(ctx context.Context, actor *domain.User, whatsappID int64) error {
	wa, err := s.authorize(ctx, actor, whatsappID)
	if err != nil {
		return err
	}
	return s.sessions.Logout(ctx, wa.ID)
}

func (s *ConnectionService) authorize(ctx context.Context, actor *domain.User, whatsappID int64) (*domain.Whatsapp, error) {
	if actor == nil || !auth.Can(actor.Profile, auth.ActionManageConnections) {
		return nil, apperrors.NewForbidden("insufficient permissions")
	}
	wa, err := s.whatsapps.GetByID(ctx, whatsappID)
	if err != nil {
		return nil, notFound(err, "whatsapp", map[string]any{"whatsapp_id": whatsappID})
	}
	return wa, nil
}

// HandleStatus persists a session status change and announces it.
func (s *ConnectionService) HandleStatus(ctx context.Context, update connector.StatusUpdate) error {
	if err := s.whatsapps.UpdateStatus(ctx, update.WhatsappID, update.Status, update.QRCode, update.Retries); err != nil {
		return err
	}
	if update.SessionJID != "" {
		if err := s.whatsapps.UpdateSession(ctx, update.WhatsappID, update.SessionJID); err != nil {
			return err
		}
	}
	wa, err := s.whatsapps.GetByID(ctx, update.WhatsappID)
	if err != nil {
		return err
	}
	s.logger.Info("whatsapp session status",
		zap.Int64("whatsapp_id", wa.ID),
		zap.String("status", string(wa.Status)))
	s.publish(ctx, events.EventWhatsappSession, events.ActionUpdate,
		events.SessionPayload{Action: events.ActionUpdate, Session: wa}, events.TopicGlobal)
	return nil
}

// ReconnectDropped restarts paired sessions that lost their connection.
// It returns how many were restarted.
func (s *ConnectionService) ReconnectDropped(ctx context.Context) (int, error) {
	list, err := s.whatsapps.List(ctx)
	if err != nil {
		return 0, err
	}
	restarted := 0
	for _, wa := range list {
		if wa.Status != domain.ConnectionDisconnected || wa.SessionJID == "" {
			continue
		}
		if err := s.sessions.StartSession(ctx, wa.ID); err != nil {
			s.logger.Warn("reconnect whatsapp session", zap.Int64("whatsapp_id", wa.ID), zap.Error(err))
			continue
		}
		restarted++
	}
	return restarted, nil
}

// StartAll brings up every paired connection at boot.
func (s *ConnectionService) StartAll(ctx context.Context) {
	list, err := s.whatsapps.List(ctx)
	if err != nil {
		s.logger.Warn("list whatsapp connections", zap.Error(err))
		return
	}
	for _, wa := range list {
		if wa.SessionJID == "" {
			continue
		}
		if err := s.sessions.StartSession(ctx, wa.ID); err != nil {
			s.logger.Warn("start whatsapp session", zap.Int64("whatsapp_id", wa.ID), zap.Error(err))
		}
	}
}
