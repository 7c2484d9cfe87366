package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	importBatchSize  = 100
	importBatchDelay = 500 * time.Millisecond
)

// ContactService maintains the contact directory.
type ContactService struct {
	contacts repository.ContactRepository
	sender   connector.Sender
	publisher

	batchSize  int
	batchDelay time.Duration
}

// NewContactService constructs the service.
func NewContactService(contacts repository.ContactRepository, sender connector.Sender, dispatcher events.Dispatcher, logger *zap.Logger) *ContactService {
	return &ContactService{
		contacts:   contacts,
		sender:     sender,
		publisher:  newPublisher(dispatcher, logger),
		batchSize:  importBatchSize,
		batchDelay: importBatchDelay,
	}
}

// EnsureContact returns the contact for number, creating it on first
// contact. A push name replaces a placeholder name only.
func (s *ContactService) EnsureContact(ctx context.Context, number, name string) (*domain.Contact, error) {
	number = domain.NormalizeNumber(number)
	if number == "" {
		return nil, apperrors.NewValidationError("contact number is required", nil)
	}
	name = strings.TrimSpace(name)

	contact, err := s.contacts.GetByNumber(ctx, number)
	switch {
	case err == nil:
		if name != "" && name != contact.Name && (contact.Name == "" || contact.Name == contact.Number) {
			contact.Name = name
			if err := s.contacts.Update(ctx, contact); err != nil {
				return nil, err
			}
			s.publishContact(ctx, events.ActionUpdate, contact)
		}
		return contact, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if name == "" {
		name = number
	}
	contact = &domain.Contact{Name: name, Number: number}
	if err := s.contacts.Create(ctx, contact); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.contacts.GetByNumber(ctx, number)
		}
		return nil, err
	}
	s.publishContact(ctx, events.ActionCreate, contact)
	return contact, nil
}

// ImportContacts copies the connection's address book into the directory,
// pausing between batches to shed load. It returns the number of new
// contacts.
func (s *ContactService) ImportContacts(ctx context.Context, actor *domain.User, whatsappID int64) (int, error) {
	if actor == nil || !auth.Can(actor.Profile, auth.ActionImportContacts) {
		return 0, apperrors.NewForbidden("insufficient permissions")
	}
	book, err := s.sender.Contacts(ctx, whatsappID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSessionNotFound) {
			return 0, err
		}
		return 0, apperrors.NewSendingMessage(err)
	}

	imported := 0
	for i, entry := range book {
		if i > 0 && i%s.batchSize == 0 && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return imported, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
		number := domain.NormalizeNumber(entry.Number)
		if number == "" {
			continue
		}
		if _, err := s.contacts.GetByNumber(ctx, number); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return imported, err
		}
		if _, err := s.EnsureContact(ctx, number, entry.Name); err != nil {
			s.logger.Warn("import contact", zap.String("number", number), zap.Error(err))
			continue
		}
		imported++
	}
	s.logger.Info("contacts imported", zap.Int64("whatsapp_id", whatsappID), zap.Int("imported", imported), zap.Int("seen", len(book)))
	return imported, nil
}

func (s *ContactService) publishContact(ctx context.Context, action events.Action, contact *domain.Contact) {
	s.publish(ctx, events.EventContact, action, events.ContactPayload{Action: action, Contact: contact}, events.TopicGlobal)
}
