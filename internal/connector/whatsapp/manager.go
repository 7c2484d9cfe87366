// Package whatsapp implements the messaging transport on whatsmeow, one
// client per configured connection.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const callbackTimeout = 30 * time.Second

// Manager owns the whatsmeow clients.
type Manager struct {
	container *sqlstore.Container
	whatsapps repository.WhatsappRepository
	logger    *zap.Logger
	waLog     waLog.Logger

	mu      sync.RWMutex
	handler connector.Handler
	clients map[int64]*whatsmeow.Client
}

// NewManager opens the whatsmeow device store.
func NewManager(ctx context.Context, cfg config.WhatsappConfig, whatsapps repository.WhatsappRepository, logger *zap.Logger) (*Manager, error) {
	base := newLogger(logger.Named("whatsmeow"), cfg.LogLevel)
	container, err := sqlstore.New(ctx, "postgres", cfg.StoreDSN, base.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("open whatsmeow store: %w", err)
	}
	return &Manager{
		container: container,
		whatsapps: whatsapps,
		logger:    logger,
		waLog:     base,
		clients:   make(map[int64]*whatsmeow.Client),
	}, nil
}

// SetHandler installs the callback receiver.
func (m *Manager) SetHandler(h connector.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// StartSession connects the connection's device, pairing a new one when
// no session exists yet.
func (m *Manager) StartSession(ctx context.Context, whatsappID int64) error {
	m.mu.RLock()
	existing := m.clients[whatsappID]
	m.mu.RUnlock()
	if existing != nil && existing.IsConnected() {
		return nil
	}

	wa, err := m.whatsapps.GetByID(ctx, whatsappID)
	if err != nil {
		return err
	}

	device, err := m.device(ctx, wa)
	if err != nil {
		return err
	}

	client := whatsmeow.NewClient(device, m.waLog.Sub(fmt.Sprintf("client-%d", whatsappID)))
	client.EnableAutoReconnect = true
	client.AddEventHandler(func(evt interface{}) { m.dispatch(whatsappID, client, evt) })

	m.mu.Lock()
	if old := m.clients[whatsappID]; old != nil {
		old.Disconnect()
	}
	m.clients[whatsappID] = client
	m.mu.Unlock()

	m.notifyStatus(connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionOpening})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go m.consumeQR(whatsappID, qrChan)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp %d: %w", whatsappID, err)
	}
	return nil
}

func (m *Manager) device(ctx context.Context, wa *domain.Whatsapp) (*store.Device, error) {
	if wa.SessionJID != "" {
		jid, err := types.ParseJID(wa.SessionJID)
		if err == nil {
			device, err := m.container.GetDevice(ctx, jid)
			if err != nil {
				return nil, fmt.Errorf("load device: %w", err)
			}
			if device != nil {
				return device, nil
			}
		}
		m.logger.Warn("stored whatsapp session not found; pairing again", zap.Int64("whatsapp_id", wa.ID))
	}
	return m.container.NewDevice(), nil
}

func (m *Manager) consumeQR(whatsappID int64, qrChan <-chan whatsmeow.QRChannelItem) {
	retries := 0
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			m.notifyStatus(connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionQRCode, QRCode: item.Code, Retries: retries})
			retries++
		case "success":
			m.notifyStatus(connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionPairing})
		case "timeout":
			m.notifyStatus(connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionTimeout, Retries: retries})
		default:
			if item.Error != nil {
				m.logger.Warn("whatsapp pairing failed", zap.Int64("whatsapp_id", whatsappID), zap.Error(item.Error))
			}
		}
	}
}

// StopSession disconnects without unpairing.
func (m *Manager) StopSession(ctx context.Context, whatsappID int64) error {
	m.mu.Lock()
	client := m.clients[whatsappID]
	delete(m.clients, whatsappID)
	m.mu.Unlock()
	if client == nil {
		return apperrors.NewSessionNotFound(whatsappID)
	}
	client.Disconnect()
	m.notifyStatus(connector.StatusUpdate{WhatsappID: whatsappID, Status: domain.ConnectionDisconnected})
	return nil
}

// Logout unpairs the device.
func (m *Manager) Logout(ctx context.Context, whatsappID int64) error {
	client, err := m.client(whatsappID)
	if err != nil {
		return err
	}
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("logout whatsapp %d: %w", whatsappID, err)
	}
	m.mu.Lock()
	delete(m.clients, whatsappID)
	m.mu.Unlock()
	return m.whatsapps.UpdateSession(ctx, whatsappID, "")
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		client.Disconnect()
		delete(m.clients, id)
	}
}

func (m *Manager) client(whatsappID int64) (*whatsmeow.Client, error) {
	m.mu.RLock()
	client := m.clients[whatsappID]
	m.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return nil, apperrors.NewSessionNotFound(whatsappID)
	}
	return client, nil
}

func (m *Manager) currentHandler() connector.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler
}

func (m *Manager) notifyStatus(update connector.StatusUpdate) {
	h := m.currentHandler()
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()
	if err := h.HandleStatus(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("whatsapp status callback failed",
			zap.Int64("whatsapp_id", update.WhatsappID),
			zap.String("status", string(update.Status)),
			zap.Error(err))
	}
}
