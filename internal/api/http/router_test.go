package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
)

type testServer struct {
	app      *fiber.App
	repos    repository.Set
	loopback *connector.Loopback
	wa       *domain.Whatsapp
	sales    *domain.Queue
	agent    *domain.User
	metrics  *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewStore().Set()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	sales := &domain.Queue{Name: "Sales", Color: "#00ff00"}
	if err := repos.Queues.Create(ctx, sales); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	wa := &domain.Whatsapp{Name: "main", IsDefault: true, Status: domain.ConnectionConnected, QueueIDs: []int64{sales.ID}}
	if err := repos.Whatsapps.Create(ctx, wa); err != nil {
		t.Fatalf("seed whatsapp: %v", err)
	}
	hash, err := auth.HashPassword("agent-pass", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	agent := &domain.User{Name: "Agent", Email: "agent@example.com", PasswordHash: hash, Profile: domain.ProfileUser, QueueIDs: []int64{sales.ID}}
	if err := repos.Users.Create(ctx, agent); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	authService := service.NewAuthService(repos.Users, tokens, bcrypt.MinCost, logger)
	if err := authService.EnsureAdmin(ctx, "Admin", "admin@example.com", "admin-pass"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	loopback := connector.NewLoopback(logger)
	tickets := service.NewTicketService(service.TicketDependencies{Repos: repos, Dispatcher: dispatcher, Logger: logger})
	contacts := service.NewContactService(repos.Contacts, loopback, dispatcher, logger)
	messages := service.NewMessageService(service.MessageDependencies{
		Repos:      repos,
		Tickets:    tickets,
		Contacts:   contacts,
		Sender:     loopback,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	connections := service.NewConnectionService(repos.Whatsapps, loopback, dispatcher, logger)
	loopback.SetHandler(service.NewTransportHandler(messages, connections))

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk", "test", nil, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Messages:       handlers.NewMessagesHandler(messages),
		Connections:    handlers.NewConnectionsHandler(connections, contacts),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Users),
	})

	return &testServer{app: app, repos: repos, loopback: loopback, wa: wa, sales: sales, agent: agent, metrics: metrics}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	status, env := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	if status != nethttp.StatusOK {
		t.Fatalf("login %s: status %d", email, status)
	}
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Auth.Token == "" {
		t.Fatalf("login payload: %v", err)
	}
	return data.Auth.Token
}

func (s *testServer) inject(t *testing.T, id, from, body string) {
	t.Helper()
	err := s.loopback.Inject(context.Background(), connector.InboundMessage{
		WhatsappID: s.wa.ID,
		ID:         id,
		From:       from,
		Body:       body,
		MediaType:  "chat",
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("inject %s: %v", id, err)
	}
}

func decodeTicket(t *testing.T, raw json.RawMessage) domain.Ticket {
	t.Helper()
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return ticket
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "agent@example.com", "password": "wrong"})
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED envelope, got %+v", env.Error)
	}

	if token := s.login(t, "AGENT@example.com", "agent-pass"); token == "" {
		t.Fatalf("expected token for case-insensitive email")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/tickets", "", nil)
	if status != nethttp.StatusUnauthorized || env.Error == nil {
		t.Fatalf("expected 401 envelope, got %d %+v", status, env.Error)
	}

	status, _ = s.do(t, nethttp.MethodGet, "/tickets", "not-a-token", nil)
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestUnknownRouteRendersEnvelope(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "agent@example.com", "agent-pass")

	status, env := s.do(t, nethttp.MethodGet, "/nope", token, nil)
	if status != nethttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND envelope, got %+v", env.Error)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "agent@example.com", "agent-pass")

	s.inject(t, "IN-1", "5511999990000", "hello")

	status, env := s.do(t, nethttp.MethodGet, "/tickets?status=pending", token, nil)
	if status != nethttp.StatusOK {
		t.Fatalf("list: %d %+v", status, env.Error)
	}
	var page struct {
		Tickets []domain.Ticket `json:"tickets"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Count != 1 || len(page.Tickets) != 1 {
		t.Fatalf("expected one pending ticket, got %d", page.Count)
	}
	pending := page.Tickets[0]
	if pending.QueueID == nil || *pending.QueueID != s.sales.ID {
		t.Fatalf("expected single connection queue to be applied, got %v", pending.QueueID)
	}

	path := fmt.Sprintf("/tickets/%d", pending.ID)
	status, env = s.do(t, nethttp.MethodPut, path, token, map[string]any{"status": "open", "userId": s.agent.ID})
	if status != nethttp.StatusOK {
		t.Fatalf("accept: %d %+v", status, env.Error)
	}
	accepted := decodeTicket(t, env.Data)
	if accepted.Status != domain.TicketStatusOpen || accepted.UserID == nil || *accepted.UserID != s.agent.ID {
		t.Fatalf("unexpected accepted ticket %+v", accepted)
	}

	status, env = s.do(t, nethttp.MethodPost, "/tickets", token, map[string]any{"contactId": pending.ContactID, "queueId": s.sales.ID})
	if status != nethttp.StatusConflict {
		t.Fatalf("expected 409 for second active ticket, got %d", status)
	}
	if env.Error == nil || env.Error.Code != "ERR_OTHER_OPEN_TICKET" {
		t.Fatalf("expected ERR_OTHER_OPEN_TICKET, got %+v", env.Error)
	}

	msgPath := fmt.Sprintf("/messages/%d", pending.ID)
	status, env = s.do(t, nethttp.MethodPost, msgPath, token, map[string]string{"body": "how can I help?"})
	if status != nethttp.StatusCreated {
		t.Fatalf("send: %d %+v", status, env.Error)
	}

	status, env = s.do(t, nethttp.MethodGet, msgPath, token, nil)
	if status != nethttp.StatusOK {
		t.Fatalf("list messages: %d %+v", status, env.Error)
	}
	var msgs struct {
		Messages []domain.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if msgs.Count != 2 || len(msgs.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", msgs.Count)
	}
	if msgs.Messages[0].ID != "IN-1" || !msgs.Messages[1].FromMe {
		t.Fatalf("expected chronological page, got %s then %s", msgs.Messages[0].ID, msgs.Messages[1].ID)
	}
}

func TestUpdateTicketExplicitNullUserReturnsToQueue(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "agent@example.com", "agent-pass")
	s.inject(t, "IN-1", "5511999990001", "hi")

	ticket, err := s.repos.Tickets.FindActive(context.Background(), mustContactID(t, s, "5511999990001"), s.wa.ID)
	if err != nil {
		t.Fatalf("find ticket: %v", err)
	}
	path := fmt.Sprintf("/tickets/%d", ticket.ID)
	if status, env := s.do(t, nethttp.MethodPut, path, token, map[string]any{"status": "open", "userId": s.agent.ID}); status != nethttp.StatusOK {
		t.Fatalf("accept: %d %+v", status, env.Error)
	}

	status, env := s.do(t, nethttp.MethodPut, path, token, map[string]any{"status": "pending", "userId": nil})
	if status != nethttp.StatusOK {
		t.Fatalf("return to queue: %d %+v", status, env.Error)
	}
	back := decodeTicket(t, env.Data)
	if back.Status != domain.TicketStatusPending || back.UserID != nil {
		t.Fatalf("expected unassigned pending ticket, got %+v", back)
	}
	if back.QueueID == nil || *back.QueueID != s.sales.ID {
		t.Fatalf("expected queue to be kept, got %v", back.QueueID)
	}

	status, env = s.do(t, nethttp.MethodPut, path, token, map[string]any{"status": "closed"})
	if status != nethttp.StatusBadRequest || env.Error == nil || env.Error.Code != "ERR_INVALID_TRANSITION" {
		t.Fatalf("expected invalid transition, got %d %+v", status, env.Error)
	}
}

func TestDeleteTicketRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	agentToken := s.login(t, "agent@example.com", "agent-pass")
	adminToken := s.login(t, "admin@example.com", "admin-pass")
	s.inject(t, "IN-1", "5511999990002", "hi")

	ticket, err := s.repos.Tickets.FindActive(context.Background(), mustContactID(t, s, "5511999990002"), s.wa.ID)
	if err != nil {
		t.Fatalf("find ticket: %v", err)
	}
	path := fmt.Sprintf("/tickets/%d", ticket.ID)

	if status, _ := s.do(t, nethttp.MethodDelete, path, agentToken, nil); status != nethttp.StatusForbidden {
		t.Fatalf("expected 403 for agent, got %d", status)
	}
	if status, env := s.do(t, nethttp.MethodDelete, path, adminToken, nil); status != nethttp.StatusOK {
		t.Fatalf("admin delete: %d %+v", status, env.Error)
	}
	if status, _ := s.do(t, nethttp.MethodGet, path, adminToken, nil); status != nethttp.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestSessionRoutesRequireConnectionPermission(t *testing.T) {
	s := newTestServer(t)
	agentToken := s.login(t, "agent@example.com", "agent-pass")
	adminToken := s.login(t, "admin@example.com", "admin-pass")
	path := fmt.Sprintf("/whatsappsession/%d", s.wa.ID)

	if status, _ := s.do(t, nethttp.MethodPost, path, agentToken, nil); status != nethttp.StatusForbidden {
		t.Fatalf("expected 403 for agent, got %d", status)
	}
	if status, env := s.do(t, nethttp.MethodDelete, path, adminToken, nil); status != nethttp.StatusOK {
		t.Fatalf("logout: %d %+v", status, env.Error)
	}
	wa, err := s.repos.Whatsapps.GetByID(context.Background(), s.wa.ID)
	if err != nil {
		t.Fatalf("reload whatsapp: %v", err)
	}
	if wa.Status != domain.ConnectionDisconnected {
		t.Fatalf("expected DISCONNECTED after logout, got %s", wa.Status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, nethttp.MethodGet, "/health/live", "", nil); status != nethttp.StatusOK {
		t.Fatalf("live: %d", status)
	}
	if status, _ := s.do(t, nethttp.MethodGet, "/health/ready", "", nil); status != nethttp.StatusOK {
		t.Fatalf("ready without checks should pass, got %d", status)
	}
	status, env := s.do(t, nethttp.MethodGet, "/health/metrics", "", nil)
	if status != nethttp.StatusOK {
		t.Fatalf("metrics: %d", status)
	}
	var snapshot observability.Snapshot
	if err := json.Unmarshal(env.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot.Requests) == 0 {
		t.Fatalf("expected earlier probes to be counted")
	}
}

func mustContactID(t *testing.T, s *testServer, number string) int64 {
	t.Helper()
	contact, err := s.repos.Contacts.GetByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("contact %s: %v", number, err)
	}
	return contact.ID
}
