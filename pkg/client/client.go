package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/api/dto"
)

const defaultTimeout = 15 * time.Second

// Client talks to the helpdesk REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing access token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SocketURL is the websocket endpoint carrying the access token.
func (c *Client) SocketURL() string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"
	q := url.Values{}
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String()
}

// LoginResult is the signed-in agent with its token.
type LoginResult struct {
	User dto.LoginUser    `json:"user"`
	Auth dto.AuthResponse `json:"auth"`
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, dto.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = out.Auth.Token
	c.mu.Unlock()
	return &out, nil
}

// TicketQuery selects a page of the ticket board.
type TicketQuery struct {
	Status             TicketStatus
	SearchParam        string
	QueueIDs           []int64
	ShowAll            bool
	Date               string
	WithUnreadMessages bool
	PageNumber         int
}

func (q TicketQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.SearchParam != "" {
		v.Set("searchParam", q.SearchParam)
	}
	if len(q.QueueIDs) > 0 {
		ids := make([]string, 0, len(q.QueueIDs))
		for _, id := range q.QueueIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		v.Set("queueIds", strings.Join(ids, ","))
	}
	if q.ShowAll {
		v.Set("showAll", "true")
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.WithUnreadMessages {
		v.Set("withUnreadMessages", "true")
	}
	if q.PageNumber > 0 {
		v.Set("pageNumber", strconv.Itoa(q.PageNumber))
	}
	return v
}

// ListTickets fetches one page of the board.
func (c *Client) ListTickets(ctx context.Context, q TicketQuery) (*dto.TicketListResponse, error) {
	var out dto.TicketListResponse
	if err := c.do(ctx, http.MethodGet, "/tickets", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShowTicket fetches one ticket.
func (c *Client) ShowTicket(ctx context.Context, ticketID int64) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodGet, ticketPath(ticketID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTicket opens a ticket for a contact.
func (c *Client) CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TicketUpdate is a state machine request. Unset optional fields are left
// out of the payload; Null clears a field explicitly.
type TicketUpdate struct {
	Status     *TicketStatus
	UserID     OptionalID
	QueueID    OptionalID
	WhatsappID *int64
}

func (u TicketUpdate) body() map[string]any {
	body := map[string]any{}
	if u.Status != nil {
		body["status"] = *u.Status
	}
	if u.UserID.Set {
		body["userId"] = u.UserID
	}
	if u.QueueID.Set {
		body["queueId"] = u.QueueID
	}
	if u.WhatsappID != nil {
		body["whatsappId"] = *u.WhatsappID
	}
	return body
}

// UpdateTicket applies one transition.
func (c *Client) UpdateTicket(ctx context.Context, ticketID int64, update TicketUpdate) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPut, ticketPath(ticketID), nil, update.body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTicket removes a ticket.
func (c *Client) DeleteTicket(ctx context.Context, ticketID int64) error {
	return c.do(ctx, http.MethodDelete, ticketPath(ticketID), nil, nil, nil)
}

// ListMessages fetches one page of a conversation.
func (c *Client) ListMessages(ctx context.Context, ticketID int64, pageNumber int) (*dto.MessageListResponse, error) {
	q := url.Values{}
	if pageNumber > 0 {
		q.Set("pageNumber", strconv.Itoa(pageNumber))
	}
	var out dto.MessageListResponse
	if err := c.do(ctx, http.MethodGet, messagesPath(ticketID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage replies on a ticket, optionally quoting a message.
func (c *Client) SendMessage(ctx context.Context, ticketID int64, body, quotedMsgID string) (*Message, error) {
	var out Message
	req := dto.SendMessageRequest{Body: body, QuotedMsgID: quotedMsgID}
	if err := c.do(ctx, http.MethodPost, messagesPath(ticketID), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage revokes a sent message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func ticketPath(id int64) string   { return "/tickets/" + strconv.FormatInt(id, 10) }
func messagesPath(id int64) string { return "/messages/" + strconv.FormatInt(id, 10) }

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
