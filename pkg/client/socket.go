package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	socketWriteWait = 10 * time.Second
	minBackoff      = 500 * time.Millisecond
	maxBackoff      = 30 * time.Second
)

// ErrSocketClosed is returned once Disconnect has been called.
var ErrSocketClosed = errors.New("socket closed")

type clientFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// FrameHandler receives frames for one event name. Handlers run on the
// socket's read goroutine in delivery order and must not block. A handler
// may call Disconnect; that call does not wait for the read goroutine.
type FrameHandler func(Frame)

type handlerEntry struct {
	id uint64
	fn FrameHandler
}

// Socket is the long-lived event subscription connection of a session.
// One Socket is shared by every view: topic subscriptions are reference
// counted and restored after each reconnect.
type Socket struct {
	url     string
	dialer  *websocket.Dialer
	logger  *zap.Logger
	minWait time.Duration
	maxWait time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	topics    map[string]int
	handlers  map[EventName][]handlerEntry
	onConnect []func()
	nextID    uint64
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool

	writeMu sync.Mutex
	// inCallback is non-zero while the read goroutine runs user callbacks.
	inCallback atomic.Int32
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithSocketLogger sets the logger.
func WithSocketLogger(logger *zap.Logger) SocketOption {
	return func(s *Socket) { s.logger = logger }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(initial, limit time.Duration) SocketOption {
	return func(s *Socket) {
		if initial > 0 {
			s.minWait = initial
		}
		if limit >= s.minWait {
			s.maxWait = limit
		}
	}
}

// NewSocket builds a disconnected socket for url, usually Client.SocketURL.
func NewSocket(url string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:      url,
		dialer:   websocket.DefaultDialer,
		logger:   zap.NewNop(),
		minWait:  minBackoff,
		maxWait:  maxBackoff,
		topics:   make(map[string]int),
		handlers: make(map[EventName][]handlerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the server and keeps the connection alive until
// Disconnect. The first dial is synchronous so bad credentials surface
// immediately; later drops are retried with exponential backoff.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSocketClosed
	}
	if s.done != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrSocketClosed
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx, conn)
	return nil
}

// Disconnect closes the connection and stops reconnecting. It waits for
// the read goroutine to exit unless called from one of its callbacks.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done, conn := s.cancel, s.done, s.conn
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(socketWriteWait))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if done != nil && s.inCallback.Load() == 0 {
		<-done
	}
	return nil
}

// Connected reports whether a connection is currently up.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Subscribe joins topic and returns the matching release func. The topic
// is only left on the server when its last subscriber releases it.
func (s *Socket) Subscribe(topic string) (release func()) {
	s.mu.Lock()
	s.topics[topic]++
	first := s.topics[topic] == 1
	conn := s.conn
	s.mu.Unlock()

	if first && conn != nil {
		s.send(conn, clientFrame{Type: "subscribe", Topic: topic})
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(topic) })
	}
}

func (s *Socket) unsubscribe(topic string) {
	s.mu.Lock()
	n := s.topics[topic]
	if n == 0 {
		s.mu.Unlock()
		return
	}
	last := n == 1
	if last {
		delete(s.topics, topic)
	} else {
		s.topics[topic] = n - 1
	}
	conn := s.conn
	s.mu.Unlock()

	if last && conn != nil {
		s.send(conn, clientFrame{Type: "unsubscribe", Topic: topic})
	}
}

// Topics returns the topics with at least one subscriber.
func (s *Socket) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// On registers a handler for an event name and returns its removal func.
func (s *Socket) On(name EventName, fn FrameHandler) (off func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[name] = append(s.handlers[name], handlerEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.handlers[name]
		for i, e := range entries {
			if e.id == id {
				s.handlers[name] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnConnect registers a callback run after every successful (re)connect,
// once subscriptions are restored. Views use it to refetch what they may
// have missed while disconnected.
func (s *Socket) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Code: "SOCKET_REJECTED", Message: err.Error()}
		}
		return nil, fmt.Errorf("dial socket: %w", err)
	}
	return conn, nil
}

// attach installs conn and replays every live subscription on it. It
// reports false once the socket has been disconnected.
func (s *Socket) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	callbacks := append([]func(){}, s.onConnect...)
	s.mu.Unlock()

	for _, t := range topics {
		s.replay(conn, t)
	}
	s.inCallback.Add(1)
	defer s.inCallback.Add(-1)
	for _, fn := range callbacks {
		fn()
	}
	return true
}

// replay resubscribes topic on conn if it is still referenced. The check
// and the write share writeMu, so a concurrent last release can only
// send its unsubscribe after this subscribe.
func (s *Socket) replay(conn *websocket.Conn, topic string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	live := s.topics[topic] > 0 && s.conn == conn
	s.mu.Unlock()
	if live {
		s.write(conn, clientFrame{Type: "subscribe", Topic: topic})
	}
}

func (s *Socket) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Socket) run(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		if !s.attach(conn) {
			_ = conn.Close()
			return
		}
		err := s.readLoop(conn)
		s.detach(conn)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("socket dropped; reconnecting", zap.Error(err))

		if conn, err = s.reconnect(ctx); err != nil {
			return
		}
		s.logger.Info("socket reconnected")
	}
}

func (s *Socket) reconnect(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(s.maxWait, retry.WithJitterPercent(10, retry.NewExponential(s.minWait)))
	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := s.dial(ctx)
		if err != nil {
			s.logger.Debug("socket reconnect attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		s.deliver(frame)
	}
}

func (s *Socket) deliver(frame Frame) {
	s.mu.Lock()
	entries := append([]handlerEntry(nil), s.handlers[frame.Event]...)
	s.mu.Unlock()
	s.inCallback.Add(1)
	defer s.inCallback.Add(-1)
	for _, e := range entries {
		e.fn(frame)
	}
}

func (s *Socket) send(conn *websocket.Conn, frame clientFrame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.write(conn, frame)
}

// write sends one frame; the caller holds writeMu.
func (s *Socket) write(conn *websocket.Conn, frame clientFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		s.logger.Debug("socket write failed", zap.String("type", frame.Type), zap.Error(err))
	}
}
