// Package realtime fans bus events out to connected websocket sessions.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

const defaultBuffer = 256

// Session is one connected client. Frames are queued on a bounded buffer;
// a session that cannot keep up is closed and must reconnect.
type Session struct {
	ID     string
	UserID int64

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	topics    map[string]struct{}
}

// Out yields encoded frames in delivery order.
func (s *Session) Out() <-chan []byte { return s.out }

// Done is closed once the session has been removed from the hub.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks sessions and their topic memberships.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	topics   map[string]map[string]*Session

	// deliverMu keeps broadcasts from interleaving so every session sees
	// events in emission order.
	deliverMu sync.Mutex

	buffer  int
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub builds an empty hub.
func NewHub(buffer int, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		topics:   make(map[string]map[string]*Session),
		buffer:   buffer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Attach subscribes the hub to every event published on the dispatcher.
func (h *Hub) Attach(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.AllEvents, h.Broadcast)
}

// Register adds a session. Every session joins the global topic.
func (h *Hub) Register(userID int64) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		out:    make(chan []byte, h.buffer),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.joinLocked(s, events.TopicGlobal)
	h.mu.Unlock()
	return s
}

// Unregister removes the session and all its memberships.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	h.removeLocked(s)
	h.mu.Unlock()
}

// Join subscribes the session to topic. Joining twice is a no-op and
// reports false.
func (h *Hub) Join(s *Session, topic string) bool {
	if topic == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.sessions[s.ID]; !live {
		return false
	}
	return h.joinLocked(s, topic)
}

// Leave unsubscribes the session from topic.
func (h *Hub) Leave(s *Session, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := s.topics[topic]; !ok {
		return false
	}
	delete(s.topics, topic)
	if members := h.topics[topic]; members != nil {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	return true
}

// Topics lists the session's memberships.
func (h *Hub) Topics(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) joinLocked(s *Session, topic string) bool {
	if _, ok := s.topics[topic]; ok {
		return false
	}
	s.topics[topic] = struct{}{}
	members := h.topics[topic]
	if members == nil {
		members = make(map[string]*Session)
		h.topics[topic] = members
	}
	members[s.ID] = s
	return true
}

func (h *Hub) removeLocked(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	delete(h.sessions, s.ID)
	for topic := range s.topics {
		if members := h.topics[topic]; members != nil {
			delete(members, s.ID)
			if len(members) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	s.close()
}

// Broadcast delivers event once to every session subscribed to at least
// one of its topics.
func (h *Hub) Broadcast(_ context.Context, event events.Event) error {
	frame, err := json.Marshal(event.Frame())
	if err != nil {
		return err
	}

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.RLock()
	targets := make(map[string]*Session)
	for _, topic := range event.Topics {
		for id, s := range h.topics[topic] {
			targets[id] = s
		}
	}
	h.mu.RUnlock()

	var slow []*Session
	delivered := 0
	for _, s := range targets {
		select {
		case s.out <- frame:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.metrics.RecordDelivery(delivered)

	if len(slow) > 0 {
		h.mu.Lock()
		for _, s := range slow {
			h.logger.Warn("evicting slow realtime session",
				zap.String("session_id", s.ID),
				zap.Int64("user_id", s.UserID))
			h.removeLocked(s)
			h.metrics.RecordEviction()
		}
		h.mu.Unlock()
	}
	return nil
}
