package realtime

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	userLocalKey = "realtime_user_id"
	writeWait    = 10 * time.Second
)

// ClientFrame is what browsers send over the socket.
type ClientFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// UpgradeGate admits websocket upgrades from identified callers.
func UpgradeGate(identify func(*fiber.Ctx) (int64, bool)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, ok := identify(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		c.Locals(userLocalKey, userID)
		return c.Next()
	}
}

// Endpoint serves one websocket session per connection.
func (h *Hub) Endpoint(pingInterval time.Duration) fiber.Handler {
	if pingInterval <= 0 {
		pingInterval = 25 * time.Second
	}
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(userLocalKey).(int64)
		session := h.Register(userID)
		logger := h.logger.With(zap.String("session_id", session.ID), zap.Int64("user_id", userID))
		logger.Debug("realtime session opened")

		writerDone := make(chan struct{})
		go h.writeLoop(conn, session, pingInterval, writerDone)

		conn.SetReadDeadline(time.Now().Add(2 * pingInterval)) //nolint:errcheck
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		})

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var frame ClientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				logger.Debug("ignoring malformed client frame", zap.Error(err))
				continue
			}
			switch frame.Type {
			case "subscribe":
				h.Join(session, frame.Topic)
			case "unsubscribe":
				h.Leave(session, frame.Topic)
			}
		}

		h.Unregister(session)
		<-writerDone
		logger.Debug("realtime session closed")
	})
}

func (h *Hub) writeLoop(conn *websocket.Conn, session *Session, pingInterval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-session.Out():
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.Unregister(session)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.Unregister(session)
				_ = conn.Close()
				return
			}
		case <-session.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session closed"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}
	}
}
