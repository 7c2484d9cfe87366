package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

func mustTicketEvent(t *testing.T, id int64, topics ...string) events.Event {
	t.Helper()
	e, err := events.TicketEvent(events.ActionUpdate, &domain.Ticket{ID: id}, topics...)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	e.ID = "evt"
	return e
}

func drain(s *Session) []events.Frame {
	var frames []events.Frame
	for {
		select {
		case raw := <-s.Out():
			var f events.Frame
			_ = json.Unmarshal(raw, &f)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestBroadcastDeliversOncePerSessionAcrossTopics(t *testing.T) {
	hub := NewHub(8, nil, nil)
	s := hub.Register(7)
	hub.Join(s, "closed")
	hub.Join(s, events.TopicTicket(42))
	hub.Join(s, events.TopicNotification)

	e := mustTicketEvent(t, 42, "closed", events.TopicNotification, events.TopicTicket(42))
	if err := hub.Broadcast(context.Background(), e); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if frames := drain(s); len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
}

func TestDuplicateJoinDoesNotDuplicateDelivery(t *testing.T) {
	hub := NewHub(8, nil, nil)
	s := hub.Register(1)
	if !hub.Join(s, "open") {
		t.Fatal("first join should report a change")
	}
	if hub.Join(s, "open") {
		t.Fatal("second join should be a no-op")
	}
	_ = hub.Broadcast(context.Background(), mustTicketEvent(t, 1, "open"))
	if frames := drain(s); len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}

	hub.Leave(s, "open")
	_ = hub.Broadcast(context.Background(), mustTicketEvent(t, 1, "open"))
	if frames := drain(s); len(frames) != 0 {
		t.Fatalf("left topic should not deliver, got %d", len(frames))
	}
}

func TestBroadcastPreservesEmissionOrder(t *testing.T) {
	hub := NewHub(64, nil, nil)
	s := hub.Register(1)
	hub.Join(s, "pending")

	for i := int64(1); i <= 20; i++ {
		e := mustTicketEvent(t, i, "pending")
		e.ID = string(rune('a' + i))
		_ = hub.Broadcast(context.Background(), e)
	}
	frames := drain(s)
	if len(frames) != 20 {
		t.Fatalf("expected 20 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if want := string(rune('a' + int64(i+1))); f.ID != want {
			t.Fatalf("frame %d out of order: got %s want %s", i, f.ID, want)
		}
	}
}

func TestGlobalTopicIsAutoJoined(t *testing.T) {
	hub := NewHub(8, nil, nil)
	s := hub.Register(3)
	e, _ := events.NewEvent(events.EventQueue, events.ActionUpdate, map[string]any{"action": "update"}, events.TopicGlobal)
	_ = hub.Broadcast(context.Background(), e)
	if frames := drain(s); len(frames) != 1 || frames[0].Event != events.EventQueue {
		t.Fatalf("expected global queue frame, got %+v", frames)
	}
}

func TestSlowSessionIsEvicted(t *testing.T) {
	metrics := observability.NewMetrics()
	hub := NewHub(1, nil, metrics)
	slow := hub.Register(1)
	fast := hub.Register(2)
	hub.Join(slow, "open")
	hub.Join(fast, "open")

	_ = hub.Broadcast(context.Background(), mustTicketEvent(t, 1, "open"))
	drain(fast)
	_ = hub.Broadcast(context.Background(), mustTicketEvent(t, 2, "open"))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow session should have been closed")
	}
	if hub.SessionCount() != 1 {
		t.Fatalf("expected one live session, got %d", hub.SessionCount())
	}
	if metrics.Snapshot().Evictions != 1 {
		t.Fatal("eviction should be counted")
	}
	if hub.Join(slow, "closed") {
		t.Fatal("evicted sessions cannot join topics")
	}
}
