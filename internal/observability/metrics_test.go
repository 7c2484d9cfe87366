package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 30*time.Millisecond)
	m.RecordEvent("ticket", "update")
	m.RecordDelivery(3)
	m.RecordEviction()

	snap := m.Snapshot()
	if snap.Requests["/tickets|GET|200"] != 2 {
		t.Fatalf("unexpected request count: %v", snap.Requests)
	}
	if snap.AvgLatency["/tickets|GET|200"] != 20 {
		t.Fatalf("unexpected avg latency: %v", snap.AvgLatency)
	}
	if snap.Events["ticket.update"] != 1 || snap.Deliveries != 3 || snap.Evictions != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordEvent("ticket", "create")
	if snap := m.Snapshot(); snap.Requests != nil {
		t.Fatalf("expected empty snapshot")
	}
}
