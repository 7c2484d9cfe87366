package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	eventCount    map[string]int64
	deliveryCount int64
	evictionCount int64
	latencyTotal  map[string]time.Duration
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		eventCount:   make(map[string]int64),
		latencyTotal: make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordEvent counts a published bus event by "<entity>.<action>".
func (m *Metrics) RecordEvent(name, action string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCount[name+"."+action]++
}

// RecordDelivery counts frames handed to websocket sessions.
func (m *Metrics) RecordDelivery(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryCount += int64(n)
}

// RecordEviction counts sessions dropped for overflowing their buffer.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictionCount++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests   map[string]int64 `json:"requests"`
	Errors     map[string]int64 `json:"errors"`
	Events     map[string]int64 `json:"events"`
	AvgLatency map[string]int64 `json:"avgLatencyMs"`
	Deliveries int64            `json:"deliveries"`
	Evictions  int64            `json:"evictions"`
	Keys       []string         `json:"-"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Requests:   copyCounts(m.requestCount),
		Errors:     copyCounts(m.errorCount),
		Events:     copyCounts(m.eventCount),
		AvgLatency: make(map[string]int64, len(m.latencyTotal)),
		Deliveries: m.deliveryCount,
		Evictions:  m.evictionCount,
	}
	for key, total := range m.latencyTotal {
		if n := m.requestCount[key]; n > 0 {
			s.AvgLatency[key] = (total / time.Duration(n)).Milliseconds()
		}
		s.Keys = append(s.Keys, key)
	}
	sort.Strings(s.Keys)
	return s
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
