package client

import (
	"context"
	"sync"
	"time"
)

// DefaultSearchDelay is how long input must settle before a query runs.
const DefaultSearchDelay = 500 * time.Millisecond

// SearchFunc runs one query. It must honour ctx cancellation.
type SearchFunc[T any] func(ctx context.Context, query string) (T, error)

// Searcher debounces search input and makes sure only the newest query's
// result is delivered: a query superseded by newer input is cancelled and
// its result dropped.
type Searcher[T any] struct {
	delay    time.Duration
	search   SearchFunc[T]
	onResult func(query string, result T, err error)

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	seq    uint64
	closed bool
}

// NewSearcher builds a searcher. delay <= 0 uses DefaultSearchDelay.
func NewSearcher[T any](delay time.Duration, search SearchFunc[T], onResult func(query string, result T, err error)) *Searcher[T] {
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	return &Searcher[T]{delay: delay, search: search, onResult: onResult}
}

// Input records new search text and restarts the debounce window.
func (s *Searcher[T]) Input(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.supersedeLocked()
	seq := s.seq
	s.timer = time.AfterFunc(s.delay, func() { s.run(seq, query) })
}

// Close cancels pending and in-flight queries.
func (s *Searcher[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.supersedeLocked()
}

func (s *Searcher[T]) supersedeLocked() {
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Searcher[T]) run(seq uint64, query string) {
	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	result, err := s.search(ctx, query)

	s.mu.Lock()
	current := seq == s.seq && !s.closed
	if current {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	if current && s.onResult != nil {
		s.onResult(query, result, err)
	}
}
