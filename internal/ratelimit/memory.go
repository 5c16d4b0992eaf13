package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/clock"
)

type window struct {
	count int
	start time.Time
	size  time.Duration
}

// MemoryStore keeps windows in process memory. Counts are per replica.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{clock: clk, windows: map[string]*window{}}
}

func (s *MemoryStore) Hit(ctx context.Context, key string, size time.Duration) (int, time.Time, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= size {
		w = &window{start: now, size: size}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.start.Add(w.size), nil
}

// Sweep drops windows that started more than retention ago and returns how
// many were removed.
func (s *MemoryStore) Sweep(retention time.Duration) int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if now.Sub(w.start) > retention {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
