package reinforce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps last-signal timestamps in process memory
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

func (s *MemoryStore) Swap(ctx context.Context, symbol string, ts time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.last[symbol]
	s.last[symbol] = ts
	return prev, ok, nil
}

func (s *MemoryStore) Get(ctx context.Context, symbol string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.last[symbol]
	return ts, ok, nil
}

// Len returns the number of symbols seen
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
