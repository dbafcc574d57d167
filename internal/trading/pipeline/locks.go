package pipeline

import "sync"

// symbolLocks hands out one mutex per symbol and frees it when the last holder leaves
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*refMutex)}
}

// lock blocks until symbol is free and returns the matching unlock
func (s *symbolLocks) lock(symbol string) func() {
	s.mu.Lock()
	m, ok := s.locks[symbol]
	if !ok {
		m = &refMutex{}
		s.locks[symbol] = m
	}
	m.refs++
	s.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		s.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(s.locks, symbol)
		}
		s.mu.Unlock()
	}
}

func (s *symbolLocks) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
