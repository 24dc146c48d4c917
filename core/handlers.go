package core

import (
	"sync"
	"sync/atomic"
)

// handlerSet is an append-only, copy-on-write list of handlers and middleware.
// Readers take a lock-free snapshot; writers serialize on mu.
type handlerSet struct {
	mu   sync.Mutex
	snap atomic.Pointer[chain]
}

type chain struct {
	handlers    []Handler
	middlewares []Middleware
}

func (s *handlerSet) add(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	next := &chain{
		handlers:    append(cur.handlers[:len(cur.handlers):len(cur.handlers)], h),
		middlewares: cur.middlewares,
	}
	s.snap.Store(next)
}

func (s *handlerSet) use(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	next := &chain{
		handlers:    cur.handlers,
		middlewares: append(cur.middlewares[:len(cur.middlewares):len(cur.middlewares)], m),
	}
	s.snap.Store(next)
}

// snapshot returns the current chain. The returned slices are never mutated.
func (s *handlerSet) snapshot() *chain {
	return s.load()
}

func (s *handlerSet) load() *chain {
	if c := s.snap.Load(); c != nil {
		return c
	}
	return &chain{}
}
