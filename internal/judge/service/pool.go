package service

import (
	"context"
	"sync"
)

func (s *Service) acquireSlot(ctx context.Context) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	s.metrics.IncInflight()
	return nil
}

func (s *Service) releaseSlot() {
	s.metrics.DecInflight()
	s.slots.Release(1)
}

// lockTable grants at most one holder per key and never queues.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

// TryLock returns an unlock func, or false if key is already held.
func (t *lockTable) TryLock(key string) (func(), bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.held[key]; busy {
		return nil, false
	}
	t.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.held, key)
			t.mu.Unlock()
		})
	}, true
}

// Held reports whether key is locked.
func (t *lockTable) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[key]
	return ok
}
