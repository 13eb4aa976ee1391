package counter

import (
	"context"
	"sync"

	"serialregistry/internal/registry/code"
	"serialregistry/pkg/platform/sentinel"
)

type row struct {
	lastIssued   uint64
	versionToken uint64
}

// InMemory keeps sequence counters in process memory, guarded by the same
// compare-and-swap contract the durable stores honor. Used by unit tests
// and single-node development runs.
type InMemory struct {
	mu   sync.Mutex
	rows map[string]*row
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string]*row)}
}

// Get returns the last issued sequence and the current version token for a
// scope. Returns sentinel.ErrNotFound before the scope's first allocation.
func (s *InMemory) Get(_ context.Context, scope code.Scope) (lastIssued, versionToken uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[scope.Key()]
	if !ok {
		return 0, 0, sentinel.ErrNotFound
	}
	return r.lastIssued, r.versionToken, nil
}

// CreateIfAbsent inserts the zero counter for a scope. Losing a creation
// race is not an error; the caller re-reads either way.
func (s *InMemory) CreateIfAbsent(_ context.Context, scope code.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[scope.Key()]; !ok {
		s.rows[scope.Key()] = &row{}
	}
	return nil
}

// CompareAndSwap advances the counter to newLast iff the version token is
// unchanged since the caller's read. Returns sentinel.ErrConflict when
// another caller won the race.
func (s *InMemory) CompareAndSwap(_ context.Context, scope code.Scope, expectToken, newLast uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[scope.Key()]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.versionToken != expectToken {
		return sentinel.ErrConflict
	}
	r.lastIssued = newLast
	r.versionToken++
	return nil
}
