package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	"serialregistry/pkg/platform/sentinel"
)

// InMemory keeps reservations in process memory with the same conditional
// write contract as the Postgres store.
type InMemory struct {
	mu   sync.RWMutex
	byID map[domain.ReservationID]*models.Reservation
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[domain.ReservationID]*models.Reservation)}
}

func (s *InMemory) Create(_ context.Context, res *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[res.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *res
	cp.ConcurrencyToken = 1
	s.byID[res.ID] = &cp
	res.ConcurrencyToken = 1
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ReservationID) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

// UpdateStatus persists a reservation transition conditionally on the
// concurrency token. A stale token returns sentinel.ErrConflict.
func (s *InMemory) UpdateStatus(_ context.Context, res *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[res.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.ConcurrencyToken != res.ConcurrencyToken {
		return sentinel.ErrConflict
	}
	cp := *res
	cp.ConcurrencyToken = existing.ConcurrencyToken + 1
	s.byID[res.ID] = &cp
	res.ConcurrencyToken = cp.ConcurrencyToken
	return nil
}

// ListOverdue returns reservations still marked reserved whose deadline has
// passed, oldest deadline first.
func (s *InMemory) ListOverdue(_ context.Context, asOf time.Time, limit int) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Reservation
	for _, res := range s.byID {
		if res.Status == models.ReservationStatusReserved && !asOf.Before(res.ExpiresAt) {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
