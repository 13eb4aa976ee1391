package memory

import (
	"context"
	"sort"
	"sync"

	"serialregistry/internal/audit"
)

// Store keeps audit entries in memory. Used by unit tests and single-node
// development runs; production uses the postgres store.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) ListByBaseCode(_ context.Context, baseCode string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.entries {
		if e.RelatedBaseCode == baseCode {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) Search(_ context.Context, criteria audit.SearchCriteria) ([]audit.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Entry
	for _, e := range s.entries {
		if criteria.Action != "" && e.Action != criteria.Action {
			continue
		}
		if criteria.ActorUserID != "" && e.ActorUserID != criteria.ActorUserID {
			continue
		}
		if criteria.ActorTenantCode != "" && e.ActorTenantCode != criteria.ActorTenantCode {
			continue
		}
		if criteria.RelatedBaseCode != "" && e.RelatedBaseCode != criteria.RelatedBaseCode {
			continue
		}
		if !criteria.After.IsZero() && e.Timestamp.Before(criteria.After) {
			continue
		}
		if !criteria.Before.IsZero() && e.Timestamp.After(criteria.Before) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })

	total := len(matched)
	if criteria.Offset >= total {
		return nil, total, nil
	}
	end := criteria.Offset + criteria.Limit
	if end > total {
		end = total
	}
	return matched[criteria.Offset:end], total, nil
}
