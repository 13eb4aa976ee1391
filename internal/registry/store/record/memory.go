package record

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	"serialregistry/pkg/platform/sentinel"
)

// InMemory keeps registry records in process memory. It enforces the same
// uniqueness and conditional-write contracts as the Postgres store so the
// service layer can be tested against it directly.
type InMemory struct {
	mu      sync.RWMutex
	byCode  map[string]*models.RegistryRecord
	byScope map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		byCode:  make(map[string]*models.RegistryRecord),
		byScope: make(map[string]string),
	}
}

func scopeVersionKey(r *models.RegistryRecord) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d", r.Prefix, r.TenantCode, r.Stage, r.Year, r.Sequence, r.Version)
}

func (s *InMemory) Create(_ context.Context, rec *models.RegistryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(rec)
}

func (s *InMemory) createLocked(rec *models.RegistryRecord) error {
	if _, ok := s.byCode[rec.Code]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byScope[scopeVersionKey(rec)]; ok {
		return sentinel.ErrConflict
	}
	cp := clone(rec)
	cp.ConcurrencyToken = 1
	s.byCode[rec.Code] = cp
	s.byScope[scopeVersionKey(rec)] = rec.Code
	rec.ConcurrencyToken = 1
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, codeStr string) (*models.RegistryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byCode[codeStr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(rec), nil
}

// ListByBase returns every version sharing a base code, oldest version
// first. A base code with no rows is not an error; the caller decides.
func (s *InMemory) ListByBase(_ context.Context, baseCode string) ([]*models.RegistryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RegistryRecord
	for _, rec := range s.byCode {
		if rec.BaseCode == baseCode {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// FindLatestByEntity returns the highest-version record bound to an entity.
func (s *InMemory) FindLatestByEntity(_ context.Context, entityType string, entityID domain.EntityID) (*models.RegistryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.RegistryRecord
	for _, rec := range s.byCode {
		if rec.EntityType != entityType || rec.EntityID != entityID {
			continue
		}
		if latest == nil || rec.Version > latest.Version {
			latest = rec
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(latest), nil
}

// UpdateStatus persists a status transition. The write is conditional on
// the record's concurrency token; a stale token returns sentinel.ErrConflict.
func (s *InMemory) UpdateStatus(_ context.Context, rec *models.RegistryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStatusLocked(rec)
}

func (s *InMemory) updateStatusLocked(rec *models.RegistryRecord) error {
	existing, ok := s.byCode[rec.Code]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.ConcurrencyToken != rec.ConcurrencyToken {
		return sentinel.ErrConflict
	}
	cp := clone(rec)
	cp.ConcurrencyToken = existing.ConcurrencyToken + 1
	s.byCode[rec.Code] = cp
	rec.ConcurrencyToken = cp.ConcurrencyToken
	return nil
}

// CreateVersion supersedes the current record and inserts its successor as
// one atomic step, so no reader ever observes two active versions of a
// base code.
func (s *InMemory) CreateVersion(_ context.Context, superseded, next *models.RegistryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateStatusLocked(superseded); err != nil {
		return err
	}
	if err := s.createLocked(next); err != nil {
		// Roll the supersede back so the pair stays atomic.
		prev := s.byCode[superseded.Code]
		prev.Status = models.RecordStatusActive
		prev.StatusReason = ""
		return err
	}
	return nil
}

func (s *InMemory) Search(_ context.Context, criteria models.SearchCriteria) ([]*models.RegistryRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.RegistryRecord
	for _, rec := range s.byCode {
		if matches(rec, criteria) {
			matched = append(matched, clone(rec))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Code < matched[j].Code
	})

	total := len(matched)
	if criteria.Offset >= total {
		return nil, total, nil
	}
	matched = matched[criteria.Offset:]
	if len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
	}
	return matched, total, nil
}

func matches(rec *models.RegistryRecord, c models.SearchCriteria) bool {
	if c.Prefix != "" && rec.Prefix != c.Prefix {
		return false
	}
	if c.TenantCode != "" && !strings.EqualFold(rec.TenantCode, c.TenantCode) {
		return false
	}
	if c.Stage != 0 && rec.Stage != c.Stage {
		return false
	}
	if c.Year != 0 && rec.Year != c.Year {
		return false
	}
	if c.SequenceFrom != 0 && rec.Sequence < c.SequenceFrom {
		return false
	}
	if c.SequenceTo != 0 && rec.Sequence > c.SequenceTo {
		return false
	}
	if c.Status != "" && rec.Status != c.Status {
		return false
	}
	if c.EntityType != "" && rec.EntityType != c.EntityType {
		return false
	}
	if !c.CreatedAfter.IsZero() && rec.CreatedAt.Before(c.CreatedAfter) {
		return false
	}
	if !c.CreatedBefore.IsZero() && rec.CreatedAt.After(c.CreatedBefore) {
		return false
	}
	return true
}

func clone(rec *models.RegistryRecord) *models.RegistryRecord {
	cp := *rec
	if rec.Metadata != nil {
		cp.Metadata = maps.Clone(rec.Metadata)
	}
	return &cp
}
