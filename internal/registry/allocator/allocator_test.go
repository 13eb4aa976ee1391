package allocator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/store/counter"
	derrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
)

type AllocatorSuite struct {
	suite.Suite
	scope code.Scope
}

func TestAllocatorSuite(t *testing.T) {
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) SetupTest() {
	s.scope = code.Scope{Prefix: "RISK", TenantCode: "ACME1", Stage: 2, Year: 2026}
}

func (s *AllocatorSuite) newAllocator(store Store) *Allocator {
	codec, err := code.NewCodec(code.DefaultSequenceWidth)
	s.Require().NoError(err)
	return New(store, codec)
}

func (s *AllocatorSuite) TestFirstAllocationIsOne() {
	a := s.newAllocator(counter.NewInMemory())

	next, err := a.Next(context.Background(), s.scope)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)
}

func (s *AllocatorSuite) TestSequentialAllocationsAreMonotonic() {
	a := s.newAllocator(counter.NewInMemory())

	for want := uint64(1); want <= 10; want++ {
		next, err := a.Next(context.Background(), s.scope)
		s.Require().NoError(err)
		s.Equal(want, next)
	}
}

func (s *AllocatorSuite) TestScopesAreIndependent() {
	a := s.newAllocator(counter.NewInMemory())

	_, err := a.Next(context.Background(), s.scope)
	s.Require().NoError(err)
	_, err = a.Next(context.Background(), s.scope)
	s.Require().NoError(err)

	other := s.scope
	other.Year = 2027
	next, err := a.Next(context.Background(), other)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)
}

func (s *AllocatorSuite) TestConcurrentAllocationsAreUnique() {
	a := s.newAllocator(counter.NewInMemory())

	const workers = 32
	results := make(chan uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := a.Next(context.Background(), s.scope)
			if err == nil {
				results <- next
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool)
	for next := range results {
		s.False(seen[next], "sequence %d issued twice", next)
		seen[next] = true
	}
	s.NotEmpty(seen)
}

func (s *AllocatorSuite) TestExhaustedRetriesReturnContention() {
	a := s.newAllocator(alwaysConflictStore{})

	_, err := a.Next(context.Background(), s.scope)
	s.Require().Error(err)
	s.True(derrors.HasCode(err, derrors.CodeContention))
}

func (s *AllocatorSuite) TestSequenceSpaceExhaustion() {
	store := counter.NewInMemory()
	codec, err := code.NewCodec(1)
	s.Require().NoError(err)
	a := New(store, codec)

	for i := 0; i < 9; i++ {
		_, err := a.Next(context.Background(), s.scope)
		s.Require().NoError(err)
	}

	_, err = a.Next(context.Background(), s.scope)
	s.Require().Error(err)
	s.True(derrors.HasCode(err, derrors.CodeInvariantViolation))
	// The exhaustion code must be outermost so transport layers report a
	// permanent failure, not a retryable outage.
	s.Equal(derrors.CodeInvariantViolation, derrors.CodeOf(err))
}

func (s *AllocatorSuite) TestStoreFailureFiledAsUnavailable() {
	a := s.newAllocator(brokenStore{})

	_, err := a.Next(context.Background(), s.scope)
	s.Require().Error(err)
	s.Equal(derrors.CodeUnavailable, derrors.CodeOf(err))
}

func (s *AllocatorSuite) TestIncrementerStoreBypassesSwapLoop() {
	a := s.newAllocator(&incrementOnlyStore{})

	next, err := a.Next(context.Background(), s.scope)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)

	next, err = a.Next(context.Background(), s.scope)
	s.Require().NoError(err)
	s.Equal(uint64(2), next)
}

type alwaysConflictStore struct{}

func (alwaysConflictStore) Get(context.Context, code.Scope) (uint64, uint64, error) {
	return 0, 0, nil
}

func (alwaysConflictStore) CreateIfAbsent(context.Context, code.Scope) error {
	return nil
}

func (alwaysConflictStore) CompareAndSwap(context.Context, code.Scope, uint64, uint64) error {
	return sentinel.ErrConflict
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, code.Scope) (uint64, uint64, error) {
	return 0, 0, errors.New("connection refused")
}

func (brokenStore) CreateIfAbsent(context.Context, code.Scope) error {
	return errors.New("connection refused")
}

func (brokenStore) CompareAndSwap(context.Context, code.Scope, uint64, uint64) error {
	return errors.New("connection refused")
}

type incrementOnlyStore struct {
	mu   sync.Mutex
	next map[string]uint64
}

func (s *incrementOnlyStore) Get(context.Context, code.Scope) (uint64, uint64, error) {
	return 0, 0, sentinel.ErrNotFound
}

func (s *incrementOnlyStore) CreateIfAbsent(context.Context, code.Scope) error {
	return nil
}

func (s *incrementOnlyStore) CompareAndSwap(context.Context, code.Scope, uint64, uint64) error {
	return sentinel.ErrConflict
}

func (s *incrementOnlyStore) Increment(_ context.Context, scope code.Scope) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		s.next = make(map[string]uint64)
	}
	s.next[scope.Key()]++
	return s.next[scope.Key()], nil
}
