//go:build integration

package counter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/store/counter"
	"serialregistry/pkg/platform/sentinel"
	"serialregistry/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *counter.Postgres
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = counter.NewPostgres(s.postgres.DB)
}

func (s *PostgresSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "sequence_counters")
	s.Require().NoError(err)
}

func testScope() code.Scope {
	// Random tenant keeps scopes independent even if truncation is skipped.
	return code.Scope{Prefix: "RISK", TenantCode: "T" + uuid.NewString()[:5], Stage: 2, Year: 2026}
}

func (s *PostgresSuite) TestIncrementStartsAtOne() {
	ctx := context.Background()
	scope := testScope()

	next, err := s.store.Increment(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)

	next, err = s.store.Increment(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(2), next)
}

func (s *PostgresSuite) TestIncrementScopesAreIndependent() {
	ctx := context.Background()
	a := testScope()
	b := a
	b.Stage = 4

	_, err := s.store.Increment(ctx, a)
	s.Require().NoError(err)

	next, err := s.store.Increment(ctx, b)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)
}

// TestConcurrentIncrementHandsOutUniqueSequences drives many goroutines
// through the upsert path and checks that no sequence is issued twice.
func (s *PostgresSuite) TestConcurrentIncrementHandsOutUniqueSequences() {
	ctx := context.Background()
	scope := testScope()
	const goroutines = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	issued := make(map[uint64]int, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := s.store.Increment(ctx, scope)
			if err != nil {
				return
			}
			mu.Lock()
			issued[next]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(issued, goroutines)
	for seq, count := range issued {
		s.Equalf(1, count, "sequence %d issued %d times", seq, count)
	}
}

func (s *PostgresSuite) TestGetUnknownScope() {
	_, _, err := s.store.Get(context.Background(), testScope())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresSuite) TestCompareAndSwapProtocol() {
	ctx := context.Background()
	scope := testScope()

	s.Require().NoError(s.store.CreateIfAbsent(ctx, scope))
	// A second create is a no-op.
	s.Require().NoError(s.store.CreateIfAbsent(ctx, scope))

	last, token, err := s.store.Get(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(0), last)

	s.Require().NoError(s.store.CompareAndSwap(ctx, scope, token, last+1))

	last, newToken, err := s.store.Get(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(1), last)
	s.Equal(token+1, newToken)

	// The stale token loses.
	err = s.store.CompareAndSwap(ctx, scope, token, 2)
	s.ErrorIs(err, sentinel.ErrConflict)
}
