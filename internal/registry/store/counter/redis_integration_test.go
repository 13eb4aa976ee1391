//go:build integration

package counter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/store/counter"
	"serialregistry/pkg/testutil/containers"
)

type RedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *counter.Redis
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = counter.NewRedis(s.redis.Client)
}

func (s *RedisSuite) SetupTest() {
	err := s.redis.FlushAll(context.Background())
	s.Require().NoError(err)
}

func (s *RedisSuite) TestIncrementStartsAtOne() {
	ctx := context.Background()
	scope := code.Scope{Prefix: "RISK", TenantCode: "ACME1", Stage: 2, Year: 2026}

	next, err := s.store.Increment(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)

	next, err = s.store.Increment(ctx, scope)
	s.Require().NoError(err)
	s.Equal(uint64(2), next)
}

func (s *RedisSuite) TestIncrementScopesAreIndependent() {
	ctx := context.Background()
	a := code.Scope{Prefix: "RISK", TenantCode: "ACME1", Stage: 2, Year: 2026}
	b := code.Scope{Prefix: "RISK", TenantCode: "ACME1", Stage: 2, Year: 2027}

	_, err := s.store.Increment(ctx, a)
	s.Require().NoError(err)

	next, err := s.store.Increment(ctx, b)
	s.Require().NoError(err)
	s.Equal(uint64(1), next)
}

func (s *RedisSuite) TestConcurrentIncrementHandsOutUniqueSequences() {
	ctx := context.Background()
	scope := code.Scope{Prefix: "CTRL", TenantCode: "ACME1", Stage: 3, Year: 2026}
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
