package counter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"serialregistry/internal/registry/code"
)

// Redis advances sequence counters with INCR, which serializes contending
// allocators on the Redis server. It implements only the Increment path;
// the compare-and-swap protocol is unnecessary when the store itself is
// atomic.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Increment(ctx context.Context, scope code.Scope) (uint64, error) {
	next, err := s.client.Incr(ctx, "seq:"+scope.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return uint64(next), nil
}
