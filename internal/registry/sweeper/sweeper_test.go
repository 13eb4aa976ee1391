package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	mu      sync.Mutex
	backlog int
	calls   int
	err     error
}

func (f *fakeExpirer) ExpireOverdue(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n := f.backlog
	if n > limit {
		n = limit
	}
	f.backlog -= n
	return n, nil
}

func (f *fakeExpirer) snapshot() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backlog, f.calls
}

func TestSweepDrainsBacklogInBatches(t *testing.T) {
	expirer := &fakeExpirer{backlog: 5}
	s := New(expirer, time.Hour, WithBatchSize(2))

	s.sweep(context.Background())

	backlog, calls := expirer.snapshot()
	assert.Equal(t, 0, backlog)
	// Two full batches, one partial.
	assert.Equal(t, 3, calls)
}

func TestSweepStopsOnError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("store down")}
	s := New(expirer, time.Hour)

	s.sweep(context.Background())

	_, calls := expirer.snapshot()
	assert.Equal(t, 1, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	expirer := &fakeExpirer{backlog: 1}
	s := New(expirer, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		backlog, _ := expirer.snapshot()
		return backlog == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
