// Package sweeper moves lapsed reservations to their terminal expired
// state. Expiry is also evaluated lazily on read; the sweep only keeps the
// stored status from drifting behind reality indefinitely.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

const defaultBatchSize = 200

// Expirer is the slice of the registry service the sweeper drives.
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type Sweeper struct {
	expirer   Expirer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func New(expirer Expirer, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		expirer:   expirer,
		interval:  interval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until ctx is cancelled. Sweep
// failures are logged and the loop keeps going; a transient store outage
// must not kill the worker.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	// Drain in batches in case a long outage left a large backlog.
	for {
		expired, err := s.expirer.ExpireOverdue(ctx, s.batchSize)
		if err != nil {
			s.logger.ErrorContext(ctx, "reservation sweep failed", "error", err)
			return
		}
		if expired > 0 {
			s.logger.InfoContext(ctx, "expired overdue reservations", "count", expired)
		}
		if expired < s.batchSize {
			return
		}
	}
}
