// Package allocator hands out sequence numbers. Each number within an
// allocation scope is issued exactly once: once an allocator returns a
// sequence, no later call ever returns it again, even if the code built
// from it is voided or the reservation holding it expires.
package allocator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"serialregistry/internal/registry/code"
	derrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
)

const (
	maxAttempts = 5
	baseBackoff = 10 * time.Millisecond
)

// Store is the durable counter the allocator advances. Implementations
// provide optimistic reads with a version token and a conditional swap
// that fails with sentinel.ErrConflict when the token has moved.
type Store interface {
	Get(ctx context.Context, scope code.Scope) (lastIssued, versionToken uint64, err error)
	CreateIfAbsent(ctx context.Context, scope code.Scope) error
	CompareAndSwap(ctx context.Context, scope code.Scope, expectToken, newLast uint64) error
}

// Incrementer is an optional upgrade for stores that can advance the
// counter atomically in one operation. When the store implements it the
// allocator skips the compare-and-swap loop entirely.
type Incrementer interface {
	Increment(ctx context.Context, scope code.Scope) (uint64, error)
}

type Allocator struct {
	store  Store
	codec  *code.Codec
	logger *slog.Logger
}

type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

func New(store Store, codec *code.Codec, opts ...Option) *Allocator {
	a := &Allocator{
		store:  store,
		codec:  codec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next allocates the next sequence number for a scope. Contending callers
// each receive a distinct number; after repeated conflicts the caller gets
// a contention error and may retry at its own pace.
func (a *Allocator) Next(ctx context.Context, scope code.Scope) (uint64, error) {
	if inc, ok := a.store.(Incrementer); ok {
		next, err := inc.Increment(ctx, scope)
		if err != nil {
			return 0, derrors.Wrap(err, derrors.CodeUnavailable, "sequence counter unavailable")
		}
		return a.checkExhaustion(scope, next)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		next, err := a.tryNext(ctx, scope)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			// Exhaustion already carries its domain code; only raw store
			// errors get filed as unavailable.
			var de *derrors.Error
			if errors.As(err, &de) {
				return 0, err
			}
			return 0, derrors.Wrap(err, derrors.CodeUnavailable, "sequence counter unavailable")
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * baseBackoff
		backoff += time.Duration(rand.Int63n(int64(baseBackoff)))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return 0, derrors.Wrap(ctx.Err(), derrors.CodeUnavailable, "allocation canceled")
		}
	}

	a.logger.WarnContext(ctx, "sequence allocation contention exhausted retries",
		"scope", scope.Key(), "attempts", maxAttempts)
	return 0, derrors.New(derrors.CodeContention, "sequence allocation contention, retry")
}

func (a *Allocator) tryNext(ctx context.Context, scope code.Scope) (uint64, error) {
	last, token, err := a.store.Get(ctx, scope)
	if errors.Is(err, sentinel.ErrNotFound) {
		if err := a.store.CreateIfAbsent(ctx, scope); err != nil {
			return 0, err
		}
		last, token, err = a.store.Get(ctx, scope)
		if err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	next := last + 1
	if _, err := a.checkExhaustion(scope, next); err != nil {
		return 0, err
	}
	if err := a.store.CompareAndSwap(ctx, scope, token, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (a *Allocator) checkExhaustion(scope code.Scope, next uint64) (uint64, error) {
	if next > a.codec.MaxSequence() {
		return 0, derrors.Newf(derrors.CodeInvariantViolation,
			"sequence space exhausted for scope %s", scope.Key())
	}
	return next, nil
}
