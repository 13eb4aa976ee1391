package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"serialregistry/internal/registry/code"
	"serialregistry/pkg/platform/sentinel"
)

// Postgres stores sequence counters in the sequence_counters table. Reads
// and compare-and-swap writes follow the optimistic token protocol; the
// table also backs the serialized Increment path used when callers prefer
// a single-statement advance.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, scope code.Scope) (lastIssued, versionToken uint64, err error) {
	const query = `
		SELECT last_issued, version_token
		FROM sequence_counters
		WHERE prefix = $1 AND tenant_code = $2 AND stage = $3 AND year = $4`

	err = s.db.QueryRowContext(ctx, query, scope.Prefix, scope.TenantCode, scope.Stage, scope.Year).
		Scan(&lastIssued, &versionToken)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get counter: %w", err)
	}
	return lastIssued, versionToken, nil
}

func (s *Postgres) CreateIfAbsent(ctx context.Context, scope code.Scope) error {
	const query = `
		INSERT INTO sequence_counters (prefix, tenant_code, stage, year, last_issued, version_token)
		VALUES ($1, $2, $3, $4, 0, 0)
		ON CONFLICT (prefix, tenant_code, stage, year) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, scope.Prefix, scope.TenantCode, scope.Stage, scope.Year); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	return nil
}

func (s *Postgres) CompareAndSwap(ctx context.Context, scope code.Scope, expectToken, newLast uint64) error {
	const query = `
		UPDATE sequence_counters
		SET last_issued = $5, version_token = version_token + 1
		WHERE prefix = $1 AND tenant_code = $2 AND stage = $3 AND year = $4
		  AND version_token = $6`

	res, err := s.db.ExecContext(ctx, query,
		scope.Prefix, scope.TenantCode, scope.Stage, scope.Year, newLast, expectToken)
	if err != nil {
		return fmt.Errorf("swap counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap counter: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// Increment advances the counter in a single upsert, serializing contending
// allocators on the row lock instead of retrying.
func (s *Postgres) Increment(ctx context.Context, scope code.Scope) (uint64, error) {
	const query = `
		INSERT INTO sequence_counters (prefix, tenant_code, stage, year, last_issued, version_token)
		VALUES ($1, $2, $3, $4, 1, 1)
		ON CONFLICT (prefix, tenant_code, stage, year)
		DO UPDATE SET last_issued = sequence_counters.last_issued + 1,
		              version_token = sequence_counters.version_token + 1
		RETURNING last_issued`

	var next uint64
	err := s.db.QueryRowContext(ctx, query, scope.Prefix, scope.TenantCode, scope.Stage, scope.Year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return next, nil
}
