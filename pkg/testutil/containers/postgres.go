//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema is the registry DDL applied to every fresh container. Kept in one
// place so integration tests and local development agree on the shape.
const schema = `
CREATE TABLE IF NOT EXISTS sequence_counters (
    prefix        TEXT   NOT NULL,
    tenant_code   TEXT   NOT NULL,
    stage         INT    NOT NULL,
    year          INT    NOT NULL,
    last_issued   BIGINT NOT NULL DEFAULT 0,
    version_token BIGINT NOT NULL DEFAULT 1,
    PRIMARY KEY (prefix, tenant_code, stage, year)
);

CREATE TABLE IF NOT EXISTS registry_records (
    id                    UUID PRIMARY KEY,
    code                  TEXT NOT NULL UNIQUE,
    base_code             TEXT NOT NULL,
    entity_type           TEXT NOT NULL,
    entity_id             UUID,
    prefix                TEXT NOT NULL,
    tenant_code           TEXT NOT NULL,
    stage                 INT NOT NULL,
    year                  INT NOT NULL,
    sequence              BIGINT NOT NULL,
    version               INT NOT NULL,
    status                TEXT NOT NULL,
    status_reason         TEXT,
    previous_version_code TEXT,
    metadata              JSONB,
    created_at            TIMESTAMPTZ NOT NULL,
    created_by            TEXT NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL,
    updated_by            TEXT,
    concurrency_token     BIGINT NOT NULL DEFAULT 1,
    UNIQUE (prefix, tenant_code, stage, year, sequence, version)
);

CREATE INDEX IF NOT EXISTS idx_registry_records_base_code
    ON registry_records (base_code);
CREATE INDEX IF NOT EXISTS idx_registry_records_entity
    ON registry_records (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS code_reservations (
    id                UUID PRIMARY KEY,
    reserved_code     TEXT NOT NULL,
    prefix            TEXT NOT NULL,
    tenant_code       TEXT NOT NULL,
    stage             INT NOT NULL,
    year              INT NOT NULL,
    sequence          BIGINT NOT NULL,
    entity_type       TEXT NOT NULL,
    status            TEXT NOT NULL,
    expires_at        TIMESTAMPTZ NOT NULL,
    confirmed_at      TIMESTAMPTZ,
    voided_at         TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL,
    created_by        TEXT NOT NULL,
    concurrency_token BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_code_reservations_overdue
    ON code_reservations (expires_at) WHERE status = 'reserved';

CREATE TABLE IF NOT EXISTS audit_entries (
    id                UUID PRIMARY KEY,
    action            TEXT NOT NULL,
    actor_user_id     TEXT NOT NULL,
    actor_tenant_code TEXT NOT NULL,
    ip_address        TEXT,
    timestamp         TIMESTAMPTZ NOT NULL,
    related_base_code TEXT,
    details           JSONB
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_base_code
    ON audit_entries (related_base_code);
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// registry schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	DSN       string
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("serialregistry"),
		tcpostgres.WithUsername("registry"),
		tcpostgres.WithPassword("registry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}
}

// TruncateTables empties the given tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", strings.Join(tables, ", ")))
	return err
}

// Exec runs an arbitrary statement against the container database.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}
