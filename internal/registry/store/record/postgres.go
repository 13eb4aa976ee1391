package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	"serialregistry/pkg/platform/sentinel"
)

const recordColumns = `id, code, base_code, entity_type, entity_id,
		prefix, tenant_code, stage, year, sequence, version,
		status, status_reason, previous_version_code, metadata,
		created_at, created_by, updated_at, updated_by, concurrency_token`

// Postgres persists registry records in the registry_records table. Code
// uniqueness and scope-version uniqueness are enforced by database
// constraints; unique violations surface as sentinel.ErrConflict.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, rec *models.RegistryRecord) error {
	if err := s.insert(ctx, s.db, rec); err != nil {
		return err
	}
	rec.ConcurrencyToken = 1
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) insert(ctx context.Context, db execer, rec *models.RegistryRecord) error {
	const query = `
		INSERT INTO registry_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1)`

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = db.ExecContext(ctx, query,
		uuid.UUID(rec.ID), rec.Code, rec.BaseCode, rec.EntityType, nullUUID(uuid.UUID(rec.EntityID)),
		rec.Prefix, rec.TenantCode, rec.Stage, rec.Year, rec.Sequence, rec.Version,
		rec.Status, nullString(rec.StatusReason), nullString(rec.PreviousVersionCode), metadata,
		rec.CreatedAt, rec.CreatedBy, rec.UpdatedAt, nullString(rec.UpdatedBy))
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Postgres) FindByCode(ctx context.Context, codeStr string) (*models.RegistryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM registry_records WHERE code = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, codeStr))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record by code: %w", err)
	}
	return rec, nil
}

func (s *Postgres) ListByBase(ctx context.Context, baseCode string) ([]*models.RegistryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM registry_records WHERE base_code = $1 ORDER BY version ASC`

	rows, err := s.db.QueryContext(ctx, query, baseCode)
	if err != nil {
		return nil, fmt.Errorf("list records by base: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Postgres) FindLatestByEntity(ctx context.Context, entityType string, entityID domain.EntityID) (*models.RegistryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM registry_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version DESC
		LIMIT 1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, entityType, uuid.UUID(entityID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record by entity: %w", err)
	}
	return rec, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, rec *models.RegistryRecord) error {
	if err := s.updateStatus(ctx, s.db, rec); err != nil {
		return err
	}
	rec.ConcurrencyToken++
	return nil
}

func (s *Postgres) updateStatus(ctx context.Context, db execer, rec *models.RegistryRecord) error {
	const query = `
		UPDATE registry_records
		SET status = $2, status_reason = $3, updated_at = $4, updated_by = $5,
		    concurrency_token = concurrency_token + 1
		WHERE code = $1 AND concurrency_token = $6`

	res, err := db.ExecContext(ctx, query,
		rec.Code, rec.Status, nullString(rec.StatusReason), rec.UpdatedAt, nullString(rec.UpdatedBy),
		rec.ConcurrencyToken)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

// CreateVersion supersedes the current record and inserts its successor in
// one transaction.
func (s *Postgres) CreateVersion(ctx context.Context, superseded, next *models.RegistryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.updateStatus(ctx, tx, superseded); err != nil {
		return err
	}
	if err := s.insert(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version transaction: %w", err)
	}
	superseded.ConcurrencyToken++
	next.ConcurrencyToken = 1
	return nil
}

func (s *Postgres) Search(ctx context.Context, criteria models.SearchCriteria) ([]*models.RegistryRecord, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if criteria.Prefix != "" {
		conds = append(conds, "prefix = "+arg(criteria.Prefix))
	}
	if criteria.TenantCode != "" {
		conds = append(conds, "tenant_code = "+arg(strings.ToUpper(criteria.TenantCode)))
	}
	if criteria.Stage != 0 {
		conds = append(conds, "stage = "+arg(criteria.Stage))
	}
	if criteria.Year != 0 {
		conds = append(conds, "year = "+arg(criteria.Year))
	}
	if criteria.SequenceFrom != 0 {
		conds = append(conds, "sequence >= "+arg(criteria.SequenceFrom))
	}
	if criteria.SequenceTo != 0 {
		conds = append(conds, "sequence <= "+arg(criteria.SequenceTo))
	}
	if criteria.Status != "" {
		conds = append(conds, "status = "+arg(criteria.Status))
	}
	if criteria.EntityType != "" {
		conds = append(conds, "entity_type = "+arg(criteria.EntityType))
	}
	if !criteria.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= "+arg(criteria.CreatedAfter))
	}
	if !criteria.CreatedBefore.IsZero() {
		conds = append(conds, "created_at <= "+arg(criteria.CreatedBefore))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM registry_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM registry_records` + where +
		" ORDER BY created_at DESC, code ASC LIMIT " + arg(criteria.Limit) + " OFFSET " + arg(criteria.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	items, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.RegistryRecord, error) {
	var (
		rec       models.RegistryRecord
		id        uuid.UUID
		entityID  uuid.NullUUID
		reason    sql.NullString
		prevCode  sql.NullString
		updatedBy sql.NullString
		metadata  []byte
	)
	err := row.Scan(
		&id, &rec.Code, &rec.BaseCode, &rec.EntityType, &entityID,
		&rec.Prefix, &rec.TenantCode, &rec.Stage, &rec.Year, &rec.Sequence, &rec.Version,
		&rec.Status, &reason, &prevCode, &metadata,
		&rec.CreatedAt, &rec.CreatedBy, &rec.UpdatedAt, &updatedBy, &rec.ConcurrencyToken)
	if err != nil {
		return nil, err
	}

	rec.ID = domain.RecordID(id)
	if entityID.Valid {
		rec.EntityID = domain.EntityID(entityID.UUID)
	}
	rec.StatusReason = reason.String
	rec.PreviousVersionCode = prevCode.String
	rec.UpdatedBy = updatedBy.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*models.RegistryRecord, error) {
	var out []*models.RegistryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
