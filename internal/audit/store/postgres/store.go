package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"serialregistry/internal/audit"
)

// Store persists audit entries in PostgreSQL. The table has no UPDATE or
// DELETE path; append-only is enforced by only ever issuing INSERTs here.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}

	query := `
		INSERT INTO audit_entries (
			id, action, actor_user_id, actor_tenant_code, ip_address,
			timestamp, related_base_code, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Action),
		entry.ActorUserID,
		entry.ActorTenantCode,
		nullString(entry.IPAddress),
		entry.Timestamp,
		nullString(entry.RelatedBaseCode),
		details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByBaseCode(ctx context.Context, baseCode string) ([]audit.Entry, error) {
	query := `
		SELECT id, action, actor_user_id, actor_tenant_code, ip_address,
		       timestamp, related_base_code, details
		FROM audit_entries
		WHERE related_base_code = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, baseCode)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) Search(ctx context.Context, criteria audit.SearchCriteria) ([]audit.Entry, int, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if criteria.Action != "" {
		conds = append(conds, "action = "+arg(string(criteria.Action)))
	}
	if criteria.ActorUserID != "" {
		conds = append(conds, "actor_user_id = "+arg(criteria.ActorUserID))
	}
	if criteria.ActorTenantCode != "" {
		conds = append(conds, "actor_tenant_code = "+arg(criteria.ActorTenantCode))
	}
	if criteria.RelatedBaseCode != "" {
		conds = append(conds, "related_base_code = "+arg(criteria.RelatedBaseCode))
	}
	if !criteria.After.IsZero() {
		conds = append(conds, "timestamp >= "+arg(criteria.After))
	}
	if !criteria.Before.IsZero() {
		conds = append(conds, "timestamp <= "+arg(criteria.Before))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `
		SELECT id, action, actor_user_id, actor_tenant_code, ip_address,
		       timestamp, related_base_code, details
		FROM audit_entries` + where +
		" ORDER BY timestamp ASC LIMIT " + arg(criteria.Limit) + " OFFSET " + arg(criteria.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			action   string
			ip       sql.NullString
			baseCode sql.NullString
			details  []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorUserID, &e.ActorTenantCode, &ip, &e.Timestamp, &baseCode, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.IPAddress = ip.String
		e.RelatedBaseCode = baseCode.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
