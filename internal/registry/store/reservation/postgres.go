package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	"serialregistry/pkg/platform/sentinel"
)

const reservationColumns = `id, reserved_code, prefix, tenant_code, stage, year, sequence,
		entity_type, status, expires_at, confirmed_at, voided_at,
		created_at, created_by, concurrency_token`

// Postgres persists reservations in the code_reservations table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, res *models.Reservation) error {
	const query = `
		INSERT INTO code_reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)`

	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(res.ID), res.ReservedCode, res.Prefix, res.TenantCode, res.Stage, res.Year, res.Sequence,
		res.EntityType, res.Status, res.ExpiresAt, res.ConfirmedAt, res.VoidedAt,
		res.CreatedAt, res.CreatedBy)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	res.ConcurrencyToken = 1
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.ReservationID) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM code_reservations WHERE id = $1`

	res, err := scanReservation(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return res, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, res *models.Reservation) error {
	const query = `
		UPDATE code_reservations
		SET status = $2, confirmed_at = $3, voided_at = $4,
		    concurrency_token = concurrency_token + 1
		WHERE id = $1 AND concurrency_token = $5`

	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(res.ID), res.Status, res.ConfirmedAt, res.VoidedAt, res.ConcurrencyToken)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	res.ConcurrencyToken++
	return nil
}

func (s *Postgres) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM code_reservations
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, models.ReservationStatusReserved, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		res models.Reservation
		id  uuid.UUID
	)
	err := row.Scan(
		&id, &res.ReservedCode, &res.Prefix, &res.TenantCode, &res.Stage, &res.Year, &res.Sequence,
		&res.EntityType, &res.Status, &res.ExpiresAt, &res.ConfirmedAt, &res.VoidedAt,
		&res.CreatedAt, &res.CreatedBy, &res.ConcurrencyToken)
	if err != nil {
		return nil, err
	}
	res.ID = domain.ReservationID(id)
	return &res, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
