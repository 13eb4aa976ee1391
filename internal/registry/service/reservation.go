package service

import (
	"context"
	"errors"

	"serialregistry/internal/audit"
	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
	"serialregistry/pkg/requestcontext"
)

// Reserve allocates a sequence number and holds it behind a time-bounded
// reservation. The hold keeps the number out of reach of other allocations
// in the scope; if the hold lapses the number is retired, never reissued.
func (s *Service) Reserve(ctx context.Context, req *models.ReserveRequest) (*models.ReservationResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Reserve")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prefix, err := code.PrefixFor(req.EntityType)
	if err != nil {
		return nil, err
	}
	stage := req.Stage
	if stage == 0 {
		stage = code.StageFor(req.EntityType)
	}
	now := requestcontext.Now(ctx)
	scope := code.Scope{Prefix: prefix, TenantCode: req.TenantCode, Stage: stage, Year: now.Year()}

	sequence, err := s.allocator.Next(ctx, scope)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeContention) {
			s.metrics.IncrementContention()
		}
		return nil, err
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	actor := requestcontext.ActorFrom(ctx)
	res := &models.Reservation{
		ID:           domain.NewReservationID(),
		ReservedCode: s.codec.FormatBase(scope, sequence),
		Prefix:       prefix,
		TenantCode:   req.TenantCode,
		Stage:        stage,
		Year:         scope.Year,
		Sequence:     sequence,
		EntityType:   req.EntityType,
		Status:       models.ReservationStatusReserved,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		CreatedBy:    actor.UserID,
	}

	if err := s.reservations.Create(ctx, res); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create reservation")
	}

	s.emitAudit(ctx, audit.ActionReserve, res.ReservedCode, map[string]string{
		"reservation_id": res.ID.String(),
		"expires_at":     res.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})

	return &models.ReservationResult{
		ReservationID: res.ID,
		ReservedCode:  res.ReservedCode,
		ExpiresAt:     res.ExpiresAt,
	}, nil
}

// ConfirmReservation converts a live hold into a version 1 registry record
// bound to the now-existing entity. The conditional reservation update is
// the race arbiter: exactly one caller can move the hold to confirmed, so
// exactly one record is ever created from it.
func (s *Service) ConfirmReservation(ctx context.Context, id domain.ReservationID, entityID domain.EntityID, metadata map[string]string) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "registry.ConfirmReservation")
	defer span.End()

	res, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "reservation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reservation")
	}

	now := requestcontext.Now(ctx)
	if res.IsExpired(now) {
		s.expireLazily(ctx, res)
		return nil, dErrors.Newf(dErrors.CodeConflict, "reservation %s expired at %s", res.ID, res.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	if err := res.CanConfirm(now); err != nil {
		return nil, err
	}

	res.ApplyConfirm(now)
	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "reservation was modified concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm reservation")
	}

	actor := requestcontext.ActorFrom(ctx)
	rec := &models.RegistryRecord{
		ID:         domain.NewRecordID(),
		Code:       res.ReservedCode,
		BaseCode:   res.ReservedCode,
		EntityType: res.EntityType,
		EntityID:   entityID,
		Prefix:     res.Prefix,
		TenantCode: res.TenantCode,
		Stage:      res.Stage,
		Year:       res.Year,
		Sequence:   res.Sequence,
		Version:    1,
		Status:     models.RecordStatusActive,
		Metadata:   metadata,
		CreatedAt:  now,
		CreatedBy:  actor.UserID,
		UpdatedAt:  now,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to register confirmed reservation",
			"reservation_id", res.ID.String(), "code", res.ReservedCode, "error", err)
		s.revertConfirm(ctx, res)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register serial code")
	}

	s.emitAudit(ctx, audit.ActionConfirm, rec.BaseCode, map[string]string{
		"reservation_id": res.ID.String(),
		"code":           rec.Code,
	})
	s.metrics.IncrementIssued(rec.Prefix, "confirm")
	s.metrics.IncrementReservationOutcome("confirmed")

	return resultFrom(rec), nil
}

// revertConfirm returns a freshly confirmed reservation to reserved after
// the record insert failed, so the caller can retry instead of holding a
// confirmed reservation with no record behind it.
func (s *Service) revertConfirm(ctx context.Context, res *models.Reservation) {
	res.Status = models.ReservationStatusReserved
	res.ConfirmedAt = nil
	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to revert reservation after record insert failure",
			"reservation_id", res.ID.String(), "code", res.ReservedCode, "error", err)
	}
}

// CancelReservation releases a live hold. The sequence number stays
// retired; cancellation only ends the hold early.
func (s *Service) CancelReservation(ctx context.Context, id domain.ReservationID) error {
	ctx, span := s.tracer.Start(ctx, "registry.CancelReservation")
	defer span.End()

	res, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "reservation not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reservation")
	}

	now := requestcontext.Now(ctx)
	if res.IsExpired(now) {
		s.expireLazily(ctx, res)
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s has expired", res.ID)
	}
	if err := res.CanVoid(now); err != nil {
		return err
	}

	res.ApplyVoid(now)
	if err := s.reservations.UpdateStatus(ctx, res); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "reservation was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel reservation")
	}

	s.emitAudit(ctx, audit.ActionCancel, res.ReservedCode, map[string]string{
		"reservation_id": res.ID.String(),
	})
	s.metrics.IncrementReservationOutcome("voided")

	return nil
}

// GetReservation returns a reservation by id. Overdue holds read as
// expired even before the sweeper has transitioned them.
func (s *Service) GetReservation(ctx context.Context, id domain.ReservationID) (*models.Reservation, error) {
	res, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "reservation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reservation")
	}
	if res.IsExpired(requestcontext.Now(ctx)) {
		res.ApplyExpire()
	}
	return res, nil
}

// ExpireOverdue transitions lapsed holds to expired and returns how many it
// moved. Conflicts are skipped; whoever won the race already settled the
// reservation's fate.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := requestcontext.Now(ctx)
	overdue, err := s.reservations.ListOverdue(ctx, now, limit)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overdue reservations")
	}

	expired := 0
	for _, res := range overdue {
		res.ApplyExpire()
		if err := s.reservations.UpdateStatus(ctx, res); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return expired, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire reservation")
		}
		expired++
		s.emitAudit(ctx, audit.ActionExpire, res.ReservedCode, map[string]string{
			"reservation_id": res.ID.String(),
		})
		s.metrics.IncrementReservationOutcome("expired")
	}
	return expired, nil
}

func (s *Service) expireLazily(ctx context.Context, res *models.Reservation) {
	res.ApplyExpire()
	err := s.reservations.UpdateStatus(ctx, res)
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return
	case err != nil:
		s.logger.WarnContext(ctx, "failed to expire overdue reservation",
			"reservation_id", res.ID.String(), "error", err)
		return
	}
	s.emitAudit(ctx, audit.ActionExpire, res.ReservedCode, map[string]string{
		"reservation_id": res.ID.String(),
	})
	s.metrics.IncrementReservationOutcome("expired")
}
