package service

import (
	"context"
	"errors"
	"strconv"

	"serialregistry/internal/audit"
	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
	"serialregistry/pkg/requestcontext"
)

// CreateVersion supersedes the active version of a code's family and
// registers its successor. The sequence number is inherited; only the
// version segment changes.
func (s *Service) CreateVersion(ctx context.Context, raw, reason string) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CreateVersion")
	defer span.End()

	parsed, err := s.codec.Parse(raw)
	if err != nil {
		return nil, err
	}

	history, err := s.records.ListByBase(ctx, parsed.BaseCode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load version history")
	}
	if len(history) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "serial code not found")
	}

	var active *models.RegistryRecord
	for _, rec := range history {
		if rec.IsActive() {
			active = rec
			break
		}
	}
	if active == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "no active version exists for %s", parsed.BaseCode)
	}
	if err := active.CanSupersede(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorFrom(ctx)
	next := &models.RegistryRecord{
		ID:                  domain.NewRecordID(),
		Code:                s.codec.Format(active.Scope(), active.Sequence, active.Version+1),
		BaseCode:            active.BaseCode,
		EntityType:          active.EntityType,
		EntityID:            active.EntityID,
		Prefix:              active.Prefix,
		TenantCode:          active.TenantCode,
		Stage:               active.Stage,
		Year:                active.Year,
		Sequence:            active.Sequence,
		Version:             active.Version + 1,
		Status:              models.RecordStatusActive,
		PreviousVersionCode: active.Code,
		Metadata:            active.Metadata,
		CreatedAt:           now,
		CreatedBy:           actor.UserID,
		UpdatedAt:           now,
	}

	active.ApplySupersede(reason, actor.UserID, now)
	if err := s.records.CreateVersion(ctx, active, next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "code was modified concurrently, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create version")
	}

	s.emitAudit(ctx, audit.ActionVersion, next.BaseCode, map[string]string{
		"code":     next.Code,
		"previous": active.Code,
		"version":  strconv.Itoa(next.Version),
		"reason":   reason,
	})
	s.metrics.IncrementIssued(next.Prefix, "version")

	return resultFrom(next), nil
}

// Void permanently retires a code. The record survives for audit purposes;
// the sequence number is never reissued.
func (s *Service) Void(ctx context.Context, raw, reason string) (*models.RegistryRecord, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Void")
	defer span.End()

	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "void reason is required")
	}
	if _, err := s.codec.Parse(raw); err != nil {
		return nil, err
	}

	rec, err := s.records.FindByCode(ctx, raw)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "serial code not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load serial code")
	}
	if err := rec.CanVoid(); err != nil {
		return nil, err
	}

	actor := requestcontext.ActorFrom(ctx)
	rec.ApplyVoid(reason, actor.UserID, requestcontext.Now(ctx))
	if err := s.records.UpdateStatus(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "code was modified concurrently, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to void serial code")
	}

	s.emitAudit(ctx, audit.ActionVoid, rec.BaseCode, map[string]string{
		"code":   rec.Code,
		"reason": reason,
	})

	return rec, nil
}
