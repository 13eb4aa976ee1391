package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"serialregistry/internal/audit"
	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/metrics"
	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
	"serialregistry/pkg/requestcontext"
)

// RecordStore persists registry records. Implementations enforce code
// uniqueness and conditional writes on the concurrency token.
type RecordStore interface {
	Create(ctx context.Context, rec *models.RegistryRecord) error
	FindByCode(ctx context.Context, code string) (*models.RegistryRecord, error)
	ListByBase(ctx context.Context, baseCode string) ([]*models.RegistryRecord, error)
	FindLatestByEntity(ctx context.Context, entityType string, entityID domain.EntityID) (*models.RegistryRecord, error)
	UpdateStatus(ctx context.Context, rec *models.RegistryRecord) error
	CreateVersion(ctx context.Context, superseded, next *models.RegistryRecord) error
	Search(ctx context.Context, criteria models.SearchCriteria) ([]*models.RegistryRecord, int, error)
}

// ReservationStore persists provisional code holds.
type ReservationStore interface {
	Create(ctx context.Context, res *models.Reservation) error
	FindByID(ctx context.Context, id domain.ReservationID) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, res *models.Reservation) error
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*models.Reservation, error)
}

// SequenceAllocator hands out sequence numbers, each one exactly once per
// scope.
type SequenceAllocator interface {
	Next(ctx context.Context, scope code.Scope) (uint64, error)
}

// AuditLog records and replays the immutable operation trail.
type AuditLog interface {
	Emit(ctx context.Context, entry audit.Entry) error
	ListByBaseCode(ctx context.Context, baseCode string) ([]audit.Entry, error)
}

// Service orchestrates serial code issuance, validation, versioning, and
// reservation lifecycle.
type Service struct {
	records      RecordStore
	reservations ReservationStore
	allocator    SequenceAllocator
	codec        *code.Codec

	logger   *slog.Logger
	auditLog AuditLog
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	defaultTTL time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditLog(log AuditLog) Option {
	return func(s *Service) {
		s.auditLog = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithReservationTTL overrides the default hold duration for reservations
// created without an explicit TTL.
func WithReservationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// New constructs a Service.
func New(records RecordStore, reservations ReservationStore, alloc SequenceAllocator, codec *code.Codec, opts ...Option) *Service {
	s := &Service{
		records:      records,
		reservations: reservations,
		allocator:    alloc,
		codec:        codec,
		logger:       slog.Default(),
		tracer:       otel.Tracer("serialregistry/registry"),
		defaultTTL:   15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate allocates the next sequence in the request's scope and registers
// a version 1 record for it.
func (s *Service) Generate(ctx context.Context, req *models.GenerateRequest) (*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Generate")
	defer span.End()
	start := time.Now()

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
	year := req.Year
	if year == 0 {
		year = now.Year()
	}
	scope := code.Scope{Prefix: prefix, TenantCode: req.TenantCode, Stage: stage, Year: year}

	sequence, err := s.allocator.Next(ctx, scope)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeContention) {
			s.metrics.IncrementContention()
		}
		return nil, err
	}

	actor := requestcontext.ActorFrom(ctx)
	rec := &models.RegistryRecord{
		ID:         domain.NewRecordID(),
		Code:       s.codec.Format(scope, sequence, 1),
		BaseCode:   s.codec.FormatBase(scope, sequence),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Prefix:     prefix,
		TenantCode: req.TenantCode,
		Stage:      stage,
		Year:       year,
		Sequence:   sequence,
		Version:    1,
		Status:     models.RecordStatusActive,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		CreatedBy:  actor.UserID,
		UpdatedAt:  now,
	}

	if err := s.records.Create(ctx, rec); err != nil {
		// The allocator hands each sequence out once, so a collision here
		// means the counter and the record table disagree.
		if errors.Is(err, sentinel.ErrConflict) {
			s.logger.ErrorContext(ctx, "sequence collision on freshly allocated code",
				"code", rec.Code, "scope", scope.Key())
			return nil, dErrors.New(dErrors.CodeInternal, "failed to register serial code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register serial code")
	}

	s.emitAudit(ctx, audit.ActionGenerate, rec.BaseCode, map[string]string{
		"code":        rec.Code,
		"entity_type": rec.EntityType,
	})
	s.metrics.IncrementIssued(prefix, "generate")
	s.metrics.ObserveGenerateLatency(time.Since(start))

	return resultFrom(rec), nil
}

// Validate checks a candidate code against the grammar and, when it parses,
// against the registry. Registry-level findings are warnings; only grammar
// violations make the code invalid.
func (s *Service) Validate(ctx context.Context, raw string) (*models.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Validate")
	defer span.End()

	parsed, err := s.codec.Parse(raw)
	if err != nil {
		s.metrics.IncrementValidation(false)
		return &models.ValidationResult{
			IsValid: false,
			Errors:  []string{dErrors.MessageOf(err)},
		}, nil
	}

	result := &models.ValidationResult{IsValid: true, Parsed: parsed}

	if !code.KnownPrefix(parsed.Prefix) {
		result.Warnings = append(result.Warnings,
			"prefix "+parsed.Prefix+" does not match a registered entity type")
	}
	now := requestcontext.Now(ctx)
	if parsed.Year > now.Year()+1 {
		result.Warnings = append(result.Warnings, "year is more than one year in the future")
	}
	if parsed.Year < now.Year()-10 {
		result.Warnings = append(result.Warnings, "year is more than ten years in the past")
	}

	rec, err := s.records.FindByCode(ctx, raw)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		result.Warnings = append(result.Warnings, "code is not registered")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registry")
	case rec.Status == models.RecordStatusVoid:
		result.Warnings = append(result.Warnings, "code is void")
	case rec.Status == models.RecordStatusSuperseded:
		result.Warnings = append(result.Warnings, "code has been superseded by a newer version")
	}

	s.metrics.IncrementValidation(true)
	return result, nil
}

// GetByCode returns the record registered under an exact code.
func (s *Service) GetByCode(ctx context.Context, raw string) (*models.RegistryRecord, error) {
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
	return rec, nil
}

// GetLatestVersion returns the highest non-void version in a code's family.
// The input may carry any version segment; only the base code matters.
func (s *Service) GetLatestVersion(ctx context.Context, raw string) (*models.RegistryRecord, error) {
	parsed, err := s.codec.Parse(raw)
	if err != nil {
		return nil, err
	}
	history, err := s.records.ListByBase(ctx, parsed.BaseCode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load version history")
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status != models.RecordStatusVoid {
			return history[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no non-void version exists for this code")
}

// GetByEntity returns the highest-version record bound to an entity.
func (s *Service) GetByEntity(ctx context.Context, entityType string, entityID domain.EntityID) (*models.RegistryRecord, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	rec, err := s.records.FindLatestByEntity(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no serial code registered for entity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load serial code for entity")
	}
	return rec, nil
}

// GetHistory returns the full version history of a code's family, oldest
// version first.
func (s *Service) GetHistory(ctx context.Context, raw string) ([]models.VersionEntry, error) {
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
	return versionEntries(history), nil
}

// Search pages through registry records matching the criteria.
func (s *Service) Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error) {
	criteria.Normalize()
	items, total, err := s.records.Search(ctx, criteria)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search registry")
	}
	return &models.SearchResult{
		Items:   items,
		Total:   total,
		HasMore: criteria.Offset+len(items) < total,
	}, nil
}

func versionEntries(history []*models.RegistryRecord) []models.VersionEntry {
	entries := make([]models.VersionEntry, 0, len(history))
	for _, rec := range history {
		entries = append(entries, models.VersionEntry{
			Code:         rec.Code,
			Version:      rec.Version,
			Status:       rec.Status,
			ChangeReason: rec.StatusReason,
			CreatedAt:    rec.CreatedAt,
			CreatedBy:    rec.CreatedBy,
		})
	}
	return entries
}

func resultFrom(rec *models.RegistryRecord) *models.Result {
	return &models.Result{
		Code:       rec.Code,
		Prefix:     rec.Prefix,
		TenantCode: rec.TenantCode,
		Stage:      rec.Stage,
		Year:       rec.Year,
		Sequence:   rec.Sequence,
		Version:    rec.Version,
		EntityID:   rec.EntityID,
		CreatedAt:  rec.CreatedAt,
		CreatedBy:  rec.CreatedBy,
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, baseCode string, details map[string]string) {
	actor := requestcontext.ActorFrom(ctx)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		if details == nil {
			details = make(map[string]string)
		}
		details["request_id"] = requestID
	}
	s.logger.InfoContext(ctx, string(action),
		"base_code", baseCode, "actor", actor.UserID, "log_type", "audit")
	if s.auditLog == nil {
		return
	}
	err := s.auditLog.Emit(ctx, audit.Entry{
		Action:          action,
		ActorUserID:     actor.UserID,
		ActorTenantCode: actor.TenantCode,
		IPAddress:       actor.IPAddress,
		Timestamp:       requestcontext.Now(ctx),
		RelatedBaseCode: baseCode,
		Details:         details,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			"action", string(action), "base_code", baseCode, "error", err)
	}
}
