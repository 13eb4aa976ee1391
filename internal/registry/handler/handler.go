package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"serialregistry/internal/platform/middleware"
	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/httputil"
	"serialregistry/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer exposes.
type Service interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.Result, error)
	GenerateBatch(ctx context.Context, reqs []*models.GenerateRequest) ([]*models.Result, error)
	Validate(ctx context.Context, raw string) (*models.ValidationResult, error)
	GetByCode(ctx context.Context, raw string) (*models.RegistryRecord, error)
	GetLatestVersion(ctx context.Context, raw string) (*models.RegistryRecord, error)
	GetByEntity(ctx context.Context, entityType string, entityID domain.EntityID) (*models.RegistryRecord, error)
	GetHistory(ctx context.Context, raw string) ([]models.VersionEntry, error)
	Search(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResult, error)
	CreateVersion(ctx context.Context, raw, reason string) (*models.Result, error)
	Void(ctx context.Context, raw, reason string) (*models.RegistryRecord, error)
	Traceability(ctx context.Context, raw string, relations []models.Relation) (*models.TraceabilityReport, error)
	Reserve(ctx context.Context, req *models.ReserveRequest) (*models.ReservationResult, error)
	GetReservation(ctx context.Context, id domain.ReservationID) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, id domain.ReservationID, entityID domain.EntityID, metadata map[string]string) (*models.Result, error)
	CancelReservation(ctx context.Context, id domain.ReservationID) error
}

// Handler exposes the registry over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a new registry Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Identity)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Post("/serial-codes", h.handleGenerate)
	router.Post("/serial-codes/batch", h.handleGenerateBatch)
	router.Post("/serial-codes/validate", h.handleValidate)
	router.Get("/serial-codes", h.handleSearch)
	router.Get("/serial-codes/{code}", h.handleGetByCode)
	router.Get("/serial-codes/{code}/latest", h.handleGetLatest)
	router.Get("/serial-codes/{code}/history", h.handleGetHistory)
	router.Post("/serial-codes/{code}/versions", h.handleCreateVersion)
	router.Post("/serial-codes/{code}/void", h.handleVoid)
	router.Post("/serial-codes/{code}/traceability", h.handleTraceability)
	router.Get("/entities/{entityType}/{entityID}/serial-code", h.handleGetByEntity)

	router.Post("/reservations", h.handleReserve)
	router.Get("/reservations/{id}", h.handleGetReservation)
	router.Post("/reservations/{id}/confirm", h.handleConfirmReservation)
	router.Delete("/reservations/{id}", h.handleCancelReservation)

	r.Mount("/", router)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[generateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	modelReq, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Generate(ctx, modelReq)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to generate serial code")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[batchGenerateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	modelReqs, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.service.GenerateBatch(ctx, modelReqs)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to generate serial code batch")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string][]*models.Result{"results": results})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[validateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.Validate(ctx, req.Code)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to validate serial code")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.GetByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load serial code")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.GetLatestVersion(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load latest version")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	history, err := h.service.GetHistory(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load version history")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) handleGetByEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := domain.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetByEntity(ctx, chi.URLParam(r, "entityType"), entityID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load serial code for entity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	criteria, err := searchCriteriaFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Search(ctx, criteria)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to search registry")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[versionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.CreateVersion(ctx, chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to create version")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[voidRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	rec, err := h.service.Void(ctx, chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to void serial code")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleTraceability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[traceabilityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	report, err := h.service.Traceability(ctx, chi.URLParam(r, "code"), req.RelatedCodes)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to build traceability report")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[reserveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	modelReq, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Reserve(ctx, modelReq)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to reserve serial code")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.GetReservation(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load reservation")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[confirmRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	var entityID domain.EntityID
	if req.EntityID != "" {
		entityID, err = domain.ParseEntityID(req.EntityID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	result, err := h.service.ConfirmReservation(ctx, id, entityID, req.Metadata)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to confirm reservation")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseReservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.CancelReservation(ctx, id); err != nil {
		h.writeServiceError(ctx, w, err, "failed to cancel reservation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func searchCriteriaFromQuery(r *http.Request) (models.SearchCriteria, error) {
	q := r.URL.Query()
	criteria := models.SearchCriteria{
		Prefix:     q.Get("prefix"),
		TenantCode: q.Get("tenant_code"),
		Status:     models.RecordStatus(q.Get("status")),
		EntityType: q.Get("entity_type"),
	}

	var err error
	if criteria.Stage, err = queryInt(q.Get("stage")); err != nil {
		return criteria, dErrors.New(dErrors.CodeValidation, "stage must be an integer")
	}
	if criteria.Year, err = queryInt(q.Get("year")); err != nil {
		return criteria, dErrors.New(dErrors.CodeValidation, "year must be an integer")
	}
	if criteria.Limit, err = queryInt(q.Get("limit")); err != nil {
		return criteria, dErrors.New(dErrors.CodeValidation, "limit must be an integer")
	}
	if criteria.Offset, err = queryInt(q.Get("offset")); err != nil {
		return criteria, dErrors.New(dErrors.CodeValidation, "offset must be an integer")
	}

	if from := q.Get("sequence_from"); from != "" {
		criteria.SequenceFrom, err = strconv.ParseUint(from, 10, 64)
		if err != nil {
			return criteria, dErrors.New(dErrors.CodeValidation, "sequence_from must be an integer")
		}
	}
	if to := q.Get("sequence_to"); to != "" {
		criteria.SequenceTo, err = strconv.ParseUint(to, 10, 64)
		if err != nil {
			return criteria, dErrors.New(dErrors.CodeValidation, "sequence_to must be an integer")
		}
	}
	if after := q.Get("created_after"); after != "" {
		criteria.CreatedAfter, err = time.Parse(time.RFC3339, after)
		if err != nil {
			return criteria, dErrors.New(dErrors.CodeValidation, "created_after must be RFC 3339")
		}
	}
	if before := q.Get("created_before"); before != "" {
		criteria.CreatedBefore, err = time.Parse(time.RFC3339, before)
		if err != nil {
			return criteria, dErrors.New(dErrors.CodeValidation, "created_before must be RFC 3339")
		}
	}
	return criteria, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
