package handler

import (
	"time"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
)

type generateRequest struct {
	EntityType string            `json:"entity_type"`
	TenantCode string            `json:"tenant_code"`
	EntityID   string            `json:"entity_id,omitempty"`
	Stage      int               `json:"stage,omitempty"`
	Year       int               `json:"year,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r generateRequest) toModel() (*models.GenerateRequest, error) {
	req := &models.GenerateRequest{
		EntityType: r.EntityType,
		TenantCode: r.TenantCode,
		Stage:      r.Stage,
		Year:       r.Year,
		Metadata:   r.Metadata,
	}
	if r.EntityID != "" {
		entityID, err := domain.ParseEntityID(r.EntityID)
		if err != nil {
			return nil, err
		}
		req.EntityID = entityID
	}
	return req, nil
}

type batchGenerateRequest struct {
	Requests []generateRequest `json:"requests"`
}

func (r batchGenerateRequest) toModel() ([]*models.GenerateRequest, error) {
	reqs := make([]*models.GenerateRequest, 0, len(r.Requests))
	for i, item := range r.Requests {
		req, err := item.toModel()
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "request %d: %s", i+1, dErrors.MessageOf(err))
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

type validateRequest struct {
	Code string `json:"code"`
}

type versionRequest struct {
	Reason string `json:"reason"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type reserveRequest struct {
	EntityType string `json:"entity_type"`
	TenantCode string `json:"tenant_code"`
	Stage      int    `json:"stage,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func (r reserveRequest) toModel() (*models.ReserveRequest, error) {
	if r.TTLSeconds < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "ttl_seconds must not be negative")
	}
	return &models.ReserveRequest{
		EntityType: r.EntityType,
		TenantCode: r.TenantCode,
		Stage:      r.Stage,
		TTL:        time.Duration(r.TTLSeconds) * time.Second,
	}, nil
}

type confirmRequest struct {
	EntityID string            `json:"entity_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type traceabilityRequest struct {
	RelatedCodes []models.Relation `json:"related_codes,omitempty"`
}
