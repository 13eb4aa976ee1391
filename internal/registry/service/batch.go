package service

import (
	"context"

	"serialregistry/internal/registry/models"
	dErrors "serialregistry/pkg/domain-errors"
)

// maxBatchSize caps one batch call. Larger runs should be split by the
// caller so a single request cannot hold allocation scopes hot for long.
const maxBatchSize = 100

// GenerateBatch issues one code per request, all or nothing: if any
// request fails, every code already issued by the batch is voided before
// the error is returned, so no partial batch is ever left active. The
// sequence numbers consumed by an aborted batch stay retired.
func (s *Service) GenerateBatch(ctx context.Context, reqs []*models.GenerateRequest) ([]*models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GenerateBatch")
	defer span.End()

	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch contains no requests")
	}
	if len(reqs) > maxBatchSize {
		return nil, dErrors.Newf(dErrors.CodeValidation, "batch exceeds %d requests", maxBatchSize)
	}
	// Reject the whole batch before allocating anything.
	for i, req := range reqs {
		req.Normalize()
		if err := req.Validate(); err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "request %d: %s", i+1, dErrors.MessageOf(err))
		}
	}

	results := make([]*models.Result, 0, len(reqs))
	for i, req := range reqs {
		result, err := s.Generate(ctx, req)
		if err != nil {
			s.logger.ErrorContext(ctx, "batch generation aborted",
				"failed_request", i+1, "issued", len(results), "error", err)
			s.voidBatch(ctx, results)
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// voidBatch walks back the codes a failed batch already issued. Each void
// follows the normal transition so the audit trail records the walk-back.
func (s *Service) voidBatch(ctx context.Context, issued []*models.Result) {
	for _, result := range issued {
		if _, err := s.Void(ctx, result.Code, "batch generation aborted"); err != nil {
			s.logger.ErrorContext(ctx, "failed to void code from aborted batch",
				"code", result.Code, "error", err)
		}
	}
}
