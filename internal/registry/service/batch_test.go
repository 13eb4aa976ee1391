package service

import (
	"serialregistry/internal/registry/models"
	dErrors "serialregistry/pkg/domain-errors"
)

func (s *ServiceSuite) TestGenerateBatchIssuesSequentialCodes() {
	results, err := s.svc.GenerateBatch(s.ctx, []*models.GenerateRequest{
		{EntityType: "risk", TenantCode: "ACME1"},
		{EntityType: "risk", TenantCode: "ACME1"},
		{EntityType: "control", TenantCode: "ACME1"},
	})
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.Equal("RISK-ACME1-2-2026-000001", results[0].Code)
	s.Equal("RISK-ACME1-2-2026-000002", results[1].Code)
	s.Equal("CTRL-ACME1-3-2026-000001", results[2].Code)
}

func (s *ServiceSuite) TestGenerateBatchRejectsEmptyBatch() {
	_, err := s.svc.GenerateBatch(s.ctx, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestGenerateBatchRejectsOversizedBatch() {
	reqs := make([]*models.GenerateRequest, maxBatchSize+1)
	for i := range reqs {
		reqs[i] = &models.GenerateRequest{EntityType: "risk", TenantCode: "ACME1"}
	}
	_, err := s.svc.GenerateBatch(s.ctx, reqs)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// TestGenerateBatchInvalidRequestAllocatesNothing checks up-front
// validation: one bad request anywhere rejects the batch before any
// sequence is consumed.
func (s *ServiceSuite) TestGenerateBatchInvalidRequestAllocatesNothing() {
	_, err := s.svc.GenerateBatch(s.ctx, []*models.GenerateRequest{
		{EntityType: "risk", TenantCode: "ACME1"},
		{EntityType: "risk", TenantCode: "SYS"},
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(dErrors.MessageOf(err), "request 2")

	// The failed batch consumed no sequence.
	result := s.generate("risk")
	s.Equal("RISK-ACME1-2-2026-000001", result.Code)
}
