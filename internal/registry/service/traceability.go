package service

import (
	"context"

	"serialregistry/internal/registry/models"
	dErrors "serialregistry/pkg/domain-errors"
)

// Traceability assembles everything known about a code's family: its
// version history, its audit trail, and the relations the caller supplies.
// Relations are never derived here; the registry knows codes, not the
// business links between the entities behind them.
func (s *Service) Traceability(ctx context.Context, raw string, relations []models.Relation) (*models.TraceabilityReport, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Traceability")
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

	// The current code is the highest non-void version, or the last version
	// when the whole family has been voided.
	current := history[len(history)-1]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status != models.RecordStatusVoid {
			current = history[i]
			break
		}
	}

	report := &models.TraceabilityReport{
		CurrentCode:    current.Code,
		EntityType:     current.EntityType,
		EntityID:       current.EntityID,
		VersionHistory: versionEntries(history),
		RelatedCodes:   relations,
	}
	if report.RelatedCodes == nil {
		report.RelatedCodes = []models.Relation{}
	}

	if s.auditLog != nil {
		trail, err := s.auditLog.ListByBaseCode(ctx, parsed.BaseCode)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
		}
		report.AuditTrail = make([]models.AuditView, 0, len(trail))
		for _, entry := range trail {
			report.AuditTrail = append(report.AuditTrail, models.AuditView{
				Action:          string(entry.Action),
				ActorUserID:     entry.ActorUserID,
				ActorTenantCode: entry.ActorTenantCode,
				IPAddress:       entry.IPAddress,
				Timestamp:       entry.Timestamp,
				Details:         entry.Details,
			})
		}
	}

	return report, nil
}
