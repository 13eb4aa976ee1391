package models

import (
	"strings"
	"time"

	"serialregistry/internal/registry/code"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
)

// GenerateRequest asks for a new serial code bound (optionally) to an
// existing entity.
type GenerateRequest struct {
	EntityType string
	TenantCode string
	EntityID   domain.EntityID
	// Stage overrides the stage derived from EntityType when > 0.
	Stage int
	// Year overrides the current year when > 0.
	Year     int
	Metadata map[string]string
}

// Normalize trims and upcases caller-supplied segments.
func (r *GenerateRequest) Normalize() {
	r.EntityType = strings.TrimSpace(r.EntityType)
	r.TenantCode = strings.ToUpper(strings.TrimSpace(r.TenantCode))
}

// Validate enforces the request invariants the grammar can check without
// touching storage.
func (r *GenerateRequest) Validate() error {
	if r.EntityType == "" {
		return dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	if err := code.ValidateTenantCode(r.TenantCode); err != nil {
		return err
	}
	if r.Stage != 0 && (r.Stage < code.MinStage || r.Stage > code.MaxStage) {
		return dErrors.Newf(dErrors.CodeValidation, "stage must be %d-%d", code.MinStage, code.MaxStage)
	}
	if r.Year != 0 && (r.Year < code.MinYear || r.Year > code.MaxYear) {
		return dErrors.Newf(dErrors.CodeValidation, "year must be %d-%d", code.MinYear, code.MaxYear)
	}
	return nil
}

// ReserveRequest asks for a time-bounded hold on a code before the owning
// entity exists.
type ReserveRequest struct {
	EntityType string
	TenantCode string
	Stage      int
	// TTL defaults to the service's configured reservation TTL when zero.
	TTL time.Duration
}

func (r *ReserveRequest) Normalize() {
	r.EntityType = strings.TrimSpace(r.EntityType)
	r.TenantCode = strings.ToUpper(strings.TrimSpace(r.TenantCode))
}

func (r *ReserveRequest) Validate() error {
	if r.EntityType == "" {
		return dErrors.New(dErrors.CodeValidation, "entity type is required")
	}
	if err := code.ValidateTenantCode(r.TenantCode); err != nil {
		return err
	}
	if r.Stage != 0 && (r.Stage < code.MinStage || r.Stage > code.MaxStage) {
		return dErrors.Newf(dErrors.CodeValidation, "stage must be %d-%d", code.MinStage, code.MaxStage)
	}
	if r.TTL < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl must not be negative")
	}
	return nil
}

// Result is returned by Generate, ConfirmReservation, and CreateVersion.
type Result struct {
	Code       string          `json:"code"`
	Prefix     string          `json:"prefix"`
	TenantCode string          `json:"tenant_code"`
	Stage      int             `json:"stage"`
	Year       int             `json:"year"`
	Sequence   uint64          `json:"sequence"`
	Version    int             `json:"version"`
	EntityID   domain.EntityID `json:"entity_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatedBy  string          `json:"created_by"`
}

// ReservationResult is returned by Reserve.
type ReservationResult struct {
	ReservationID domain.ReservationID `json:"reservation_id"`
	ReservedCode  string               `json:"reserved_code"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

// ValidationResult reports syntactic errors and registry-level warnings for
// a candidate code. Warnings never make the code invalid.
type ValidationResult struct {
	IsValid  bool         `json:"is_valid"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Parsed   *code.Parsed `json:"parsed,omitempty"`
}

// SearchCriteria filters registry records. Zero values mean "no filter".
type SearchCriteria struct {
	Prefix        string
	TenantCode    string
	Stage         int
	Year          int
	SequenceFrom  uint64
	SequenceTo    uint64
	Status        RecordStatus
	EntityType    string
	CreatedAfter  time.Time
	CreatedBefore time.Time

	Limit  int
	Offset int
}

// Normalize clamps pagination to sane bounds.
func (c *SearchCriteria) Normalize() {
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.Limit > 500 {
		c.Limit = 500
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
}

// SearchResult is one page of registry records.
type SearchResult struct {
	Items   []*RegistryRecord `json:"items"`
	Total   int               `json:"total"`
	HasMore bool              `json:"has_more"`
}

// VersionEntry is one row of a base code's version history.
type VersionEntry struct {
	Code         string       `json:"code"`
	Version      int          `json:"version"`
	Status       RecordStatus `json:"status"`
	ChangeReason string       `json:"change_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CreatedBy    string       `json:"created_by"`
}

// Relation links a code to another code the caller considers related
// (a finding, a piece of evidence). Relations are supplied by the caller,
// never derived.
type Relation struct {
	Code       string `json:"code"`
	Relation   string `json:"relation"`
	EntityType string `json:"entity_type"`
}

// TraceabilityReport assembles everything known about a base code family.
type TraceabilityReport struct {
	CurrentCode    string          `json:"current_code"`
	EntityType     string          `json:"entity_type"`
	EntityID       domain.EntityID `json:"entity_id,omitempty"`
	VersionHistory []VersionEntry  `json:"version_history"`
	RelatedCodes   []Relation      `json:"related_codes"`
	AuditTrail     []AuditView     `json:"audit_trail"`
}

// AuditView is the audit entry shape embedded in traceability reports.
type AuditView struct {
	Action          string            `json:"action"`
	ActorUserID     string            `json:"actor_user_id"`
	ActorTenantCode string            `json:"actor_tenant_code"`
	IPAddress       string            `json:"ip_address,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Details         map[string]string `json:"details,omitempty"`
}
