package models

import (
	"time"

	"serialregistry/internal/registry/code"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
)

// RecordStatus is the lifecycle state of one version of a serial code.
type RecordStatus string

const (
	RecordStatusActive     RecordStatus = "active"
	RecordStatusSuperseded RecordStatus = "superseded"
	RecordStatusVoid       RecordStatus = "void"
)

// ReservationStatus is the lifecycle state of a provisional hold.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusVoided    ReservationStatus = "voided"
)

// RegistryRecord is the permanent, authoritative record for an issued code.
//
// Invariants:
//   - Code is globally unique
//   - (Prefix, TenantCode, Stage, Year, Sequence, Version) is unique
//   - All versions of one base code share (Prefix, TenantCode, Stage, Year, Sequence)
//   - Status transitions: active -> superseded, active -> void; both terminal
//   - Records are never physically deleted
//
// ConcurrencyToken is compared on every conditional write so two callers
// racing to supersede or void the same record cannot both win.
type RegistryRecord struct {
	ID         domain.RecordID `json:"id"`
	Code       string          `json:"code"`
	BaseCode   string          `json:"base_code"`
	EntityType string          `json:"entity_type"`
	EntityID   domain.EntityID `json:"entity_id"`

	Prefix     string `json:"prefix"`
	TenantCode string `json:"tenant_code"`
	Stage      int    `json:"stage"`
	Year       int    `json:"year"`
	Sequence   uint64 `json:"sequence"`
	Version    int    `json:"version"`

	Status       RecordStatus `json:"status"`
	StatusReason string       `json:"status_reason,omitempty"`

	// PreviousVersionCode links version n back to version n-1.
	PreviousVersionCode string `json:"previous_version_code,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`

	ConcurrencyToken uint64 `json:"-"`
}

// Scope returns the record's allocation scope.
func (r *RegistryRecord) Scope() code.Scope {
	return code.Scope{Prefix: r.Prefix, TenantCode: r.TenantCode, Stage: r.Stage, Year: r.Year}
}

func (r *RegistryRecord) IsActive() bool {
	return r.Status == RecordStatusActive
}

// CanSupersede checks whether this version may be replaced by a newer one.
func (r *RegistryRecord) CanSupersede() error {
	if r.Status != RecordStatusActive {
		return dErrors.Newf(dErrors.CodeConflict, "only an active record can be superseded, status is %s", r.Status)
	}
	if r.Version >= code.MaxVersion {
		return dErrors.Newf(dErrors.CodeConflict, "maximum version %d reached for %s", code.MaxVersion, r.BaseCode)
	}
	return nil
}

// ApplySupersede transitions the record to superseded. Call CanSupersede
// first; the pair keeps validation separate from mutation so conditional
// writes stay single-step.
func (r *RegistryRecord) ApplySupersede(reason, updatedBy string, now time.Time) {
	r.Status = RecordStatusSuperseded
	if reason == "" {
		reason = "superseded by new version"
	}
	r.StatusReason = reason
	r.UpdatedAt = now
	r.UpdatedBy = updatedBy
}

// CanVoid checks whether the record may be voided.
func (r *RegistryRecord) CanVoid() error {
	switch r.Status {
	case RecordStatusActive:
		return nil
	case RecordStatusVoid:
		return dErrors.Newf(dErrors.CodeConflict, "serial code %s is already void", r.Code)
	default:
		return dErrors.Newf(dErrors.CodeConflict, "only an active record can be voided, status is %s", r.Status)
	}
}

// ApplyVoid transitions the record to void. Voiding is not reversible and
// never frees the sequence number.
func (r *RegistryRecord) ApplyVoid(reason, updatedBy string, now time.Time) {
	r.Status = RecordStatusVoid
	r.StatusReason = reason
	r.UpdatedAt = now
	r.UpdatedBy = updatedBy
}

// Reservation is a time-bounded hold on a sequence number before the owning
// entity exists.
//
// Invariants:
//   - While Status=reserved and now < ExpiresAt the sequence is unavailable
//     to any other allocation in the scope
//   - Expired and voided are terminal; the sequence number is permanently
//     retired, never reissued
//   - Confirmed produces exactly one RegistryRecord
type Reservation struct {
	ID           domain.ReservationID `json:"id"`
	ReservedCode string               `json:"reserved_code"`

	Prefix     string `json:"prefix"`
	TenantCode string `json:"tenant_code"`
	Stage      int    `json:"stage"`
	Year       int    `json:"year"`
	Sequence   uint64 `json:"sequence"`

	EntityType string `json:"entity_type"`

	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`

	ConcurrencyToken uint64 `json:"-"`
}

// Scope returns the reservation's allocation scope.
func (r *Reservation) Scope() code.Scope {
	return code.Scope{Prefix: r.Prefix, TenantCode: r.TenantCode, Stage: r.Stage, Year: r.Year}
}

// IsExpired reports whether the hold has lapsed at the given instant.
// Expiry is evaluated lazily; a reserved row past its deadline behaves as
// expired even before the sweeper has transitioned it.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusReserved && !now.Before(r.ExpiresAt)
}

// CanConfirm checks whether the reservation may become a registry record.
func (r *Reservation) CanConfirm(now time.Time) error {
	switch r.Status {
	case ReservationStatusReserved:
		if !now.Before(r.ExpiresAt) {
			return dErrors.Newf(dErrors.CodeConflict, "reservation %s expired at %s", r.ID, r.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil
	case ReservationStatusConfirmed:
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s is already confirmed", r.ID)
	case ReservationStatusExpired:
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s expired at %s", r.ID, r.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s is voided", r.ID)
	}
}

// ApplyConfirm transitions the reservation to confirmed.
func (r *Reservation) ApplyConfirm(now time.Time) {
	r.Status = ReservationStatusConfirmed
	r.ConfirmedAt = &now
}

// CanVoid checks whether the reservation may be released by its caller.
func (r *Reservation) CanVoid(now time.Time) error {
	if r.Status != ReservationStatusReserved {
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s is %s", r.ID, r.Status)
	}
	if !now.Before(r.ExpiresAt) {
		return dErrors.Newf(dErrors.CodeConflict, "reservation %s expired at %s", r.ID, r.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// ApplyVoid transitions the reservation to voided. The sequence number
// stays retired.
func (r *Reservation) ApplyVoid(now time.Time) {
	r.Status = ReservationStatusVoided
	r.VoidedAt = &now
}

// ApplyExpire transitions an overdue reservation to expired.
func (r *Reservation) ApplyExpire() {
	r.Status = ReservationStatusExpired
}
