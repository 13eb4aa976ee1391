package domain

import (
	"github.com/google/uuid"

	dErrors "serialregistry/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types keep record, reservation, and
// entity identifiers from being swapped at call sites; the compiler enforces
// the boundary.
type (
	// RecordID identifies a registry record (one version of one code).
	RecordID uuid.UUID

	// ReservationID identifies a provisional hold on a code.
	ReservationID uuid.UUID

	// EntityID identifies the domain entity (risk, control, assessment)
	// a code is bound to. Supplied by the caller, opaque to the registry.
	EntityID uuid.UUID
)

func NewRecordID() RecordID           { return RecordID(uuid.New()) }
func NewReservationID() ReservationID { return ReservationID(uuid.New()) }

func (id RecordID) String() string      { return uuid.UUID(id).String() }
func (id ReservationID) String() string { return uuid.UUID(id).String() }
func (id EntityID) String() string      { return uuid.UUID(id).String() }

func (id RecordID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ReservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// ParseReservationID parses a reservation identifier received at a trust
// boundary. Empty strings and nil UUIDs are rejected.
func ParseReservationID(s string) (ReservationID, error) {
	u, err := parse(s, "reservation id")
	return ReservationID(u), err
}

// ParseEntityID parses an entity identifier received at a trust boundary.
func ParseEntityID(s string) (EntityID, error) {
	u, err := parse(s, "entity id")
	return EntityID(u), err
}

func parse(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must not be the nil UUID", what)
	}
	return u, nil
}
