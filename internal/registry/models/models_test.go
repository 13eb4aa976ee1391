package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialregistry/internal/registry/code"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
)

var testTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func activeRecord() *RegistryRecord {
	return &RegistryRecord{
		ID:         domain.NewRecordID(),
		Code:       "RISK-ACME1-2-2026-000001",
		BaseCode:   "RISK-ACME1-2-2026-000001",
		EntityType: "risk",
		Prefix:     "RISK",
		TenantCode: "ACME1",
		Stage:      2,
		Year:       2026,
		Sequence:   1,
		Version:    1,
		Status:     RecordStatusActive,
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
}

func TestRecordSupersedeTransition(t *testing.T) {
	rec := activeRecord()
	require.NoError(t, rec.CanSupersede())

	rec.ApplySupersede("scope widened", "user-42", testTime)
	assert.Equal(t, RecordStatusSuperseded, rec.Status)
	assert.Equal(t, "scope widened", rec.StatusReason)
	assert.Equal(t, "user-42", rec.UpdatedBy)

	err := rec.CanSupersede()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRecordSupersedeDefaultReason(t *testing.T) {
	rec := activeRecord()
	rec.ApplySupersede("", "user-42", testTime)
	assert.Equal(t, "superseded by new version", rec.StatusReason)
}

func TestRecordSupersedeAtMaxVersion(t *testing.T) {
	rec := activeRecord()
	rec.Version = code.MaxVersion

	err := rec.CanSupersede()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRecordVoidTransition(t *testing.T) {
	rec := activeRecord()
	require.NoError(t, rec.CanVoid())

	rec.ApplyVoid("issued in error", "user-42", testTime)
	assert.Equal(t, RecordStatusVoid, rec.Status)
	assert.False(t, rec.IsActive())

	err := rec.CanVoid()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestSupersededRecordCannotBeVoided(t *testing.T) {
	rec := activeRecord()
	rec.ApplySupersede("", "user-42", testTime)

	err := rec.CanVoid()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func reservedHold() *Reservation {
	return &Reservation{
		ID:           domain.NewReservationID(),
		ReservedCode: "RPT-ACME1-3-2026-000001",
		Prefix:       "RPT",
		TenantCode:   "ACME1",
		Stage:        3,
		Year:         2026,
		Sequence:     1,
		EntityType:   "report",
		Status:       ReservationStatusReserved,
		ExpiresAt:    testTime.Add(15 * time.Minute),
		CreatedAt:    testTime,
	}
}

func TestReservationExpiryEdge(t *testing.T) {
	res := reservedHold()

	assert.False(t, res.IsExpired(testTime))
	assert.False(t, res.IsExpired(res.ExpiresAt.Add(-time.Nanosecond)))
	// The deadline itself is already expired.
	assert.True(t, res.IsExpired(res.ExpiresAt))
	assert.True(t, res.IsExpired(res.ExpiresAt.Add(time.Hour)))
}

func TestReservationConfirmTransition(t *testing.T) {
	res := reservedHold()
	require.NoError(t, res.CanConfirm(testTime))

	res.ApplyConfirm(testTime)
	assert.Equal(t, ReservationStatusConfirmed, res.Status)
	require.NotNil(t, res.ConfirmedAt)
	assert.Equal(t, testTime, *res.ConfirmedAt)

	err := res.CanConfirm(testTime)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestReservationConfirmAfterDeadline(t *testing.T) {
	res := reservedHold()
	err := res.CanConfirm(res.ExpiresAt)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestReservationVoidTransition(t *testing.T) {
	res := reservedHold()
	require.NoError(t, res.CanVoid(testTime))

	res.ApplyVoid(testTime)
	assert.Equal(t, ReservationStatusVoided, res.Status)
	require.NotNil(t, res.VoidedAt)

	err := res.CanVoid(testTime)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestReservationExpireTransition(t *testing.T) {
	res := reservedHold()
	res.ApplyExpire()
	assert.Equal(t, ReservationStatusExpired, res.Status)

	err := res.CanConfirm(testTime)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestSearchCriteriaNormalize(t *testing.T) {
	c := SearchCriteria{}
	c.Normalize()
	assert.Equal(t, 100, c.Limit)
	assert.Equal(t, 0, c.Offset)

	c = SearchCriteria{Limit: 9999, Offset: -5}
	c.Normalize()
	assert.Equal(t, 500, c.Limit)
	assert.Equal(t, 0, c.Offset)
}

func TestGenerateRequestValidate(t *testing.T) {
	req := &GenerateRequest{EntityType: " risk ", TenantCode: "acme1"}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "risk", req.EntityType)
	assert.Equal(t, "ACME1", req.TenantCode)

	bad := &GenerateRequest{EntityType: "risk", TenantCode: "ACME1", Year: 2019}
	bad.Normalize()
	assert.Error(t, bad.Validate())
}
