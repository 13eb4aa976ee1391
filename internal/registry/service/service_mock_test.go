package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/models"
	"serialregistry/internal/registry/service/mocks"
	"serialregistry/pkg/domain"
	dErrors "serialregistry/pkg/domain-errors"
	"serialregistry/pkg/platform/sentinel"
	"serialregistry/pkg/requestcontext"
)

func newMockedService(t *testing.T) (*Service, *mocks.MockRecordStore, *mocks.MockReservationStore, *mocks.MockSequenceAllocator) {
	t.Helper()
	ctrl := gomock.NewController(t)

	records := mocks.NewMockRecordStore(ctrl)
	reservations := mocks.NewMockReservationStore(ctrl)
	alloc := mocks.NewMockSequenceAllocator(ctrl)

	codec, err := code.NewCodec(code.DefaultSequenceWidth)
	require.NoError(t, err)

	return New(records, reservations, alloc, codec), records, reservations, alloc
}

func TestGenerate_ContentionPropagates(t *testing.T) {
	svc, _, _, alloc := newMockedService(t)

	alloc.EXPECT().Next(gomock.Any(), gomock.Any()).
		Return(uint64(0), dErrors.New(dErrors.CodeContention, "sequence allocation contention, retry"))

	_, err := svc.Generate(context.Background(), &models.GenerateRequest{
		EntityType: "risk",
		TenantCode: "ACME1",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContention))
}

func TestGenerate_StoreConflictOnFreshSequenceIsInternal(t *testing.T) {
	svc, records, _, alloc := newMockedService(t)

	alloc.EXPECT().Next(gomock.Any(), gomock.Any()).Return(uint64(7), nil)
	records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

	_, err := svc.Generate(context.Background(), &models.GenerateRequest{
		EntityType: "risk",
		TenantCode: "ACME1",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestVoid_ConcurrentModification(t *testing.T) {
	svc, records, _, _ := newMockedService(t)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rec := &models.RegistryRecord{
		Code:      "RISK-ACME1-2-2026-000001",
		BaseCode:  "RISK-ACME1-2-2026-000001",
		Status:    models.RecordStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	records.EXPECT().FindByCode(gomock.Any(), rec.Code).Return(rec, nil)
	records.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

	_, err := svc.Void(context.Background(), rec.Code, "stale copy")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestConfirmReservation_InsertFailureRevertsHold(t *testing.T) {
	svc, records, reservations, _ := newMockedService(t)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	res := &models.Reservation{
		ID:               domain.NewReservationID(),
		ReservedCode:     "RPT-ACME1-3-2026-000001",
		Prefix:           "RPT",
		TenantCode:       "ACME1",
		Stage:            3,
		Year:             2026,
		Sequence:         1,
		EntityType:       "report",
		Status:           models.ReservationStatusReserved,
		ExpiresAt:        now.Add(15 * time.Minute),
		ConcurrencyToken: 1,
	}
	reservations.EXPECT().FindByID(gomock.Any(), res.ID).Return(res, nil)

	confirm := reservations.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.Reservation) error {
			assert.Equal(t, models.ReservationStatusConfirmed, r.Status)
			r.ConcurrencyToken++
			return nil
		})
	records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))
	reservations.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).
		After(confirm).
		DoAndReturn(func(_ context.Context, r *models.Reservation) error {
			assert.Equal(t, models.ReservationStatusReserved, r.Status)
			assert.Nil(t, r.ConfirmedAt)
			return nil
		})

	ctx := requestcontext.WithTime(context.Background(), now)
	_, err := svc.ConfirmReservation(ctx, res.ID, domain.EntityID{}, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestConfirmReservation_StoreUnavailable(t *testing.T) {
	svc, _, reservations, _ := newMockedService(t)

	reservations.EXPECT().FindByID(gomock.Any(), gomock.Any()).
		Return(nil, sentinel.ErrUnavailable)

	ctx := requestcontext.WithTime(context.Background(), time.Now())
	_, err := svc.ConfirmReservation(ctx, domain.NewReservationID(), domain.EntityID{}, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestGenerateBatch_MidBatchFailureVoidsIssued(t *testing.T) {
	svc, records, _, alloc := newMockedService(t)

	var issued *models.RegistryRecord
	first := alloc.EXPECT().Next(gomock.Any(), gomock.Any()).Return(uint64(1), nil)
	created := records.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *models.RegistryRecord) error {
			rec.ConcurrencyToken = 1
			issued = rec
			return nil
		})
	alloc.EXPECT().Next(gomock.Any(), gomock.Any()).
		After(first).
		Return(uint64(0), dErrors.New(dErrors.CodeContention, "sequence allocation contention, retry"))

	// The aborted batch walks back the code it already issued.
	records.EXPECT().FindByCode(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, raw string) (*models.RegistryRecord, error) {
			assert.Equal(t, issued.Code, raw)
			return issued, nil
		})
	records.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).
		After(created).
		DoAndReturn(func(_ context.Context, rec *models.RegistryRecord) error {
			assert.Equal(t, models.RecordStatusVoid, rec.Status)
			assert.Equal(t, "batch generation aborted", rec.StatusReason)
			return nil
		})

	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	_, err := svc.GenerateBatch(ctx, []*models.GenerateRequest{
		{EntityType: "risk", TenantCode: "ACME1"},
		{EntityType: "risk", TenantCode: "ACME1"},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContention))
}
