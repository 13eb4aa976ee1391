package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"serialregistry/internal/registry/models"
	"serialregistry/pkg/domain"
	"serialregistry/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *InMemorySuite) newRecord(codeStr string, sequence uint64, version int) *models.RegistryRecord {
	base := codeStr
	if version > 1 {
		base = codeStr[:len(codeStr)-2]
	}
	return &models.RegistryRecord{
		ID:         domain.NewRecordID(),
		Code:       codeStr,
		BaseCode:   base,
		EntityType: "risk",
		Prefix:     "RISK",
		TenantCode: "ACME1",
		Stage:      2,
		Year:       2026,
		Sequence:   sequence,
		Version:    version,
		Status:     models.RecordStatusActive,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  "tester",
		UpdatedAt:  time.Now().UTC(),
	}
}

func (s *InMemorySuite) TestCreateAndFind() {
	rec := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), rec))
	s.Equal(uint64(1), rec.ConcurrencyToken)

	found, err := s.store.FindByCode(context.Background(), rec.Code)
	s.Require().NoError(err)
	s.Equal(rec.Code, found.Code)
	s.Equal(models.RecordStatusActive, found.Status)
}

func (s *InMemorySuite) TestCreateDuplicateCode() {
	rec := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), rec))

	dup := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.ErrorIs(s.store.Create(context.Background(), dup), sentinel.ErrConflict)
}

func (s *InMemorySuite) TestCreateDuplicateScopeVersion() {
	rec := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), rec))

	dup := s.newRecord("RISK-ACME1-2-2026-000001X", 1, 1)
	dup.Code = "RISK-ACME1-2-2026-000001X"
	s.ErrorIs(s.store.Create(context.Background(), dup), sentinel.ErrConflict)
}

func (s *InMemorySuite) TestFindByCodeNotFound() {
	_, err := s.store.FindByCode(context.Background(), "RISK-ACME1-2-2026-000009")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestUpdateStatusStaleToken() {
	rec := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), rec))

	stale := *rec
	rec.ApplyVoid("obsolete", "tester", time.Now().UTC())
	s.Require().NoError(s.store.UpdateStatus(context.Background(), rec))

	stale.ApplyVoid("raced", "tester", time.Now().UTC())
	s.ErrorIs(s.store.UpdateStatus(context.Background(), &stale), sentinel.ErrConflict)
}

func (s *InMemorySuite) TestCreateVersionIsAtomic() {
	v1 := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), v1))

	// A successor whose code already exists must leave v1 active.
	clash := s.newRecord("RISK-ACME1-2-2026-000002", 2, 1)
	s.Require().NoError(s.store.Create(context.Background(), clash))

	v1.ApplySupersede("", "tester", time.Now().UTC())
	bad := s.newRecord("RISK-ACME1-2-2026-000002", 1, 2)
	bad.Code = "RISK-ACME1-2-2026-000002"
	s.ErrorIs(s.store.CreateVersion(context.Background(), v1, bad), sentinel.ErrConflict)

	current, err := s.store.FindByCode(context.Background(), "RISK-ACME1-2-2026-000001")
	s.Require().NoError(err)
	s.Equal(models.RecordStatusActive, current.Status)
}

func (s *InMemorySuite) TestCreateVersionSupersedes() {
	v1 := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	s.Require().NoError(s.store.Create(context.Background(), v1))

	v1.ApplySupersede("", "tester", time.Now().UTC())
	v2 := s.newRecord("RISK-ACME1-2-2026-000001-2", 1, 2)
	v2.BaseCode = "RISK-ACME1-2-2026-000001"
	v2.PreviousVersionCode = "RISK-ACME1-2-2026-000001"
	s.Require().NoError(s.store.CreateVersion(context.Background(), v1, v2))

	history, err := s.store.ListByBase(context.Background(), "RISK-ACME1-2-2026-000001")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(models.RecordStatusSuperseded, history[0].Status)
	s.Equal(models.RecordStatusActive, history[1].Status)
}

func (s *InMemorySuite) TestFindLatestByEntity() {
	entityID := domain.EntityID(domain.NewRecordID())
	v1 := s.newRecord("RISK-ACME1-2-2026-000001", 1, 1)
	v1.EntityID = entityID
	s.Require().NoError(s.store.Create(context.Background(), v1))

	v2 := s.newRecord("RISK-ACME1-2-2026-000001-2", 1, 2)
	v2.EntityID = entityID
	v2.BaseCode = "RISK-ACME1-2-2026-000001"
	s.Require().NoError(s.store.Create(context.Background(), v2))

	latest, err := s.store.FindLatestByEntity(context.Background(), "risk", entityID)
	s.Require().NoError(err)
	s.Equal(2, latest.Version)
}

func (s *InMemorySuite) TestSearchFiltersAndPaginates() {
	for i := uint64(1); i <= 5; i++ {
		rec := s.newRecord("RISK-ACME1-2-2026-00000"+string(rune('0'+i)), i, 1)
		rec.CreatedAt = time.Date(2026, 3, int(i), 0, 0, 0, 0, time.UTC)
		s.Require().NoError(s.store.Create(context.Background(), rec))
	}
	other := s.newRecord("ASMT-ACME1-1-2026-000001", 1, 1)
	other.Prefix = "ASMT"
	other.Stage = 1
	other.EntityType = "assessment"
	s.Require().NoError(s.store.Create(context.Background(), other))

	criteria := models.SearchCriteria{Prefix: "RISK", Limit: 2, Offset: 0}
	items, total, err := s.store.Search(context.Background(), criteria)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(items, 2)
	// Newest first.
	s.Equal(uint64(5), items[0].Sequence)
}
