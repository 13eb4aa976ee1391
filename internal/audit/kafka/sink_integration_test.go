//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"serialregistry/internal/audit"
	"serialregistry/internal/audit/kafka"
	"serialregistry/pkg/testutil/containers"
)

const testTopic = "registry.audit.test"

type SinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	sink     *kafka.Sink
}

func TestSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())
	s.redpanda.CreateTopic(s.T(), testTopic)

	sink, err := kafka.Dial(s.redpanda.Brokers, testTopic)
	s.Require().NoError(err)
	s.sink = sink
	s.T().Cleanup(s.sink.Close)
}

func (s *SinkSuite) TestPublishKeysByBaseCode() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry := audit.Entry{
		ID:              uuid.New(),
		Action:          audit.ActionGenerate,
		ActorUserID:     "user-42",
		ActorTenantCode: "ACME1",
		Timestamp:       time.Now().UTC().Truncate(time.Microsecond),
		RelatedBaseCode: "RISK-ACME1-2-2026-000001",
		Details:         map[string]string{"entity_type": "risk"},
	}
	s.Require().NoError(s.sink.Publish(ctx, entry))

	consumer := s.redpanda.NewClient(s.T(),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	rec := records[len(records)-1]
	s.Equal(entry.RelatedBaseCode, string(rec.Key))

	var got audit.Entry
	s.Require().NoError(json.Unmarshal(rec.Value, &got))
	s.Equal(entry.ID, got.ID)
	s.Equal(audit.ActionGenerate, got.Action)
	s.Equal("risk", got.Details["entity_type"])
}
