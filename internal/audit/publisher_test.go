package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialregistry/internal/audit"
	"serialregistry/internal/audit/store/memory"
)

type recordingSink struct {
	entries []audit.Entry
	err     error
}

func (s *recordingSink) Publish(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return s.err
}

func TestEmitAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := audit.NewPublisher(store)

	err := pub.Emit(ctx, audit.Entry{Action: audit.ActionGenerate, RelatedBaseCode: "RISK-ACME1-2-2026-000001"})
	require.NoError(t, err)

	entries, err := pub.ListByBaseCode(ctx, "RISK-ACME1-2-2026-000001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestEmitFansOutToSinks(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	pub := audit.NewPublisher(memory.New(), audit.WithSink(sink))

	require.NoError(t, pub.Emit(ctx, audit.Entry{Action: audit.ActionVoid}))
	require.Len(t, sink.entries, 1)
	assert.Equal(t, audit.ActionVoid, sink.entries[0].Action)
}

func TestEmitLogsAndSwallowsSinkFailure(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{err: errors.New("broker down")}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))
	pub := audit.NewPublisher(memory.New(),
		audit.WithSink(sink),
		audit.WithLogger(logger),
	)

	err := pub.Emit(ctx, audit.Entry{Action: audit.ActionGenerate, RelatedBaseCode: "A"})
	require.NoError(t, err)

	// The store copy still lands, and the dropped fan-out leaves a trace.
	entries, err := pub.ListByBaseCode(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Contains(t, logBuf.String(), "audit sink publish failed")
	assert.Contains(t, logBuf.String(), "broker down")
}
