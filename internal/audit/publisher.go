package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store persists audit entries. It is append-only; implementations expose
// no update or delete path.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByBaseCode(ctx context.Context, baseCode string) ([]Entry, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]Entry, int, error)
}

// Sink receives a copy of every entry after it is persisted, for fan-out to
// external systems (Kafka, SIEM). Sink failures are the caller's problem to
// log, never to propagate.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Publisher captures structured audit entries. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger
}

type Option func(p *Publisher)

// WithSink registers a fan-out target for persisted entries.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sink)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists the entry and fans it out to sinks. Sink errors are not
// propagated; the store copy is authoritative and a state change never
// waits on an external system.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, entry); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, entry); err != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"action", string(entry.Action),
				"base_code", entry.RelatedBaseCode,
				"error", err,
			)
		}
	}
	return nil
}

// ListByBaseCode returns the trail for one base code family, oldest first.
func (p *Publisher) ListByBaseCode(ctx context.Context, baseCode string) ([]Entry, error) {
	return p.store.ListByBaseCode(ctx, baseCode)
}

// Search pages through the trail with optional filters.
func (p *Publisher) Search(ctx context.Context, criteria SearchCriteria) ([]Entry, int, error) {
	criteria.Normalize()
	return p.store.Search(ctx, criteria)
}
