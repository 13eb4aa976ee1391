package registry

import (
	"log/slog"

	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/handler"
	"serialregistry/internal/registry/service"
)

// Service exposes serial code issuance and lifecycle orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the registry service.
type Handler = handler.Handler

// NewService constructs the registry service with required dependencies.
func NewService(records service.RecordStore, reservations service.ReservationStore, alloc service.SequenceAllocator, codec *code.Codec, opts ...service.Option) *Service {
	return service.New(records, reservations, alloc, codec, opts...)
}

// NewHandler constructs an HTTP handler for the registry routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
