package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about stored resources, not validation
// failures:
// - ErrNotFound: record, reservation, or counter does not exist
// - ErrConflict: unique constraint or concurrency token mismatch
// - ErrExpired: reservation past its expiry
// - ErrInvalidState: record or reservation in wrong status for the operation
// - ErrUnavailable: durable store unreachable
//
// For validation errors (bad input, malformed codes), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
