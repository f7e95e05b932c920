package domain

import (
	"context"
	"errors"
)

// Sync error taxonomy. Callers wrap these with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	// ErrAuthentication means credentials were rejected even after a re-login.
	ErrAuthentication = errors.New("authentication failed")

	// ErrProtocol means a response could not be decoded or decrypted.
	ErrProtocol = errors.New("protocol error")

	// ErrNoMirrorAvailable means no configured mirror answered the probe.
	ErrNoMirrorAvailable = errors.New("no mirror available")

	// ErrBatchFetchExhausted means a batch kept failing across all retry rounds.
	ErrBatchFetchExhausted = errors.New("batch fetch exhausted")

	// ErrPersistence means the snapshot could not be written or read back.
	ErrPersistence = errors.New("persistence error")

	// ErrSyncInProgress is returned when a run for the provider is already active.
	ErrSyncInProgress = errors.New("sync already running")

	// ErrProviderNotFound is returned for an unknown provider name.
	ErrProviderNotFound = errors.New("provider not found")
)

// ErrorKind maps an error onto a short label used in metrics and results.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrNoMirrorAvailable):
		return "no_mirror"
	case errors.Is(err, ErrBatchFetchExhausted):
		return "batch_exhausted"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrSyncInProgress):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}
