package ai

import "errors"

var (
	// ErrRateLimited indicates the backend signalled throughput exhaustion (HTTP 429).
	// Retryable later; never retried automatically.
	ErrRateLimited = errors.New("ai backend rate limited")
	// ErrQuotaExceeded indicates billing or credits are exhausted (HTTP 402).
	ErrQuotaExceeded = errors.New("ai backend quota exceeded")
	// ErrBackendUnavailable covers any other non-2xx, transport or malformed response.
	ErrBackendUnavailable = errors.New("ai backend unavailable")
	// ErrInvalidArtifactShape indicates a structured response that violates the
	// declared schema, e.g. the wrong number of quiz questions.
	ErrInvalidArtifactShape = errors.New("invalid artifact shape")
)
