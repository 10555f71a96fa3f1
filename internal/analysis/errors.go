package analysis

import "errors"

// Sentinel errors classifying every failure the gateway can surface.
// Callers discriminate with errors.Is; wrapped variants carry detail.
var (
	// ErrInvalidInput marks malformed caller input (URL or device class).
	// It is raised before any backend call and is never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnreachable marks a network or timeout failure talking to
	// the analysis backend.
	ErrUpstreamUnreachable = errors.New("analysis backend unreachable")

	// ErrUpstreamUnavailable marks a backend that answered but rejected the
	// request or returned a malformed payload.
	ErrUpstreamUnavailable = errors.New("analysis backend unavailable")

	// ErrConnectionLost marks a status stream that dropped, or repeated poll
	// failures, before a terminal snapshot was observed. The job may still
	// be running server-side; observing again with the same id is safe.
	ErrConnectionLost = errors.New("status stream lost before terminal state")
)
