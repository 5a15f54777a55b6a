package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so callers can tell a refused write from a failed one.
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	// ErrUnavailable means the store is unreachable or short-circuited by a breaker.
	ErrUnavailable = errors.New("unavailable")
)
