package flightcache

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable marks failures talking to the shared store.
// The core never retries them and has no degraded mode.
var ErrBackendUnavailable = errors.New("flightcache: backend unavailable")

// BackendError carries the failed operation and key.
// errors.Is matches both ErrBackendUnavailable and the underlying cause.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("flightcache: %s: backend unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("flightcache: %s %q: backend unavailable: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnavailable}
	}
	return []error{ErrBackendUnavailable, e.Err}
}
