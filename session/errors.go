package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated   = errors.New("session: not authenticated")
	ErrPermissionDenied   = errors.New("session: permission denied")
	ErrResourceNotFound   = errors.New("session: resource not found")
	ErrInvalidRequestData = errors.New("session: invalid request data")
	ErrUnwantedResponse   = errors.New("session: unwanted response")
	ErrMaxRetries         = errors.New("session: exceeded max retries")
	ErrInvalidKey         = errors.New("session: invalid signing key")
)

// maxBodyInError bounds how much of a response body ends up in Error().
const maxBodyInError = 512

// ResponseError is a non-2xx response. Kind is one of the sentinels above
// and errors.Is matches it.
type ResponseError struct {
	Kind       error
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return fmt.Sprintf("%v: %s %s: %d %s", e.Kind, e.Method, e.URL, e.StatusCode, body)
}

func (e *ResponseError) Unwrap() error { return e.Kind }

func classify(status int) error {
	switch status {
	case 403:
		return ErrPermissionDenied
	case 404:
		return ErrResourceNotFound
	case 400, 409:
		return ErrInvalidRequestData
	default:
		return ErrUnwantedResponse
	}
}
