package provider

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the provider is not configured (no API key)
// or a required capability is missing. Chat requests surface it as an
// isError tool response.
var ErrUnavailable = errors.New("responses provider unavailable")

// TransportError wraps network-level failures talking to the provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a provider transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// RejectedError carries a non-2xx provider response.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRejected reports whether err is a provider rejection, returning the
// rejection when it is.
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
