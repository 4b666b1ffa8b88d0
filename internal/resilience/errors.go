// Package resilience classifies source failures and provides retry and
// circuit-breaker patterns for external data source calls.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// ErrNotFoundUpstream marks an affirmative negative result: the source was
// reachable and has no data for the identifier. Not retryable, not a failure.
var ErrNotFoundUpstream = eris.New("not found upstream")

// TransientError wraps an error that is safe to retry on a later pass
// (rate limit, 5xx, network timeout). Within a single discovery job a
// transient failure is absorbed as a field-level gap, never retried.
type TransientError struct {
	Source     string
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	if e.Source != "" {
		return e.Source + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps a source error as transient with an optional HTTP
// status code.
func NewTransientError(source string, err error, statusCode int) *TransientError {
	return &TransientError{Source: source, Err: err, StatusCode: statusCode}
}

// IsNotFound reports whether the error chain carries the upstream
// negative-result sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFoundUpstream)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"context deadline exceeded",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for status codes that indicate a
// transient server-side condition.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
