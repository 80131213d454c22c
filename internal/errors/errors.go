// Package errors defines the error taxonomy shared by the event handlers.
//
// Three classes exist:
//   - invalid spec: the declared resource cannot be acted on until the user
//     fixes it; reported as an InvalidArgument diagnostic and re-examined
//     with a fixed delay.
//   - temporary: a transient condition with an explicit retry delay; the
//     only backoff control surface handlers have.
//   - everything else: unexpected failures that are re-raised unmodified so
//     the platform retry mechanism re-invokes the whole handler.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrInvalidSpec indicates the cluster spec failed validation and requires
// user intervention.
var ErrInvalidSpec = errors.New("invalid cluster spec")

// invalidSpecRetryDelay is how long to wait before re-examining a cluster
// whose spec was rejected.
const invalidSpecRetryDelay = 30 * time.Second

// defaultTemporaryDelay backs temporary conditions that did not declare a
// delay of their own, such as optimistic-concurrency conflicts.
const defaultTemporaryDelay = 5 * time.Second

// TemporaryError declares the current attempt transient-failed and requests
// a retry after Delay. It is the only way handlers signal backoff.
type TemporaryError struct {
	Message string
	Delay   time.Duration
}

func (e *TemporaryError) Error() string {
	return e.Message
}

// Temporary builds a TemporaryError with the given retry delay.
func Temporary(delay time.Duration, format string, args ...any) error {
	return &TemporaryError{
		Message: fmt.Sprintf(format, args...),
		Delay:   delay,
	}
}

// IsTemporary reports whether err is (or wraps) a TemporaryError.
func IsTemporary(err error) bool {
	var tmp *TemporaryError
	return errors.As(err, &tmp)
}

// Delay extracts the requested retry delay from a TemporaryError, or zero.
func Delay(err error) time.Duration {
	var tmp *TemporaryError
	if errors.As(err, &tmp) {
		return tmp.Delay
	}
	return 0
}

// WrapInvalidSpec wraps a validation failure so callers can distinguish it
// from unexpected errors.
func WrapInvalidSpec(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
}

// IsInvalidSpec reports whether err is a spec validation failure.
func IsInvalidSpec(err error) bool {
	return errors.Is(err, ErrInvalidSpec)
}

// IsTransientConnection checks if an error is a transient connection error
// to a member instance. This includes network timeouts, connection refused,
// DNS failures, and similar issues that a later attempt may not hit.
func IsTransientConnection(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"context deadline exceeded",
		"timeout",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"dial tcp",
		"connection closed",
		"broken pipe",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// ShouldRequeue determines if an error should trigger a flat requeue and
// after how long. Temporary errors requeue with their declared delay
// (substituting a short default when none was declared); invalid specs
// requeue with a fixed delay. Anything else reports false: unknown errors
// must be returned unmodified so the platform's exponential backoff
// re-invokes the whole handler.
func ShouldRequeue(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	var tmp *TemporaryError
	if errors.As(err, &tmp) {
		if tmp.Delay > 0 {
			return true, tmp.Delay
		}
		return true, defaultTemporaryDelay
	}

	if IsInvalidSpec(err) {
		return true, invalidSpecRetryDelay
	}

	return false, 0
}
