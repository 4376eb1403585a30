package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the requested object, container or backup
	// does not exist in the storage backend.
	ErrNotFound = errors.New("object not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible. This could be due to network issues, authentication
	// failures, or service outages. Callers may retry.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrDecryptionFailed is returned when a payload fails authenticated
	// decryption. This is a fatal integrity failure and must never be retried.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrBackupNotFound is returned when a backup identifier does not resolve
	// to a recorded backup manifest.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrPolicyInvalid is returned when a lifecycle policy fails validation at
	// registration time. An invalid policy is never evaluated.
	ErrPolicyInvalid = errors.New("invalid lifecycle policy")

	// ErrRateLimited marks a validation failure caused by the rate limiter.
	// It matches ValidationFailedError values that include a rate-limit
	// violation, so callers can distinguish throttling from other policy
	// failures via errors.Is.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotSupported is returned by backends that cannot provide an optional
	// capability, such as presigned URLs on the local filesystem backend.
	ErrNotSupported = errors.New("operation not supported by backend")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ValidationFailedError is raised by the security filter when upload or
// download validation fails. It carries every accumulated violation, in
// detection order, and short-circuits the call before the gateway is invoked.
type ValidationFailedError struct {
	// Operation is the gateway operation that was rejected ("upload",
	// "download").
	Operation string

	// Errors holds the human-readable violations, in detection order.
	Errors []string

	// RateLimited is set when one of the violations came from the rate
	// limiter.
	RateLimited bool
}

// Error implements the error interface.
func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Operation, strings.Join(e.Errors, "; "))
}

// Is reports whether the error matches ErrRateLimited when a rate-limit
// violation was among the accumulated failures.
func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrRateLimited && e.RateLimited
}
