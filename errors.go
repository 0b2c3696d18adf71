package arcgis

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Not found errors.
	ErrJobNotFound   = errors.New("arcgis: job not found")
	ErrLayerNotFound = errors.New("arcgis: layer not found")

	// State errors.
	ErrResultNotReady = errors.New("arcgis: job result not ready")
	ErrStatusUnknown  = errors.New("arcgis: unknown job status")

	// Protocol errors.
	ErrInconsistentRollback = errors.New("arcgis: rollback response reports persisted items")
	ErrUncorrelatedResult   = errors.New("arcgis: edit result cannot be correlated to a request item")
)

// Kind classifies a failure for retry and propagation decisions.
// Only KindNetwork and KindRateLimit feed the automatic retry path;
// every other kind is surfaced to the caller immediately.
type Kind int

const (
	// KindValidation is a local or remote 4xx shape/parameter failure.
	KindValidation Kind = iota
	// KindNetwork is a transport-level failure: connection errors,
	// timeouts, and 5xx responses. Retryable.
	KindNetwork
	// KindRateLimit is a 429 or an explicit backoff hint. Retryable.
	KindRateLimit
	// KindNotFound means the server does not know the referenced
	// entity (expired job handle, missing layer).
	KindNotFound
	// KindPermission is an authentication or authorization failure.
	KindPermission
	// KindNotReady means a job result was requested before the job
	// reached Succeeded.
	KindNotReady
	// KindRemoteFailure means the remote job itself failed; its
	// messages carry the detail.
	KindRemoteFailure
	// KindTimeout is a local poll deadline expiry. The remote job may
	// still be running.
	KindTimeout
)

// String returns the kind name used in logs and error text.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindNotReady:
		return "not_ready"
	case KindRemoteFailure:
		return "remote_failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried
// automatically.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimit
}

// Error is a classified SDK failure. Op names the operation that
// failed ("job.submit", "edit.apply"), StatusCode is the HTTP status
// when one was received, and RetryAfter carries the server's backoff
// hint for KindRateLimit.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("arcgis: %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain. Errors that carry no
// classification default to KindNetwork so unknown transport faults
// stay retryable rather than being silently terminal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNetwork
}

// Retryable reports whether err may be retried automatically.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}

// RetryAfter returns the server-provided backoff hint from an error
// chain, or zero if none was given.
func RetryAfter(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// ClassifyStatus maps a non-2xx HTTP status code onto the taxonomy.
func ClassifyStatus(statusCode int) Kind {
	switch {
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindNetwork
	case statusCode == 401 || statusCode == 403:
		return KindPermission
	case statusCode == 404:
		return KindNotFound
	case statusCode >= 400:
		return KindValidation
	default:
		return KindNetwork
	}
}
