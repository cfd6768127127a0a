package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates an API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedResponse indicates a provider payload did not parse to the
	// expected structured result. Treated like a capped-retry failure, never
	// silently defaulted to a fabricated success value.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrStoreUnavailable indicates a storage-layer failure. Storage errors
	// are fatal and abort the run.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownStage indicates a stage name that is not part of the
	// pipeline.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNotifierUnavailable indicates a notification channel is not
	// configured.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
)

// ErrorKind classifies an external-call failure for the retry executor.
type ErrorKind int

const (
	// KindTransient covers timeouts, connection resets, 5xx responses and
	// overload signals. Retried with linear backoff up to the attempt
	// ceiling.
	KindTransient ErrorKind = iota
	// KindRateLimited covers provider rate limiting. Retried after a
	// cooldown substantially longer than the transient backoff, honouring a
	// provider-supplied reset hint when present.
	KindRateLimited
	// KindFatal covers malformed requests, auth failures and storage
	// corruption. Never retried.
	KindFatal
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier maps an external-call error to its retry class.
type Classifier func(error) ErrorKind

// RateLimitError carries a provider-supplied reset hint. The retry executor
// waits until ResetAt when present instead of the fixed cooldown.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// MalformedResponseError reports a payload that did not parse to the
// expected structured result, keeping a truncated copy for the diagnostic
// failure log.
type MalformedResponseError struct {
	Raw string
}

// rawKeep bounds how much of a bad payload is retained.
const rawKeep = 500

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Raw
}

func (e *MalformedResponseError) Unwrap() error {
	return ErrMalformedResponse
}

// NewMalformedResponse wraps a raw payload as a malformed-response error,
// truncating it to a loggable size.
func NewMalformedResponse(raw string) error {
	if len(raw) > rawKeep {
		raw = raw[:rawKeep]
	}
	return &MalformedResponseError{Raw: raw}
}

// RawResponse extracts the retained payload from an error chain, if any.
func RawResponse(err error) string {
	var m *MalformedResponseError
	if errors.As(err, &m) {
		return m.Raw
	}
	return ""
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the provider reset hint from an error chain.
// The zero time means no hint was supplied.
func RetryAfter(err error) time.Time {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.ResetAt
	}
	return time.Time{}
}
