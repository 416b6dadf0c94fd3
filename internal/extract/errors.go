package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the message has no text after trimming.
	ErrEmptyInput = errors.New("extract: empty input")

	// ErrMalformedResponse is returned when the model output is not JSON of
	// the expected shape. It is never retried.
	ErrMalformedResponse = errors.New("extract: malformed model response")
)

// ErrorKind classifies a transport failure.
type ErrorKind int

const (
	// KindPermanent failures propagate immediately.
	KindPermanent ErrorKind = iota
	// KindTransient failures (overload, rate limit, unavailable) are retried.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// TransportError is returned by a Generator. The Kind is decided by the
// transport from structured status information.
type TransportError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable transport failure.
func Transient(status int, err error) error {
	return &TransportError{Kind: KindTransient, Status: status, Err: err}
}

// Permanent wraps err as a non-retryable transport failure.
func Permanent(status int, err error) error {
	return &TransportError{Kind: KindPermanent, Status: status, Err: err}
}

// IsTransient reports whether err carries a transient TransportError.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == KindTransient
}
