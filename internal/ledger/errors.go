package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrResourceUnavailable = errors.New("resource no longer available")
	ErrStaleState          = errors.New("stale state")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrResourceInUse       = errors.New("resource in use")
	ErrInvariantViolation  = errors.New("invariant violation")
)

// RejectionError describes which precondition blocked an operation. It
// unwraps to one of the sentinel errors above.
type RejectionError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RejectionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting after a re-read may succeed.
func (e *RejectionError) Retryable() bool {
	return errors.Is(e.Err, ErrResourceUnavailable) || errors.Is(e.Err, ErrStaleState)
}

func reject(kind error, code, field, format string, args ...interface{}) *RejectionError {
	return &RejectionError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     kind,
	}
}

func notFound(entity, id string) *RejectionError {
	return reject(ErrNotFound, entity+"_not_found", entity+"_id", "%s %q does not exist", entity, id)
}

// IsRetryable reports whether err is a contention condition the caller may
// retry after re-fetching state.
func IsRetryable(err error) bool {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Retryable()
	}
	return errors.Is(err, ErrResourceUnavailable) || errors.Is(err, ErrStaleState)
}
