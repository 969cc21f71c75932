package repositories

import (
	"context"
	"errors"
	"fmt"
)

// Error implements RepositoryError for the gateway and local stores.
type Error struct {
	op          string
	err         error
	detail      string
	notFound    bool
	invalid     bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Detail returns the user-visible reason reported by the remote side, if any.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	return e.detail
}

// IsNotFound reports whether the error represents a missing resource.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsInvalid reports whether the remote side rejected the request as invalid.
func (e *Error) IsInvalid() bool {
	return e != nil && e.invalid
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// NewNotFoundError builds a not-found error carrying the remote detail.
func NewNotFoundError(op, detail string) *Error {
	return &Error{op: op, err: errors.New(detailOr(detail, "not found")), detail: detail, notFound: true}
}

// NewInvalidError builds a validation error carrying the remote detail.
func NewInvalidError(op, detail string) *Error {
	return &Error{op: op, err: errors.New(detailOr(detail, "invalid request")), detail: detail, invalid: true}
}

// NewUnavailableError builds a transient error, keeping the cause for errors.Is.
func NewUnavailableError(op, detail string, cause error) *Error {
	if cause == nil {
		cause = errors.New(detailOr(detail, "unavailable"))
	}
	return &Error{op: op, err: cause, detail: detail, unavailable: true}
}

// WrapError annotates errors with repository semantics. Context cancellations are passed through
// and uncategorised failures are treated as unavailable.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return &Error{op: op, err: err, unavailable: true}
}

// ErrorDetail extracts the remote detail from err when it is a repository error.
func ErrorDetail(err error) string {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.Detail()
	}
	return ""
}

func detailOr(detail, fallback string) string {
	if detail != "" {
		return detail
	}
	return fallback
}
