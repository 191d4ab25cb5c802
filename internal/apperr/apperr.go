// Package apperr holds the error taxonomy shared by the core services.
//
// Services wrap one of the sentinels with context:
//
//	return fmt.Errorf("%w: group %d", apperr.ErrNotFound, groupID)
//
// and callers compare with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrConflict           = errors.New("conflict")
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthenticated    = errors.New("unauthenticated")

	// ErrPartialWrite means a multi-entity write stopped after some entities
	// were already saved. The reconciliation pass repairs the leftovers.
	ErrPartialWrite = errors.New("partial write")
)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func PermissionDenied(format string, args ...any) error {
	return wrap(ErrPermissionDenied, format, args...)
}

func InvariantViolation(format string, args ...any) error {
	return wrap(ErrInvariantViolation, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func BadRequest(format string, args ...any) error {
	return wrap(ErrBadRequest, format, args...)
}

func Unauthenticated(format string, args ...any) error {
	return wrap(ErrUnauthenticated, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsDomain reports whether err belongs to the taxonomy above, as opposed to
// an infrastructure failure. A partial write is never a domain error, even
// when the step that stopped it failed with one.
func IsDomain(err error) bool {
	if errors.Is(err, ErrPartialWrite) {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrUnauthenticated)
}
