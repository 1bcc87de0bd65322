package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
)

// Conflictf builds a conflict error carrying a caller-facing reason. The
// sentinel sits in the unwrap chain, so errors.Is(err, ErrConflict) holds
// for both the standard library and cockroachdb/errors.
func Conflictf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConflict, format, args...)
}

// NotFoundf builds a not-found error for a missing event, seat, hold or
// reservation.
func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// Forbiddenf builds an ownership-violation error.
func Forbiddenf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrForbidden, format, args...)
}

// InvalidInputf builds a validation error, rejected before any lock or
// write.
func InvalidInputf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
