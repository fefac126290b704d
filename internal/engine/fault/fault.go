// Package fault defines the engine-wide error taxonomy.
//
// Each error carries a stable machine-readable kind (a sentinel the error is
// marked with) plus human context. Callers classify with the Is* helpers and
// never by message text.
package fault

import "github.com/cockroachdb/errors"

// Kind sentinels. Errors produced by the constructors below are marked with
// exactly one of these.
var (
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflicting state")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrPolicy        = errors.New("forbidden by policy")
	ErrNotFound      = errors.New("not found")
)

// Validationf returns a ValidationError: malformed input, rejected before
// touching storage.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// Conflictf returns a ConflictError: duplicate insertion within the dejavu
// window, or a position operation whose target changed concurrently.
func Conflictf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// QuotaExceededf returns a QuotaExceededError: admission refused.
func QuotaExceededf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrQuotaExceeded)
}

// Policyf returns a PolicyError: the action is forbidden by playlist flags or
// voting rules.
func Policyf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrPolicy)
}

// NotFoundf returns a NotFoundError: unknown playlist, entry or criteria set.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// NotFound marks an existing error as a NotFoundError, keeping its cause.
func NotFound(err error) error {
	return errors.Mark(err, ErrNotFound)
}

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
func IsQuotaExceeded(err error) bool { return errors.Is(err, ErrQuotaExceeded) }
func IsPolicy(err error) bool        { return errors.Is(err, ErrPolicy) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
