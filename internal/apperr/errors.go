// Package apperr defines the closed set of error kinds the engine returns
// across package boundaries, so callers can branch on errors.Is instead of
// string matching.
package apperr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) to add context;
// callers match with errors.Is.
var (
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
	ErrValidationFailed     = errors.New("validation failed")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrOrderConditionNotMet = errors.New("order condition not met")
	ErrPersistenceError     = errors.New("persistence error")
	ErrCancelled            = errors.New("cancelled")
	ErrInternal             = errors.New("internal error")
)
