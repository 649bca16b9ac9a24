package model

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is (or wraps) a transaction conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
