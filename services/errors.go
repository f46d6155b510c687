package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("not allowed for this member")
	ErrValidation        = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflicting concurrent update")

	// ErrRoundTransition wraps any persistence failure while closing a round and
	// opening the next one. It is never returned for a round that simply has not expired.
	ErrRoundTransition = errors.New("round transition failed")
)
