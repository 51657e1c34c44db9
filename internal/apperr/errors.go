package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrMalformedRow = errors.New("malformed row")
	ErrValidation   = errors.New("validation error")
	ErrShutdown     = errors.New("cache is shut down")
	ErrCycle        = errors.New("branch would create a cycle")
)

// ValidationError reports a rejected query together with the offending token.
type ValidationError struct {
	Token  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Token == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (token %q)", e.Reason, e.Token)
}

// Is makes errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation returns a new *ValidationError.
func Validation(token, format string, args ...any) *ValidationError {
	return &ValidationError{Token: token, Reason: fmt.Sprintf(format, args...)}
}
