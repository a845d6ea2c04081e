package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when no valid identity backs the request.
var ErrUnauthenticated = errors.New("authentication required")

// ForbiddenError indicates the caller lacks the right to perform Action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// ValidationError reports bad input or a rejected state change.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// Invalidf builds a ValidationError with a formatted message.
func Invalidf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}
