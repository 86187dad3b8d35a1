package engine

import "fmt"

// ValidationError rejects malformed input; the API maps it to 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StateConflictError rejects a transition the state machine does not
// allow, or a duplicate live enrollment; the API maps it to 409.
type StateConflictError struct {
	Msg string
}

func (e StateConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return StateConflictError{Msg: fmt.Sprintf(format, args...)}
}
