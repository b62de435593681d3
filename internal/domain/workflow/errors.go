package workflow

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrTerminalState     = errors.New("state is terminal")
	// ErrGuardFailed wraps the first refusal when every matching rule's guard refused
	ErrGuardFailed = errors.New("guard condition failed")
	ErrInvalidRule = errors.New("invalid transition rule")
)
