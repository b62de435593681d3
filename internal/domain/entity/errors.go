package entity

import "errors"

// Domain errors returned by the approval engine.
// Callers match them with errors.Is; every one is recoverable.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidWorkflow     = errors.New("invalid workflow")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrInvalidTarget       = errors.New("invalid forwarding target")
	ErrInvalidAllocation   = errors.New("invalid allocation")
	ErrAlreadyFinalized    = errors.New("already finalized")
	ErrStaleState          = errors.New("stale state")
)

// ErrorKind returns a short label for a domain error, or "internal" when err is not one
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInvalidWorkflow):
		return "invalid_workflow"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrInvalidAllocation):
		return "invalid_allocation"
	case errors.Is(err, ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	default:
		return "internal"
	}
}
