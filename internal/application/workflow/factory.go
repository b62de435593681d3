package workflow

import (
	"context"

	domainwf "github.com/garyjia/stock-approval/internal/domain/workflow"
)

// Guards holds the per-call checks attached to each trigger.
// A nil guard denies the trigger.
type Guards struct {
	Forward  domainwf.GuardFunc
	Approve  domainwf.GuardFunc
	Reject   domainwf.GuardFunc
	Finalize domainwf.GuardFunc
}

// approvalRules is the approval lifecycle:
// pending -> pending (forward), approved, rejected; approved -> finalized.
func approvalRules(g Guards) []domainwf.Rule {
	return []domainwf.Rule{
		{From: domainwf.StatePending, Trigger: domainwf.TriggerForward, To: domainwf.StatePending, Guard: orDeny(g.Forward)},
		{From: domainwf.StatePending, Trigger: domainwf.TriggerApprove, To: domainwf.StateApproved, Guard: orDeny(g.Approve)},
		{From: domainwf.StatePending, Trigger: domainwf.TriggerReject, To: domainwf.StateRejected, Guard: orDeny(g.Reject)},
		{From: domainwf.StateApproved, Trigger: domainwf.TriggerFinalize, To: domainwf.StateFinalized, Guard: orDeny(g.Finalize)},
	}
}

// BuildApprovalStateMachine positions the approval lifecycle at initialState
func BuildApprovalStateMachine(initialState domainwf.State, g Guards) (domainwf.StateMachine, error) {
	return domainwf.NewMachine(initialState, approvalRules(g))
}

func orDeny(g domainwf.GuardFunc) domainwf.GuardFunc {
	if g != nil {
		return g
	}
	return func(context.Context) error {
		return errNoGuard
	}
}
