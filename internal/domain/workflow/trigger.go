package workflow

// Trigger represents an approver action that can cause a state transition
type Trigger string

const (
	TriggerForward  Trigger = "FORWARD"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerFinalize Trigger = "FINALIZE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// ActionType returns the history action recorded when the trigger fires
func (t Trigger) ActionType() string {
	switch t {
	case TriggerForward:
		return "forwarded"
	case TriggerApprove:
		return "approved"
	case TriggerReject:
		return "rejected"
	case TriggerFinalize:
		return "finalized"
	default:
		return ""
	}
}
