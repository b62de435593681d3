package workflow

// State is the status column of a request approval
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateFinalized State = "finalized"
)

// IsValid returns true if the state is a known approval state
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateFinalized:
		return true
	}
	return false
}

// IsTerminal returns true if no transition may leave the state
func (s State) IsTerminal() bool {
	return s == StateRejected || s == StateFinalized
}

func (s State) String() string {
	return string(s)
}
