package entity

import "time"

// WorkflowDefinition binds a request type to its set of approvers
type WorkflowDefinition struct {
	ID           int64     `json:"id"`
	WorkflowName string    `json:"workflow_name"`
	RequestType  string    `json:"request_type"`
	OfficeID     *int64    `json:"office_id,omitempty"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkflowApprover is a (workflow, user) pair with additive capability flags.
// ApproverRole is a free-text label; the engine only reads the flags.
type WorkflowApprover struct {
	ID            int64     `json:"id"`
	WorkflowID    int64     `json:"workflow_id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	ApproverRole  string    `json:"approver_role"`
	ApproverLevel int       `json:"approver_level"`
	CanApprove    bool      `json:"can_approve"`
	CanForward    bool      `json:"can_forward"`
	CanFinalize   bool      `json:"can_finalize"`
	CreatedAt     time.Time `json:"created_at"`
}

// CanReceiveForward reports whether the approver may be offered as a forwarding target
func (a *WorkflowApprover) CanReceiveForward() bool {
	return a.CanApprove || a.CanFinalize
}

// CanStart reports whether the approver may be the first to act on a submission
func (a *WorkflowApprover) CanStart() bool {
	return a.CanApprove || a.CanForward
}

// FindApprover returns the approver entry for userID, or nil
func FindApprover(approvers []*WorkflowApprover, userID string) *WorkflowApprover {
	for _, a := range approvers {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

// InitialApprover returns the lowest-ordered approver that can approve or forward.
// approvers must already be ordered by level.
func InitialApprover(approvers []*WorkflowApprover) *WorkflowApprover {
	for _, a := range approvers {
		if a.CanStart() {
			return a
		}
	}
	return nil
}

// FirstFinalizer returns the lowest-ordered approver holding can_finalize, or nil
func FirstFinalizer(approvers []*WorkflowApprover) *WorkflowApprover {
	for _, a := range approvers {
		if a.CanFinalize {
			return a
		}
	}
	return nil
}
