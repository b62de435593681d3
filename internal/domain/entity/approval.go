package entity

import "time"

// RequestApproval tracks one submitted request through its workflow
type RequestApproval struct {
	ID                int64      `json:"id"`
	RequestID         string     `json:"request_id"`
	RequestType       string     `json:"request_type"`
	WorkflowID        int64      `json:"workflow_id"`
	CurrentStatus     string     `json:"current_status"`
	CurrentApproverID string     `json:"current_approver_id"`
	SubmittedBy       string     `json:"submitted_by"`
	SubmittedDate     time.Time  `json:"submitted_date"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedDate      *time.Time `json:"approved_date,omitempty"`
	FinalizedBy       string     `json:"finalized_by,omitempty"`
	FinalizedDate     *time.Time `json:"finalized_date,omitempty"`
	RejectedBy        string     `json:"rejected_by,omitempty"`
	RejectedDate      *time.Time `json:"rejected_date,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsActive reports whether the approval can still transition
func (a *RequestApproval) IsActive() bool {
	return IsActiveStatus(a.CurrentStatus)
}
