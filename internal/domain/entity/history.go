package entity

import "time"

// ApprovalHistory is one immutable step in an approval's audit trail
type ApprovalHistory struct {
	ID            int64     `json:"id"`
	ApprovalID    int64     `json:"approval_id"`
	StepNumber    int       `json:"step_number"`
	ActionType    string    `json:"action_type"`
	ActionBy      string    `json:"action_by"`
	ForwardedFrom string    `json:"forwarded_from,omitempty"`
	ForwardedTo   string    `json:"forwarded_to,omitempty"`
	Comments      string    `json:"comments,omitempty"`
	ActionDate    time.Time `json:"action_date"`
	IsCurrentStep bool      `json:"is_current_step"`
}

// DashboardCounts summarises approvals from one user's point of view
type DashboardCounts struct {
	Pending       int                `json:"pending"`
	Approved      int                `json:"approved"`
	Rejected      int                `json:"rejected"`
	Finalized     int                `json:"finalized"`
	RecentActions []*ApprovalHistory `json:"recent_actions"`
}
