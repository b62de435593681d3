package entity

// Approval status constants for RequestApproval
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusFinalized = "finalized"
)

// Action type constants for ApprovalHistory
const (
	ActionForwarded = "forwarded"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionFinalized = "finalized"
)

// Item type constants for RequestedItem
const (
	ItemTypeInventory = "inventory"
	ItemTypeCustom    = "custom"
)

// Decision type constants for AllocationDecision
const (
	DecisionApproveFromStock      = "APPROVE_FROM_STOCK"
	DecisionApproveForProcurement = "APPROVE_FOR_PROCUREMENT"
	DecisionReject                = "REJECT"
)

// Movement type constants for InventoryLog
const (
	MovementReserve = "RESERVE"
	MovementIssue   = "ISSUE"
	MovementAdjust  = "ADJUST"
)

// Request type used by the default stock issuance workflow
const RequestTypeStockIssuance = "stock_issuance"

// IsActiveStatus reports whether an approval in this status can still change
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusApproved
}

// IsTerminalStatus reports whether no further history may be appended
func IsTerminalStatus(status string) bool {
	return status == StatusRejected || status == StatusFinalized
}

// IsValidDecisionType reports whether the decision type is known
func IsValidDecisionType(decisionType string) bool {
	switch decisionType {
	case DecisionApproveFromStock, DecisionApproveForProcurement, DecisionReject:
		return true
	default:
		return false
	}
}
