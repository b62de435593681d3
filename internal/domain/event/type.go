package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalSubmitted Type = "approval.submitted"
	TypeApprovalForwarded Type = "approval.forwarded"
	TypeApprovalApproved  Type = "approval.approved"
	TypeApprovalRejected  Type = "approval.rejected"
	TypeApprovalFinalized Type = "approval.finalized"
	TypeStockIssued       Type = "stock.issued"
	TypeStockAdjusted     Type = "stock.adjusted"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalSubmitted,
		TypeApprovalForwarded,
		TypeApprovalApproved,
		TypeApprovalRejected,
		TypeApprovalFinalized,
		TypeStockIssued,
		TypeStockAdjusted:
		return true
	default:
		return false
	}
}
