package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationDecision is an approver's disposition for (part of) one requested item
type AllocationDecision struct {
	RequestedItemID             int64  `json:"requested_item_id"`
	DecisionType                string `json:"decision_type"`
	InventoryItemID             *int64 `json:"inventory_item_id,omitempty"`
	AllocatedQuantity           int    `json:"allocated_quantity,omitempty"`
	ProcurementRequiredQuantity int    `json:"procurement_required_quantity,omitempty"`
	RejectionReason             string `json:"rejection_reason,omitempty"`
}

// StockAllocation is a quantity drawn from one stock record
type StockAllocation struct {
	InventoryID int64 `json:"inventory_id"`
	Quantity    int   `json:"quantity"`
}

// ItemDisposition is the committed outcome for one requested item.
// FulfilledQuantity + ProcurementQuantity + RejectedQuantity == RequestedQuantity.
type ItemDisposition struct {
	ID                  int64             `json:"id"`
	ApprovalID          int64             `json:"approval_id"`
	RequestedItemID     int64             `json:"requested_item_id"`
	RequestedQuantity   int               `json:"requested_quantity"`
	FulfilledQuantity   int               `json:"fulfilled_quantity"`
	ProcurementQuantity int               `json:"procurement_quantity"`
	RejectedQuantity    int               `json:"rejected_quantity"`
	Allocations         []StockAllocation `json:"allocations"`
	RejectionReason     string            `json:"rejection_reason,omitempty"`
	ProcurementEstimate decimal.Decimal   `json:"procurement_estimate"`
	Issued              bool              `json:"issued"`
	IssuedAt            *time.Time        `json:"issued_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Balanced reports whether the disposition accounts for the full requested quantity
func (d *ItemDisposition) Balanced() bool {
	return d.FulfilledQuantity+d.ProcurementQuantity+d.RejectedQuantity == d.RequestedQuantity
}
