package entity

import "time"

// ItemMaster is a catalog entry
type ItemMaster struct {
	ID                int64     `json:"id"`
	ItemCode          string    `json:"item_code"`
	Nomenclature      string    `json:"nomenclature"`
	Description       string    `json:"description"`
	Specifications    string    `json:"specifications"`
	UnitOfMeasurement string    `json:"unit_of_measurement"`
	Category          string    `json:"category"`
	Subcategory       string    `json:"subcategory"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

// StockRecord is a stock row joined with its catalog entry
type StockRecord struct {
	InventoryID       int64     `json:"inventory_id"`
	ItemMasterID      int64     `json:"item_master_id"`
	ItemCode          string    `json:"item_code"`
	Nomenclature      string    `json:"nomenclature"`
	Description       string    `json:"description"`
	Specifications    string    `json:"specifications"`
	UnitOfMeasurement string    `json:"unit_of_measurement"`
	Category          string    `json:"category"`
	Subcategory       string    `json:"subcategory"`
	CurrentQuantity   int       `json:"current_stock"`
	ReservedQuantity  int       `json:"reserved_stock"`
	ReorderPoint      int       `json:"reorder_level"`
	IsActive          bool      `json:"is_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AvailableQuantity is current stock minus what is already reserved
func (s *StockRecord) AvailableQuantity() int {
	return s.CurrentQuantity - s.ReservedQuantity
}

// InventoryMatch is a candidate stock record scored against a requested item
type InventoryMatch struct {
	StockRecord
	AvailableStock int     `json:"available_quantity"`
	MatchScore     float64 `json:"match_score"`
}

// ItemWithMatches groups the candidates found for one requested item
type ItemWithMatches struct {
	RequestedItemID       int64             `json:"requested_item_id"`
	RequestedNomenclature string            `json:"requested_nomenclature"`
	RequestedQuantity     int               `json:"requested_quantity"`
	CustomItemName        string            `json:"custom_item_name,omitempty"`
	ItemType              string            `json:"item_type"`
	InventoryMatches      []*InventoryMatch `json:"inventory_matches"`
	MatchCount            int               `json:"match_count"`
	CanFulfill            bool              `json:"can_fulfill"`
	TotalAvailable        int               `json:"total_available"`
}

// MatchSummary aggregates fulfilment prospects across a request
type MatchSummary struct {
	TotalRequestedItems  int     `json:"total_requested_items"`
	FullyFulfillable     int     `json:"fully_fulfillable"`
	PartiallyFulfillable int     `json:"partially_fulfillable"`
	NeedsProcurement     int     `json:"needs_procurement"`
	FulfillmentRate      float64 `json:"fulfillment_rate"`
}

// MatchResult is the matcher output for a whole request
type MatchResult struct {
	Items   []*ItemWithMatches `json:"items_with_matches"`
	Summary MatchSummary       `json:"summary"`
}

// InventoryLog records a stock movement
type InventoryLog struct {
	ID              int64     `json:"id"`
	InventoryID     int64     `json:"inventory_id"`
	ApprovalID      *int64    `json:"approval_id,omitempty"`
	MovementType    string    `json:"movement_type"`
	Reference       string    `json:"reference,omitempty"`
	QuantityBefore  int       `json:"quantity_before"`
	QuantityAfter   int       `json:"quantity_after"`
	QuantityChanged int       `json:"quantity_changed"`
	PerformedBy     string    `json:"performed_by"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
