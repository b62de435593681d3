package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestedItem is one line of the originating request, snapshotted at submission
type RequestedItem struct {
	ID                int64           `json:"id"`
	RequestID         string          `json:"request_id"`
	RequestType       string          `json:"request_type"`
	ItemMasterID      *int64          `json:"item_master_id,omitempty"`
	Nomenclature      string          `json:"nomenclature"`
	CustomItemName    string          `json:"custom_item_name,omitempty"`
	RequestedQuantity int             `json:"requested_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	ItemType          string          `json:"item_type"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsCustom reports whether the item has no catalog entry
func (i *RequestedItem) IsCustom() bool {
	return i.ItemType == ItemTypeCustom
}

// SearchName returns the name used for similarity matching
func (i *RequestedItem) SearchName() string {
	if i.Nomenclature != "" {
		return i.Nomenclature
	}
	return i.CustomItemName
}
