package inventory

import (
	"sort"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// MatchItems scores catalog stock against each requested item.
// Inventory items take exact candidates by item master id first, then any other
// active stock whose name scores at least MatchThreshold. Custom items never match.
func MatchItems(items []*entity.RequestedItem, catalog []*entity.StockRecord) *entity.MatchResult {
	result := &entity.MatchResult{
		Items: make([]*entity.ItemWithMatches, 0, len(items)),
	}

	for _, item := range items {
		matches := candidatesFor(item, catalog)

		total := 0
		for _, m := range matches {
			total += m.AvailableStock
		}

		result.Items = append(result.Items, &entity.ItemWithMatches{
			RequestedItemID:       item.ID,
			RequestedNomenclature: item.Nomenclature,
			RequestedQuantity:     item.RequestedQuantity,
			CustomItemName:        item.CustomItemName,
			ItemType:              item.ItemType,
			InventoryMatches:      matches,
			MatchCount:            len(matches),
			CanFulfill:            !item.IsCustom() && total >= item.RequestedQuantity,
			TotalAvailable:        total,
		})
	}

	result.Summary = Summarize(result.Items)
	return result
}

func candidatesFor(item *entity.RequestedItem, catalog []*entity.StockRecord) []*entity.InventoryMatch {
	matches := make([]*entity.InventoryMatch, 0)
	if item.IsCustom() {
		return matches
	}

	seen := make(map[int64]bool)
	name := item.SearchName()

	for _, rec := range catalog {
		if !rec.IsActive || rec.AvailableQuantity() <= 0 || seen[rec.InventoryID] {
			continue
		}

		var score float64
		if item.ItemMasterID != nil && *item.ItemMasterID == rec.ItemMasterID {
			score = ExactMatchScore
		} else {
			score = Similarity(name, rec.Nomenclature)
			if score < MatchThreshold {
				continue
			}
		}

		seen[rec.InventoryID] = true
		matches = append(matches, &entity.InventoryMatch{
			StockRecord:    *rec,
			AvailableStock: rec.AvailableQuantity(),
			MatchScore:     score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		if matches[i].AvailableStock != matches[j].AvailableStock {
			return matches[i].AvailableStock > matches[j].AvailableStock
		}
		return matches[i].InventoryID < matches[j].InventoryID
	})

	return matches
}

// Summarize buckets items into disjoint fulfilment categories.
// Fully: the top candidate alone covers the quantity. Partially: some stock exists.
// Needs procurement: nothing available.
func Summarize(items []*entity.ItemWithMatches) entity.MatchSummary {
	summary := entity.MatchSummary{TotalRequestedItems: len(items)}

	for _, item := range items {
		switch {
		case len(item.InventoryMatches) > 0 && item.InventoryMatches[0].AvailableStock >= item.RequestedQuantity:
			summary.FullyFulfillable++
		case item.TotalAvailable > 0:
			summary.PartiallyFulfillable++
		default:
			summary.NeedsProcurement++
		}
	}

	if summary.TotalRequestedItems > 0 {
		summary.FulfillmentRate = float64(summary.FullyFulfillable) / float64(summary.TotalRequestedItems)
	}

	return summary
}
