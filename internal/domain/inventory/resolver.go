package inventory

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// StockSnapshot maps inventory id to the quantity available at validation time
type StockSnapshot map[int64]int

// SnapshotOf builds a StockSnapshot from stock records
func SnapshotOf(records []*entity.StockRecord) StockSnapshot {
	snap := make(StockSnapshot, len(records))
	for _, r := range records {
		snap[r.InventoryID] = r.AvailableQuantity()
	}
	return snap
}

// Candidates maps a requested item id to the inventory ids the matcher offered for it
type Candidates map[int64][]int64

// CandidatesOf collects the matched inventory ids per requested item
func CandidatesOf(result *entity.MatchResult) Candidates {
	c := make(Candidates, len(result.Items))
	for _, item := range result.Items {
		ids := make([]int64, 0, len(item.InventoryMatches))
		for _, m := range item.InventoryMatches {
			ids = append(ids, m.InventoryID)
		}
		c[item.RequestedItemID] = ids
	}
	return c
}

// Resolution is the validated outcome of a set of allocation decisions
type Resolution struct {
	Dispositions []*entity.ItemDisposition
	// Reservations is the total draw per inventory id, ordered by id
	Reservations []entity.StockAllocation
}

// Totals returns the fulfilled, procurement and rejected quantities across all items
func (r *Resolution) Totals() (fulfilled, procurement, rejected int) {
	for _, d := range r.Dispositions {
		fulfilled += d.FulfilledQuantity
		procurement += d.ProcurementQuantity
		rejected += d.RejectedQuantity
	}
	return fulfilled, procurement, rejected
}

// Resolve checks the decisions against the requested items and the stock snapshot.
//
// Per item: any number of APPROVE_FROM_STOCK decisions, at most one
// APPROVE_FOR_PROCUREMENT (defaulting to the shortfall) and at most one REJECT,
// which takes whatever remains. The three quantities must add up to the requested
// quantity. A stock decision may only draw on an inventory id listed for that item
// in candidates. Every violation is collected and reported in one ErrInvalidAllocation.
func Resolve(items []*entity.RequestedItem, decisions []entity.AllocationDecision, stock StockSnapshot, candidates Candidates) (*Resolution, error) {
	var violations []string

	byItem := make(map[int64][]entity.AllocationDecision, len(items))
	known := make(map[int64]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for _, d := range decisions {
		if !known[d.RequestedItemID] {
			violations = append(violations, fmt.Sprintf("decision references unknown requested item %d", d.RequestedItemID))
			continue
		}
		byItem[d.RequestedItemID] = append(byItem[d.RequestedItemID], d)
	}

	draws := make(map[int64]int)
	res := &Resolution{Dispositions: make([]*entity.ItemDisposition, 0, len(items))}

	for _, item := range items {
		disp, itemViolations := resolveItem(item, byItem[item.ID], stock, candidates[item.ID], draws)
		violations = append(violations, itemViolations...)
		if disp != nil {
			res.Dispositions = append(res.Dispositions, disp)
		}
	}

	ids := make([]int64, 0, len(draws))
	for id := range draws {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if available := stock[id]; draws[id] > available {
			violations = append(violations, fmt.Sprintf("inventory %d: %d requested from stock but only %d available", id, draws[id], available))
		}
		res.Reservations = append(res.Reservations, entity.StockAllocation{InventoryID: id, Quantity: draws[id]})
	}

	if len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrInvalidAllocation, strings.Join(violations, "; "))
	}

	return res, nil
}

func resolveItem(item *entity.RequestedItem, decisions []entity.AllocationDecision, stock StockSnapshot, matched []int64, draws map[int64]int) (*entity.ItemDisposition, []string) {
	var violations []string
	fail := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf("item %d: ", item.ID)+fmt.Sprintf(format, args...))
	}

	if len(decisions) == 0 {
		fail("no decision")
		return nil, violations
	}

	disp := &entity.ItemDisposition{
		RequestedItemID:     item.ID,
		RequestedQuantity:   item.RequestedQuantity,
		ProcurementEstimate: decimal.Zero,
	}

	var procurement, reject *entity.AllocationDecision
	perInventory := make(map[int64]int)
	var order []int64

	for i := range decisions {
		d := decisions[i]
		switch d.DecisionType {
		case entity.DecisionApproveFromStock:
			if item.IsCustom() {
				fail("custom items cannot be fulfilled from stock")
				continue
			}
			if d.InventoryItemID == nil {
				fail("inventory_item_id is required for %s", d.DecisionType)
				continue
			}
			if d.AllocatedQuantity <= 0 {
				fail("allocated_quantity must be positive")
				continue
			}
			id := *d.InventoryItemID
			if _, ok := stock[id]; !ok {
				fail("inventory %d not found", id)
				continue
			}
			if !slices.Contains(matched, id) {
				fail("inventory %d is not a matched candidate", id)
				continue
			}
			if _, ok := perInventory[id]; !ok {
				order = append(order, id)
			}
			perInventory[id] += d.AllocatedQuantity
			draws[id] += d.AllocatedQuantity
			disp.FulfilledQuantity += d.AllocatedQuantity

		case entity.DecisionApproveForProcurement:
			if procurement != nil {
				fail("more than one %s decision", d.DecisionType)
				continue
			}
			procurement = &decisions[i]

		case entity.DecisionReject:
			if reject != nil {
				fail("more than one %s decision", d.DecisionType)
				continue
			}
			reject = &decisions[i]

		default:
			fail("unknown decision type %q", d.DecisionType)
		}
	}

	for _, id := range order {
		disp.Allocations = append(disp.Allocations, entity.StockAllocation{InventoryID: id, Quantity: perInventory[id]})
	}

	if disp.FulfilledQuantity > item.RequestedQuantity {
		fail("allocated %d exceeds requested %d", disp.FulfilledQuantity, item.RequestedQuantity)
		return nil, violations
	}

	remaining := item.RequestedQuantity - disp.FulfilledQuantity

	if procurement != nil {
		qty := procurement.ProcurementRequiredQuantity
		if qty == 0 {
			qty = remaining
		}
		switch {
		case qty < 0:
			fail("procurement_required_quantity cannot be negative")
		case qty > remaining:
			fail("procurement of %d exceeds remaining %d", qty, remaining)
		case qty == 0:
			fail("nothing left to procure")
		default:
			disp.ProcurementQuantity = qty
			disp.ProcurementEstimate = item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
			remaining -= qty
		}
	}

	if reject != nil {
		switch {
		case strings.TrimSpace(reject.RejectionReason) == "":
			fail("rejection_reason is required")
		case remaining == 0:
			fail("nothing left to reject")
		default:
			disp.RejectedQuantity = remaining
			disp.RejectionReason = strings.TrimSpace(reject.RejectionReason)
			remaining = 0
		}
	}

	if len(violations) == 0 && remaining != 0 {
		fail("%d of %d units have no decision", remaining, item.RequestedQuantity)
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return disp, nil
}
