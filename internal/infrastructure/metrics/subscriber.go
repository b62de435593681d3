package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/domain/event"
)

// Subscribe records approval transitions and allocation quantities from committed events
func Subscribe(d dispatcher.Dispatcher) {
	Init()
	for _, t := range []event.Type{
		event.TypeApprovalSubmitted,
		event.TypeApprovalForwarded,
		event.TypeApprovalApproved,
		event.TypeApprovalRejected,
		event.TypeApprovalFinalized,
	} {
		d.SubscribeNamed(t, "metrics:"+t.String(), recordTransition)
	}
}

func recordTransition(_ context.Context, evt *event.Event) error {
	IncTransition(strings.TrimPrefix(evt.Type.String(), "approval."))

	if evt.Type == event.TypeApprovalApproved {
		AddAllocation(DispositionFulfilled, int(evt.GetPayloadInt("fulfilled_quantity")))
		AddAllocation(DispositionProcurement, int(evt.GetPayloadInt("procurement_quantity")))
		AddAllocation(DispositionRejected, int(evt.GetPayloadInt("rejected_quantity")))
	}
	return nil
}

// MatchObserver feeds inventory_match_duration_seconds
type MatchObserver struct{}

// ObserveMatchDuration records one matching run
func (MatchObserver) ObserveMatchDuration(d time.Duration) {
	ObserveMatchDuration(d)
}

// ReorderGauge feeds stock_below_reorder_items
type ReorderGauge struct{}

// SetBelowReorder records the latest low-stock count
func (ReorderGauge) SetBelowReorder(n int) {
	SetBelowReorder(n)
}
