package dispatcher

import (
	"context"

	"github.com/garyjia/stock-approval/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler. ListHandlers leaves Handler nil.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
