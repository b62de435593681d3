package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// ReorderObserver receives the number of low stock rows after every scan
type ReorderObserver interface {
	SetBelowReorder(n int)
}

// ReorderWorker periodically scans the catalog for rows whose available
// quantity has dropped to or below their reorder level.
type ReorderWorker struct {
	interval time.Duration
	stock    port.StockRepository
	observer ReorderObserver
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	low      map[int64]bool
	lastScan time.Time
	lastErr  error
}

// NewReorderWorker creates a reorder watcher. A nil observer is allowed.
func NewReorderWorker(interval time.Duration, stock port.StockRepository, observer ReorderObserver, logger *zap.Logger) *ReorderWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReorderWorker{
		interval: interval,
		stock:    stock,
		observer: observer,
		logger:   logger,
		low:      make(map[int64]bool),
	}
}

// Name implements Worker
func (w *ReorderWorker) Name() string {
	return "ReorderWorker"
}

// Start runs one scan immediately and then one per interval
func (w *ReorderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("reorder worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(runCtx, w.done)

	w.logger.Info("ReorderWorker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish
func (w *ReorderWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (w *ReorderWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Reorder scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan checks the catalog once and returns the rows at or below their reorder level.
// Rows that newly cross the threshold are logged once until they recover.
func (w *ReorderWorker) Scan(ctx context.Context) ([]*entity.StockRecord, error) {
	catalog, err := w.stock.ListCatalog(ctx)
	if err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	var low []*entity.StockRecord
	seen := make(map[int64]bool)
	for _, rec := range catalog {
		if !rec.IsActive || rec.AvailableQuantity() > rec.ReorderPoint {
			continue
		}
		low = append(low, rec)
		seen[rec.InventoryID] = true
	}

	w.mu.Lock()
	for _, rec := range low {
		if !w.low[rec.InventoryID] {
			w.logger.Warn("Stock at or below reorder level",
				zap.Int64("inventory_id", rec.InventoryID),
				zap.String("item_code", rec.ItemCode),
				zap.Int("available", rec.AvailableQuantity()),
				zap.Int("reorder_level", rec.ReorderPoint),
			)
		}
	}
	w.low = seen
	w.lastScan = time.Now()
	w.lastErr = nil
	w.mu.Unlock()

	if w.observer != nil {
		w.observer.SetBelowReorder(len(low))
	}
	return low, nil
}

// LastError returns the error of the most recent failed scan, or nil
func (w *ReorderWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
