package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/domain/event"
	"github.com/garyjia/stock-approval/internal/domain/inventory"
	"github.com/garyjia/stock-approval/pkg/utils"
)

const (
	defaultStockLogLimit = 50
	maxStockLogLimit     = 500
)

// InventoryService covers matching, issuance and stock administration
type InventoryService interface {
	// MatchRequest scores the catalog against the stored items of a request
	MatchRequest(ctx context.Context, requestID, requestType string) (*entity.MatchResult, error)

	// IssueStock turns the reservations of an approved or finalized approval into deductions
	IssueStock(ctx context.Context, approvalID int64, actorID string) (*IssueReceipt, error)

	// AdjustStock changes current stock by delta; the result may never drop below reserved
	AdjustStock(ctx context.Context, inventoryID int64, delta int, actorID, reason string) (*entity.StockRecord, error)

	ListStock(ctx context.Context) ([]*entity.StockRecord, error)
	StockLog(ctx context.Context, inventoryID int64, limit int) ([]*entity.InventoryLog, error)
}

// MatchObserver receives how long a match took
type MatchObserver interface {
	ObserveMatchDuration(d time.Duration)
}

// IssueReceipt lists the movements written by one issuance
type IssueReceipt struct {
	ApprovalID int64                  `json:"approval_id"`
	Reference  string                 `json:"reference"`
	Movements  []*entity.InventoryLog `json:"movements"`
	IssuedAt   time.Time              `json:"issued_at"`
}

type inventoryServiceImpl struct {
	approvalRepo    port.ApprovalRepository
	itemRepo        port.RequestItemRepository
	stockRepo       port.StockRepository
	dispositionRepo port.DispositionRepository
	logRepo         port.InventoryLogRepository
	txManager       port.TransactionManager
	dispatcher      dispatcher.Dispatcher
	observer        MatchObserver
	logger          Logger
	now             func() time.Time
}

// InventoryOption configures the inventory service
type InventoryOption func(*inventoryServiceImpl)

// WithEventDispatcher publishes stock events after commit
func WithEventDispatcher(d dispatcher.Dispatcher) InventoryOption {
	return func(s *inventoryServiceImpl) {
		s.dispatcher = d
	}
}

// WithMatchObserver records match durations
func WithMatchObserver(o MatchObserver) InventoryOption {
	return func(s *inventoryServiceImpl) {
		s.observer = o
	}
}

// WithInventoryClock overrides time.Now
func WithInventoryClock(now func() time.Time) InventoryOption {
	return func(s *inventoryServiceImpl) {
		s.now = now
	}
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	approvalRepo port.ApprovalRepository,
	itemRepo port.RequestItemRepository,
	stockRepo port.StockRepository,
	dispositionRepo port.DispositionRepository,
	logRepo port.InventoryLogRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...InventoryOption,
) InventoryService {
	s := &inventoryServiceImpl{
		approvalRepo:    approvalRepo,
		itemRepo:        itemRepo,
		stockRepo:       stockRepo,
		dispositionRepo: dispositionRepo,
		logRepo:         logRepo,
		txManager:       txManager,
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchRequest runs the matcher over the request's items and the live catalog
func (s *inventoryServiceImpl) MatchRequest(ctx context.Context, requestID, requestType string) (*entity.MatchResult, error) {
	items, err := s.itemRepo.GetByRequest(ctx, requestID, requestType)
	if err != nil {
		s.logger.Error("Failed to load requested items", "error", err, "request_id", requestID)
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items for request %s (%s)", entity.ErrNotFound, requestID, requestType)
	}

	catalog, err := s.stockRepo.ListCatalog(ctx)
	if err != nil {
		s.logger.Error("Failed to load catalog", "error", err)
		return nil, err
	}

	start := time.Now()
	result := inventory.MatchItems(items, catalog)
	if s.observer != nil {
		s.observer.ObserveMatchDuration(time.Since(start))
	}

	s.logger.Info("Request matched",
		"request_id", requestID,
		"items", result.Summary.TotalRequestedItems,
		"fully_fulfillable", result.Summary.FullyFulfillable,
	)
	return result, nil
}

// IssueStock deducts every reserved allocation of the approval under one reference
func (s *inventoryServiceImpl) IssueStock(ctx context.Context, approvalID int64, actorID string) (*IssueReceipt, error) {
	if err := utils.ValidateIdentifier("actor_id", actorID); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrNotAuthorized, err)
	}

	receipt := &IssueReceipt{
		ApprovalID: approvalID,
		Reference:  uuid.NewString(),
		Movements:  []*entity.InventoryLog{},
		IssuedAt:   s.now(),
	}
	var approval *entity.RequestApproval
	issued := 0

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		a, err := s.approvalRepo.GetByID(txCtx, approvalID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: approval %d", entity.ErrNotFound, approvalID)
		}
		if a.CurrentStatus != entity.StatusApproved && a.CurrentStatus != entity.StatusFinalized {
			return fmt.Errorf("%w: approval %d is %s; only approved or finalized approvals can be issued",
				entity.ErrStaleState, approvalID, a.CurrentStatus)
		}
		approval = a

		dispositions, err := s.dispositionRepo.GetByApprovalID(txCtx, approvalID)
		if err != nil {
			return err
		}
		for _, d := range dispositions {
			if d.Issued {
				return fmt.Errorf("%w: approval %d was already issued", entity.ErrInvalidAllocation, approvalID)
			}
		}

		for _, d := range dispositions {
			for _, alloc := range d.Allocations {
				movement, err := s.issueAllocation(txCtx, approval, alloc, actorID, receipt.Reference)
				if err != nil {
					return err
				}
				receipt.Movements = append(receipt.Movements, movement)
				issued += alloc.Quantity
			}
		}

		n, err := s.dispositionRepo.MarkIssued(txCtx, approvalID, receipt.IssuedAt)
		if err != nil {
			return err
		}
		if n != len(dispositions) {
			return fmt.Errorf("%w: approval %d was issued concurrently", entity.ErrInvalidAllocation, approvalID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to issue stock", "error", err, "approval_id", approvalID, "actor_id", actorID)
		return nil, err
	}

	s.publish(ctx, event.NewEvent(event.TypeStockIssued, approval.ID, approval.RequestID, map[string]interface{}{
		"actor_id":  actorID,
		"reference": receipt.Reference,
		"quantity":  issued,
	}))
	s.logger.Info("Stock issued", "approval_id", approvalID, "reference", receipt.Reference, "quantity", issued)
	return receipt, nil
}

func (s *inventoryServiceImpl) issueAllocation(txCtx context.Context, a *entity.RequestApproval, alloc entity.StockAllocation, actorID, reference string) (*entity.InventoryLog, error) {
	rec, err := s.stockRepo.GetByID(txCtx, alloc.InventoryID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: inventory %d", entity.ErrNotFound, alloc.InventoryID)
	}

	ok, err := s.stockRepo.Issue(txCtx, alloc.InventoryID, alloc.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: inventory %d has only %d reserved, cannot issue %d",
			entity.ErrInvalidAllocation, alloc.InventoryID, rec.ReservedQuantity, alloc.Quantity)
	}

	movement := &entity.InventoryLog{
		InventoryID:     alloc.InventoryID,
		ApprovalID:      &a.ID,
		MovementType:    entity.MovementIssue,
		Reference:       reference,
		QuantityBefore:  rec.CurrentQuantity,
		QuantityAfter:   rec.CurrentQuantity - alloc.Quantity,
		QuantityChanged: -alloc.Quantity,
		PerformedBy:     actorID,
		Reason:          fmt.Sprintf("issued for request %s", a.RequestID),
	}
	if err := s.logRepo.Create(txCtx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// AdjustStock applies a stock count correction
func (s *inventoryServiceImpl) AdjustStock(ctx context.Context, inventoryID int64, delta int, actorID, reason string) (*entity.StockRecord, error) {
	if err := utils.ValidateIdentifier("actor_id", actorID); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrNotAuthorized, err)
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", entity.ErrInvalidAllocation)
	}
	reason = utils.SanitizeString(reason)
	if err := utils.RequireText("reason", reason); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidAllocation, err)
	}

	var updated *entity.StockRecord

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rec, err := s.stockRepo.GetByID(txCtx, inventoryID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: inventory %d", entity.ErrNotFound, inventoryID)
		}

		ok, err := s.stockRepo.Adjust(txCtx, inventoryID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: adjusting inventory %d by %d would leave less than the %d reserved",
				entity.ErrInvalidAllocation, inventoryID, delta, rec.ReservedQuantity)
		}

		if err := s.logRepo.Create(txCtx, &entity.InventoryLog{
			InventoryID:     inventoryID,
			MovementType:    entity.MovementAdjust,
			Reference:       uuid.NewString(),
			QuantityBefore:  rec.CurrentQuantity,
			QuantityAfter:   rec.CurrentQuantity + delta,
			QuantityChanged: delta,
			PerformedBy:     actorID,
			Reason:          reason,
		}); err != nil {
			return err
		}

		updated, err = s.stockRepo.GetByID(txCtx, inventoryID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to adjust stock", "error", err, "inventory_id", inventoryID, "delta", delta)
		return nil, err
	}

	s.publish(ctx, event.NewEvent(event.TypeStockAdjusted, 0, "", map[string]interface{}{
		"actor_id":     actorID,
		"inventory_id": inventoryID,
		"delta":        delta,
	}))
	s.logger.Info("Stock adjusted", "inventory_id", inventoryID, "delta", delta, "actor_id", actorID)
	return updated, nil
}

// ListStock returns every stock row with its catalog entry
func (s *inventoryServiceImpl) ListStock(ctx context.Context) ([]*entity.StockRecord, error) {
	records, err := s.stockRepo.ListCatalog(ctx)
	if err != nil {
		s.logger.Error("Failed to list stock", "error", err)
		return nil, err
	}
	return records, nil
}

// StockLog returns the newest movements of a stock row
func (s *inventoryServiceImpl) StockLog(ctx context.Context, inventoryID int64, limit int) ([]*entity.InventoryLog, error) {
	if limit <= 0 {
		limit = defaultStockLogLimit
	}
	if limit > maxStockLogLimit {
		limit = maxStockLogLimit
	}

	rec, err := s.stockRepo.GetByID(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: inventory %d", entity.ErrNotFound, inventoryID)
	}

	logs, err := s.logRepo.ListByInventory(ctx, inventoryID, limit)
	if err != nil {
		s.logger.Error("Failed to list stock log", "error", err, "inventory_id", inventoryID)
		return nil, err
	}
	return logs, nil
}

func (s *inventoryServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.Publish(ctx, evt)
	}
}
