package port

import (
	"context"
	"time"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// Repositories return (nil, nil) when a single-row lookup finds nothing.
// Services translate that into entity.ErrNotFound.

// WorkflowRepository defines persistence operations for WorkflowDefinition
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	GetActiveByRequestType(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// ApproverRepository defines persistence operations for WorkflowApprover
type ApproverRepository interface {
	Create(ctx context.Context, approver *entity.WorkflowApprover) error
	// ListByWorkflow returns approvers ordered by approver_level, then id
	ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error)
	// Delete reports whether a row was removed
	Delete(ctx context.Context, workflowID int64, userID string) (bool, error)
}

// ApprovalRepository defines persistence operations for RequestApproval
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entity.RequestApproval) error
	GetByID(ctx context.Context, id int64) (*entity.RequestApproval, error)
	// GetActiveByRequest returns the pending or approved approval for a request
	GetActiveByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error)
	// GetLatestByRequest returns the most recently submitted approval for a request
	GetLatestByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error)
	// Update writes the mutable fields when the stored version equals approval.Version,
	// then increments approval.Version. A version mismatch returns entity.ErrStaleState.
	Update(ctx context.Context, approval *entity.RequestApproval) error
	ListPendingFor(ctx context.Context, userID string) ([]*entity.RequestApproval, error)
	// CountActedOn counts, per current status, the approvals the user acted on after submission
	CountActedOn(ctx context.Context, userID string) (map[string]int, error)
}

// HistoryRepository defines persistence operations for ApprovalHistory
type HistoryRepository interface {
	Append(ctx context.Context, step *entity.ApprovalHistory) error
	GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error)
	ClearCurrent(ctx context.Context, approvalID int64) error
	NextStepNumber(ctx context.Context, approvalID int64) (int, error)
	RecentByActor(ctx context.Context, userID string, limit int) ([]*entity.ApprovalHistory, error)
}

// RequestItemRepository defines persistence operations for RequestedItem
type RequestItemRepository interface {
	CreateBatch(ctx context.Context, items []*entity.RequestedItem) error
	GetByRequest(ctx context.Context, requestID, requestType string) ([]*entity.RequestedItem, error)
}

// StockRepository defines persistence operations for catalog and stock rows
type StockRepository interface {
	CreateItemMaster(ctx context.Context, item *entity.ItemMaster) error
	GetItemMasterByCode(ctx context.Context, code string) (*entity.ItemMaster, error)
	// CreateStock opens a stock row for an item master and returns its inventory id
	CreateStock(ctx context.Context, itemMasterID int64, quantity, reorderPoint int) (int64, error)
	// ListCatalog returns every stock row joined with its catalog entry, ordered by inventory id
	ListCatalog(ctx context.Context) ([]*entity.StockRecord, error)
	GetByID(ctx context.Context, inventoryID int64) (*entity.StockRecord, error)
	// Reserve moves qty into reserved only while current - reserved >= qty.
	// It reports false when the guard fails.
	Reserve(ctx context.Context, inventoryID int64, qty int) (bool, error)
	// Issue removes qty from both current and reserved only while reserved >= qty
	Issue(ctx context.Context, inventoryID int64, qty int) (bool, error)
	// Adjust adds delta to current only while the result stays >= reserved
	Adjust(ctx context.Context, inventoryID int64, delta int) (bool, error)
}

// DispositionRepository defines persistence operations for ItemDisposition
type DispositionRepository interface {
	CreateBatch(ctx context.Context, dispositions []*entity.ItemDisposition) error
	GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ItemDisposition, error)
	// MarkIssued flags every disposition of the approval as issued and reports how many changed
	MarkIssued(ctx context.Context, approvalID int64, at time.Time) (int, error)
}

// InventoryLogRepository defines persistence operations for InventoryLog
type InventoryLogRepository interface {
	Create(ctx context.Context, log *entity.InventoryLog) error
	ListByInventory(ctx context.Context, inventoryID int64, limit int) ([]*entity.InventoryLog, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
