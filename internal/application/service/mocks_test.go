package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// passthroughTx runs fn directly and counts calls
type passthroughTx struct {
	calls int
}

func (m *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockWorkflowRepo struct {
	createFunc                 func(ctx context.Context, wf *entity.WorkflowDefinition) error
	getByIDFunc                func(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	getActiveByRequestTypeFunc func(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error)
	listFunc                   func(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	setActiveFunc              func(ctx context.Context, id int64, active bool) error
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, wf)
	}
	wf.ID = 1
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) GetActiveByRequestType(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error) {
	if m.getActiveByRequestTypeFunc != nil {
		return m.getActiveByRequestTypeFunc(ctx, requestType)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.WorkflowDefinition{}, nil
}

func (m *mockWorkflowRepo) SetActive(ctx context.Context, id int64, active bool) error {
	if m.setActiveFunc != nil {
		return m.setActiveFunc(ctx, id, active)
	}
	return nil
}

type mockApproverRepo struct {
	createFunc         func(ctx context.Context, a *entity.WorkflowApprover) error
	listByWorkflowFunc func(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error)
	deleteFunc         func(ctx context.Context, workflowID int64, userID string) (bool, error)
}

func (m *mockApproverRepo) Create(ctx context.Context, a *entity.WorkflowApprover) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, a)
	}
	return nil
}

func (m *mockApproverRepo) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error) {
	if m.listByWorkflowFunc != nil {
		return m.listByWorkflowFunc(ctx, workflowID)
	}
	return []*entity.WorkflowApprover{}, nil
}

func (m *mockApproverRepo) Delete(ctx context.Context, workflowID int64, userID string) (bool, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, workflowID, userID)
	}
	return true, nil
}

type mockApprovalRepo struct {
	getByIDFunc            func(ctx context.Context, id int64) (*entity.RequestApproval, error)
	getLatestByRequestFunc func(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error)
	listPendingForFunc     func(ctx context.Context, userID string) ([]*entity.RequestApproval, error)
	countActedOnFunc       func(ctx context.Context, userID string) (map[string]int, error)
}

func (m *mockApprovalRepo) Create(ctx context.Context, a *entity.RequestApproval) error {
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, id int64) (*entity.RequestApproval, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.RequestApproval{ID: id, RequestID: "REQ-1", CurrentStatus: entity.StatusPending, SubmittedBy: "requester"}, nil
}

func (m *mockApprovalRepo) GetActiveByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error) {
	return nil, nil
}

func (m *mockApprovalRepo) GetLatestByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error) {
	if m.getLatestByRequestFunc != nil {
		return m.getLatestByRequestFunc(ctx, requestID, requestType)
	}
	return nil, nil
}

func (m *mockApprovalRepo) Update(ctx context.Context, a *entity.RequestApproval) error {
	return nil
}

func (m *mockApprovalRepo) ListPendingFor(ctx context.Context, userID string) ([]*entity.RequestApproval, error) {
	if m.listPendingForFunc != nil {
		return m.listPendingForFunc(ctx, userID)
	}
	return []*entity.RequestApproval{}, nil
}

func (m *mockApprovalRepo) CountActedOn(ctx context.Context, userID string) (map[string]int, error) {
	if m.countActedOnFunc != nil {
		return m.countActedOnFunc(ctx, userID)
	}
	return map[string]int{}, nil
}

type mockHistoryRepo struct {
	getByApprovalIDFunc func(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error)
	recentByActorFunc   func(ctx context.Context, userID string, limit int) ([]*entity.ApprovalHistory, error)
}

func (m *mockHistoryRepo) Append(ctx context.Context, step *entity.ApprovalHistory) error {
	return nil
}

func (m *mockHistoryRepo) GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error) {
	if m.getByApprovalIDFunc != nil {
		return m.getByApprovalIDFunc(ctx, approvalID)
	}
	return []*entity.ApprovalHistory{}, nil
}

func (m *mockHistoryRepo) ClearCurrent(ctx context.Context, approvalID int64) error {
	return nil
}

func (m *mockHistoryRepo) NextStepNumber(ctx context.Context, approvalID int64) (int, error) {
	return 1, nil
}

func (m *mockHistoryRepo) RecentByActor(ctx context.Context, userID string, limit int) ([]*entity.ApprovalHistory, error) {
	if m.recentByActorFunc != nil {
		return m.recentByActorFunc(ctx, userID, limit)
	}
	return nil, nil
}

type mockItemRepo struct {
	getByRequestFunc func(ctx context.Context, requestID, requestType string) ([]*entity.RequestedItem, error)
}

func (m *mockItemRepo) CreateBatch(ctx context.Context, items []*entity.RequestedItem) error {
	return nil
}

func (m *mockItemRepo) GetByRequest(ctx context.Context, requestID, requestType string) ([]*entity.RequestedItem, error) {
	if m.getByRequestFunc != nil {
		return m.getByRequestFunc(ctx, requestID, requestType)
	}
	return []*entity.RequestedItem{}, nil
}

// memStock keeps stock rows in memory and applies the same guards as the SQL updates
type memStock struct {
	mu   sync.Mutex
	rows map[int64]*entity.StockRecord
}

func newMemStock(rows ...*entity.StockRecord) *memStock {
	m := &memStock{rows: make(map[int64]*entity.StockRecord)}
	for _, r := range rows {
		m.rows[r.InventoryID] = r
	}
	return m
}

func (m *memStock) CreateItemMaster(ctx context.Context, item *entity.ItemMaster) error {
	return nil
}

func (m *memStock) GetItemMasterByCode(ctx context.Context, code string) (*entity.ItemMaster, error) {
	return nil, nil
}

func (m *memStock) CreateStock(ctx context.Context, itemMasterID int64, quantity, reorderPoint int) (int64, error) {
	return 0, nil
}

func (m *memStock) ListCatalog(ctx context.Context) ([]*entity.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.StockRecord, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStock) GetByID(ctx context.Context, id int64) (*entity.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStock) Reserve(ctx context.Context, id int64, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.AvailableQuantity() < qty {
		return false, nil
	}
	r.ReservedQuantity += qty
	return true, nil
}

func (m *memStock) Issue(ctx context.Context, id int64, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.ReservedQuantity < qty {
		return false, nil
	}
	r.CurrentQuantity -= qty
	r.ReservedQuantity -= qty
	return true, nil
}

func (m *memStock) Adjust(ctx context.Context, id int64, delta int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.CurrentQuantity+delta < r.ReservedQuantity {
		return false, nil
	}
	r.CurrentQuantity += delta
	return true, nil
}

type mockDispositionRepo struct {
	dispositions []*entity.ItemDisposition
}

func (m *mockDispositionRepo) CreateBatch(ctx context.Context, d []*entity.ItemDisposition) error {
	m.dispositions = append(m.dispositions, d...)
	return nil
}

func (m *mockDispositionRepo) GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ItemDisposition, error) {
	var out []*entity.ItemDisposition
	for _, d := range m.dispositions {
		if d.ApprovalID == approvalID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDispositionRepo) MarkIssued(ctx context.Context, approvalID int64, at time.Time) (int, error) {
	n := 0
	for _, d := range m.dispositions {
		if d.ApprovalID == approvalID && !d.Issued {
			d.Issued = true
			d.IssuedAt = &at
			n++
		}
	}
	return n, nil
}

type mockLogRepo struct {
	logs []*entity.InventoryLog
}

func (m *mockLogRepo) Create(ctx context.Context, l *entity.InventoryLog) error {
	l.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockLogRepo) ListByInventory(ctx context.Context, inventoryID int64, limit int) ([]*entity.InventoryLog, error) {
	var out []*entity.InventoryLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].InventoryID == inventoryID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

type mockSender struct {
	mu       sync.Mutex
	sendFunc func(ctx context.Context, msg port.Message) error
	sent     []port.Message
}

func (m *mockSender) Send(ctx context.Context, msg port.Message) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Verify interface compliance
var (
	_ port.WorkflowRepository     = (*mockWorkflowRepo)(nil)
	_ port.ApproverRepository     = (*mockApproverRepo)(nil)
	_ port.ApprovalRepository     = (*mockApprovalRepo)(nil)
	_ port.HistoryRepository      = (*mockHistoryRepo)(nil)
	_ port.RequestItemRepository  = (*mockItemRepo)(nil)
	_ port.StockRepository        = (*memStock)(nil)
	_ port.DispositionRepository  = (*mockDispositionRepo)(nil)
	_ port.InventoryLogRepository = (*mockLogRepo)(nil)
	_ port.MessageSender          = (*mockSender)(nil)
	_ port.TransactionManager     = (*passthroughTx)(nil)
)
