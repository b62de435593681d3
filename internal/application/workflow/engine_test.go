package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/domain/event"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/stock-approval/migrations"
	"github.com/garyjia/stock-approval/pkg/database"
)

// repoRegistry reads workflows straight from the repositories
type repoRegistry struct {
	workflows port.WorkflowRepository
	approvers port.ApproverRepository
}

func (r *repoRegistry) ResolveWorkflow(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error) {
	wf, err := r.workflows.GetActiveByRequestType(ctx, requestType)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow for %s", entity.ErrNotFound, requestType)
	}
	return wf, nil
}

func (r *repoRegistry) GetWorkflow(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	wf, err := r.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %d", entity.ErrNotFound, id)
	}
	return wf, nil
}

func (r *repoRegistry) ListApprovers(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error) {
	return r.approvers.ListByWorkflow(ctx, workflowID)
}

type recorder struct {
	mu    sync.Mutex
	types map[event.Type]int
}

func (r *recorder) handle(_ context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[evt.Type]++
	return nil
}

func (r *recorder) count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.types[t]
}

type fixture struct {
	engine     ApprovalEngine
	repos      Repositories
	dispatcher dispatcher.Dispatcher
	events     *recorder
	workflow   *entity.WorkflowDefinition
	stapler    int64
	stockID    int64
	now        time.Time
}

// newFixture wires the engine over a fresh database. Approvers:
// alice (level 1, approve+forward), bob (level 2, approve+forward),
// carol (level 3, finalize), dave (level 4, forward only).
func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "engine.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, log).RunMigrations(migrations.FS))

	workflows := repository.NewWorkflowRepository(db.DB, log)
	approvers := repository.NewApproverRepository(db.DB, log)

	wf := &entity.WorkflowDefinition{WorkflowName: "Stock issuance", RequestType: entity.RequestTypeStockIssuance, IsActive: true}
	require.NoError(t, workflows.Create(ctx, wf))
	for _, a := range []*entity.WorkflowApprover{
		{UserID: "alice", ApproverLevel: 1, CanApprove: true, CanForward: true},
		{UserID: "bob", ApproverLevel: 2, CanApprove: true, CanForward: true},
		{UserID: "carol", ApproverLevel: 3, CanFinalize: true},
		{UserID: "dave", ApproverLevel: 4, CanForward: true},
	} {
		a.WorkflowID = wf.ID
		require.NoError(t, approvers.Create(ctx, a))
	}

	repos := Repositories{
		Approvals:     repository.NewApprovalRepository(db.DB, log),
		History:       repository.NewHistoryRepository(db.DB, log),
		Items:         repository.NewRequestItemRepository(db.DB, log),
		Stock:         repository.NewStockRepository(db.DB, log),
		Dispositions:  repository.NewDispositionRepository(db.DB, log),
		InventoryLogs: repository.NewInventoryLogRepository(db.DB, log),
	}

	master := &entity.ItemMaster{ItemCode: "STP-001", Nomenclature: "Stapler", IsActive: true}
	require.NoError(t, repos.Stock.CreateItemMaster(ctx, master))
	stockID, err := repos.Stock.CreateStock(ctx, master.ID, stock, 2)
	require.NoError(t, err)

	rec := &recorder{types: make(map[event.Type]int)}
	d := dispatcher.NewDispatcher()
	for _, et := range []event.Type{
		event.TypeApprovalSubmitted, event.TypeApprovalForwarded, event.TypeApprovalApproved,
		event.TypeApprovalRejected, event.TypeApprovalFinalized,
	} {
		d.Subscribe(et, rec.handle)
	}

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	engine := NewEngine(
		&repoRegistry{workflows: workflows, approvers: approvers},
		repos,
		sqlite.NewDB(db.DB, log),
		WithDispatcher(d),
		WithClock(func() time.Time { return now }),
	)

	return &fixture{
		engine:     engine,
		repos:      repos,
		dispatcher: d,
		events:     rec,
		workflow:   wf,
		stapler:    master.ID,
		stockID:    stockID,
		now:        now,
	}
}

func (f *fixture) submit(t *testing.T, requestID string, staplers int) *entity.RequestApproval {
	t.Helper()
	a, err := f.engine.Submit(context.Background(), SubmitRequest{
		RequestID:   requestID,
		RequestType: entity.RequestTypeStockIssuance,
		SubmittedBy: "requester",
		Items: []*entity.RequestedItem{
			{ItemMasterID: &f.stapler, Nomenclature: "Stapler", RequestedQuantity: staplers, UnitPrice: decimal.RequireFromString("12.50"), ItemType: entity.ItemTypeInventory},
			{CustomItemName: "Standing desk", RequestedQuantity: 1, UnitPrice: decimal.RequireFromString("300"), ItemType: entity.ItemTypeCustom},
		},
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) items(t *testing.T, requestID string) []*entity.RequestedItem {
	t.Helper()
	items, err := f.repos.Items.GetByRequest(context.Background(), requestID, entity.RequestTypeStockIssuance)
	require.NoError(t, err)
	require.Len(t, items, 2)
	return items
}

func (f *fixture) stock(t *testing.T) *entity.StockRecord {
	t.Helper()
	rec, err := f.repos.Stock.GetByID(context.Background(), f.stockID)
	require.NoError(t, err)
	return rec
}

func (f *fixture) decisions(t *testing.T, requestID string, fromStock int) []entity.AllocationDecision {
	t.Helper()
	items := f.items(t, requestID)
	decisions := []entity.AllocationDecision{
		{RequestedItemID: items[0].ID, DecisionType: entity.DecisionApproveFromStock, InventoryItemID: &f.stockID, AllocatedQuantity: fromStock},
		{RequestedItemID: items[1].ID, DecisionType: entity.DecisionReject, RejectionReason: "no budget"},
	}
	if fromStock < items[0].RequestedQuantity {
		decisions = append(decisions, entity.AllocationDecision{RequestedItemID: items[0].ID, DecisionType: entity.DecisionApproveForProcurement})
	}
	return decisions
}

func TestEngine_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	a := f.submit(t, "REQ-1", 8)
	assert.Equal(t, entity.StatusPending, a.CurrentStatus)
	assert.Equal(t, "alice", a.CurrentApproverID)
	assert.Equal(t, f.workflow.ID, a.WorkflowID)

	targets, err := f.engine.AvailableTargets(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "bob", targets[0].UserID)
	assert.Equal(t, "carol", targets[1].UserID)

	a, err = f.engine.Forward(ctx, a.ID, "alice", "bob", "  please check  ")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, a.CurrentStatus)
	assert.Equal(t, "bob", a.CurrentApproverID)

	res, err := f.engine.Approve(ctx, a.ID, "bob", f.decisions(t, "REQ-1", 5), "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, res.Approval.CurrentStatus)
	assert.Equal(t, "carol", res.Approval.CurrentApproverID)
	assert.Equal(t, "bob", res.Approval.ApprovedBy)
	require.Len(t, res.Dispositions, 2)
	assert.Equal(t, 5, res.Dispositions[0].FulfilledQuantity)
	assert.Equal(t, 3, res.Dispositions[0].ProcurementQuantity)
	assert.Equal(t, 1, res.Dispositions[1].RejectedQuantity)

	rec := f.stock(t)
	assert.Equal(t, 10, rec.CurrentQuantity)
	assert.Equal(t, 5, rec.ReservedQuantity)

	logs, err := f.repos.InventoryLogs.ListByInventory(ctx, f.stockID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.MovementReserve, logs[0].MovementType)
	assert.Equal(t, 10, logs[0].QuantityBefore)
	assert.Equal(t, 5, logs[0].QuantityAfter)
	assert.Equal(t, -5, logs[0].QuantityChanged)

	targets, err = f.engine.AvailableTargets(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)

	final, err := f.engine.Finalize(ctx, a.ID, "carol", "done")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFinalized, final.CurrentStatus)
	assert.Equal(t, "carol", final.FinalizedBy)
	assert.Empty(t, final.CurrentApproverID)

	history, err := f.repos.History.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	actions := make([]string, 0, len(history))
	for i, h := range history {
		assert.Equal(t, i+1, h.StepNumber)
		assert.False(t, h.IsCurrentStep)
		actions = append(actions, h.ActionType)
	}
	assert.Equal(t, []string{entity.ActionForwarded, entity.ActionForwarded, entity.ActionApproved, entity.ActionFinalized}, actions)
	assert.Equal(t, "please check", history[1].Comments)

	require.NoError(t, f.dispatcher.Close())
	assert.Equal(t, 1, f.events.count(event.TypeApprovalSubmitted))
	assert.Equal(t, 1, f.events.count(event.TypeApprovalForwarded))
	assert.Equal(t, 1, f.events.count(event.TypeApprovalApproved))
	assert.Equal(t, 1, f.events.count(event.TypeApprovalFinalized))
}

func TestEngine_FinalizeTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	a := f.submit(t, "REQ-1", 2)
	_, err := f.engine.Approve(ctx, a.ID, "alice", f.decisions(t, "REQ-1", 2), "")
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, a.ID, "carol", "")
	require.NoError(t, err)

	_, err = f.engine.Finalize(ctx, a.ID, "carol", "")
	assert.ErrorIs(t, err, entity.ErrAlreadyFinalized)

	_, err = f.engine.Reject(ctx, a.ID, "carol", "too late")
	assert.ErrorIs(t, err, entity.ErrStaleState)
}

func TestEngine_Submit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.submit(t, "REQ-1", 1)

	t.Run("duplicate active request", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, SubmitRequest{
			RequestID: "REQ-1", RequestType: entity.RequestTypeStockIssuance, SubmittedBy: "requester",
		})
		assert.ErrorIs(t, err, entity.ErrDuplicateSubmission)
	})

	t.Run("no workflow for type", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, SubmitRequest{
			RequestID: "REQ-2", RequestType: "tender", SubmittedBy: "requester",
			Items: []*entity.RequestedItem{{Nomenclature: "Pen", RequestedQuantity: 1, ItemType: entity.ItemTypeInventory}},
		})
		assert.ErrorIs(t, err, entity.ErrInvalidWorkflow)
	})

	t.Run("unknown workflow id", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, SubmitRequest{
			RequestID: "REQ-2", RequestType: entity.RequestTypeStockIssuance, WorkflowID: 99, SubmittedBy: "requester",
			Items: []*entity.RequestedItem{{Nomenclature: "Pen", RequestedQuantity: 1, ItemType: entity.ItemTypeInventory}},
		})
		assert.ErrorIs(t, err, entity.ErrInvalidWorkflow)
	})

	t.Run("invalid items", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, SubmitRequest{
			RequestID: "REQ-3", RequestType: entity.RequestTypeStockIssuance, SubmittedBy: "requester",
			Items: []*entity.RequestedItem{{Nomenclature: "Pen", RequestedQuantity: 0, ItemType: "gadget"}},
		})
		assert.ErrorIs(t, err, entity.ErrInvalidAllocation)
		assert.Contains(t, err.Error(), "requested_quantity must be positive")
		assert.Contains(t, err.Error(), "unknown item_type")
	})

	t.Run("no items", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, SubmitRequest{
			RequestID: "REQ-4", RequestType: entity.RequestTypeStockIssuance, SubmittedBy: "requester",
		})
		assert.ErrorIs(t, err, entity.ErrInvalidAllocation)
	})
}

func TestEngine_ResubmitAfterRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	a := f.submit(t, "REQ-1", 3)
	_, err := f.engine.Reject(ctx, a.ID, "alice", "wrong cost centre")
	require.NoError(t, err)

	again, err := f.engine.Submit(ctx, SubmitRequest{
		RequestID: "REQ-1", RequestType: entity.RequestTypeStockIssuance, SubmittedBy: "requester",
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, again.ID)
	assert.Equal(t, entity.StatusPending, again.CurrentStatus)
	f.items(t, "REQ-1")

	_, err = f.engine.Approve(ctx, again.ID, "alice", f.decisions(t, "REQ-1", 3), "")
	require.NoError(t, err)
}

func TestEngine_FinalizedRequestCannotBeResubmitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	a := f.submit(t, "REQ-1", 3)
	_, err := f.engine.Approve(ctx, a.ID, "alice", f.decisions(t, "REQ-1", 3), "")
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, a.ID, "carol", "")
	require.NoError(t, err)

	again, err := f.engine.Submit(ctx, SubmitRequest{
		RequestID: "REQ-1", RequestType: entity.RequestTypeStockIssuance, SubmittedBy: "requester",
	})
	assert.ErrorIs(t, err, entity.ErrDuplicateSubmission)
	assert.Nil(t, again)

	latest, err := f.repos.Approvals.GetLatestByRequest(ctx, "REQ-1", entity.RequestTypeStockIssuance)
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)
	assert.Equal(t, 3, f.stock(t).ReservedQuantity)
}

func TestEngine_ApproveOnlyDrawsOnMatchedStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	paper := &entity.ItemMaster{ItemCode: "PPR-A4", Nomenclature: "Printer Paper A4 Ream", IsActive: true}
	require.NoError(t, f.repos.Stock.CreateItemMaster(ctx, paper))
	paperID, err := f.repos.Stock.CreateStock(ctx, paper.ID, 50, 5)
	require.NoError(t, err)

	a := f.submit(t, "REQ-1", 3)
	items := f.items(t, "REQ-1")
	decisions := []entity.AllocationDecision{
		{RequestedItemID: items[0].ID, DecisionType: entity.DecisionApproveFromStock, InventoryItemID: &paperID, AllocatedQuantity: 3},
		{RequestedItemID: items[1].ID, DecisionType: entity.DecisionReject, RejectionReason: "no budget"},
	}

	_, err = f.engine.Approve(ctx, a.ID, "alice", decisions, "")
	assert.ErrorIs(t, err, entity.ErrInvalidAllocation)
	assert.Contains(t, err.Error(), "not a matched candidate")

	rec, err := f.repos.Stock.GetByID(ctx, paperID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ReservedQuantity)

	disps, err := f.repos.Dispositions.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, disps)

	current, err := f.repos.Approvals.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, current.CurrentStatus)
}

func TestEngine_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a := f.submit(t, "REQ-1", 2)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"forward by non-current approver", func() error {
			_, err := f.engine.Forward(ctx, a.ID, "bob", "carol", "")
			return err
		}, entity.ErrNotAuthorized},
		{"forward by outsider", func() error {
			_, err := f.engine.Forward(ctx, a.ID, "mallory", "bob", "")
			return err
		}, entity.ErrNotAuthorized},
		{"forward to forward-only approver", func() error {
			_, err := f.engine.Forward(ctx, a.ID, "alice", "dave", "")
			return err
		}, entity.ErrInvalidTarget},
		{"forward to user outside the workflow", func() error {
			_, err := f.engine.Forward(ctx, a.ID, "alice", "zed", "")
			return err
		}, entity.ErrInvalidTarget},
		{"forward to self", func() error {
			_, err := f.engine.Forward(ctx, a.ID, "alice", "alice", "")
			return err
		}, entity.ErrInvalidTarget},
		{"approve by non-current approver", func() error {
			_, err := f.engine.Approve(ctx, a.ID, "bob", nil, "")
			return err
		}, entity.ErrNotAuthorized},
		{"reject by non-current approver without finalize", func() error {
			_, err := f.engine.Reject(ctx, a.ID, "bob", "no")
			return err
		}, entity.ErrNotAuthorized},
		{"finalize while pending", func() error {
			_, err := f.engine.Finalize(ctx, a.ID, "carol", "")
			return err
		}, entity.ErrStaleState},
		{"blank rejection reason", func() error {
			_, err := f.engine.Reject(ctx, a.ID, "alice", "   ")
			return err
		}, entity.ErrInvalidAllocation},
		{"unknown approval", func() error {
			_, err := f.engine.Forward(ctx, 999, "alice", "bob", "")
			return err
		}, entity.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}

	current, err := f.repos.Approvals.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Version, current.Version)
	assert.Equal(t, "alice", current.CurrentApproverID)

	history, err := f.repos.History.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsCurrentStep)
	assert.Equal(t, "alice", history[0].ForwardedTo)
}

func TestEngine_FinalizerMayRejectOutOfTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a := f.submit(t, "REQ-1", 2)

	rejected, err := f.engine.Reject(ctx, a.ID, "carol", "duplicate of REQ-0")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, rejected.CurrentStatus)
	assert.Equal(t, "carol", rejected.RejectedBy)
	assert.Equal(t, "duplicate of REQ-0", rejected.RejectionReason)
	assert.Empty(t, rejected.CurrentApproverID)
	require.NotNil(t, rejected.RejectedDate)
	assert.True(t, rejected.RejectedDate.Equal(f.now))
}

func TestEngine_ApproveRollsBackOnInvalidAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	a := f.submit(t, "REQ-1", 6)

	_, err := f.engine.Approve(ctx, a.ID, "alice", f.decisions(t, "REQ-1", 6), "")
	assert.ErrorIs(t, err, entity.ErrInvalidAllocation)

	current, err := f.repos.Approvals.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, current.CurrentStatus)
	assert.Equal(t, a.Version, current.Version)

	history, err := f.repos.History.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	disps, err := f.repos.Dispositions.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, disps)
	assert.Equal(t, 0, f.stock(t).ReservedQuantity)
}

func TestEngine_ConcurrentApprovalsCannotOverAllocate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	first := f.submit(t, "REQ-1", 8)
	second := f.submit(t, "REQ-2", 8)
	decisions := map[int64][]entity.AllocationDecision{
		first.ID:  f.decisions(t, "REQ-1", 8),
		second.ID: f.decisions(t, "REQ-2", 8),
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.engine.Approve(ctx, id, "alice", decisions[id], "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok, failed int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, entity.ErrInvalidAllocation)
		failed++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)

	rec := f.stock(t)
	assert.Equal(t, 8, rec.ReservedQuantity)
	assert.GreaterOrEqual(t, rec.AvailableQuantity(), 0)
}

func TestEngine_ConcurrentActionsOnOneApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a := f.submit(t, "REQ-1", 2)
	decisions := f.decisions(t, "REQ-1", 2)

	errs := make(chan error, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Approve(ctx, a.ID, "alice", decisions, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, entity.ErrStaleState)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, f.stock(t).ReservedQuantity)

	history, err := f.repos.History.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
