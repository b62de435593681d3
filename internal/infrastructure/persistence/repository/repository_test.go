package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/stock-approval/migrations"
	"github.com/garyjia/stock-approval/pkg/database"
)

func setupDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "repo.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(migrations.FS))
	return sqlite.NewDB(db.DB, zap.NewNop())
}

func seedWorkflow(t *testing.T, db *sqlite.DB) *entity.WorkflowDefinition {
	t.Helper()
	wf := &entity.WorkflowDefinition{WorkflowName: "Stock issuance", RequestType: "stock_issuance", IsActive: true}
	require.NoError(t, NewWorkflowRepository(db.DB, zap.NewNop()).Create(context.Background(), wf))
	return wf
}

func seedStock(t *testing.T, db *sqlite.DB, code string, qty int) int64 {
	t.Helper()
	ctx := context.Background()
	repo := NewStockRepository(db.DB, zap.NewNop())
	master := &entity.ItemMaster{ItemCode: code, Nomenclature: "Item " + code, IsActive: true}
	require.NoError(t, repo.CreateItemMaster(ctx, master))
	id, err := repo.CreateStock(ctx, master.ID, qty, 0)
	require.NoError(t, err)
	return id
}

func TestWorkflowRepository_OneActivePerType(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewWorkflowRepository(db.DB, zap.NewNop())

	first := seedWorkflow(t, db)

	second := &entity.WorkflowDefinition{WorkflowName: "Other", RequestType: "stock_issuance", IsActive: true}
	assert.ErrorIs(t, repo.Create(ctx, second), entity.ErrInvalidWorkflow)

	second.IsActive = false
	require.NoError(t, repo.Create(ctx, second))
	assert.ErrorIs(t, repo.SetActive(ctx, second.ID, true), entity.ErrInvalidWorkflow)

	require.NoError(t, repo.SetActive(ctx, first.ID, false))
	require.NoError(t, repo.SetActive(ctx, second.ID, true))

	active, err := repo.GetActiveByRequestType(ctx, "stock_issuance")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	missing, err := repo.GetActiveByRequestType(ctx, "tender")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, repo.SetActive(ctx, 999, true), entity.ErrNotFound)
}

func TestApproverRepository_OrderingAndDelete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	wf := seedWorkflow(t, db)
	repo := NewApproverRepository(db.DB, zap.NewNop())

	for _, a := range []*entity.WorkflowApprover{
		{WorkflowID: wf.ID, UserID: "admin", ApproverLevel: 3, CanFinalize: true},
		{WorkflowID: wf.ID, UserID: "sup", ApproverLevel: 1, CanApprove: true, CanForward: true},
		{WorkflowID: wf.ID, UserID: "head", ApproverLevel: 1, CanApprove: true},
	} {
		require.NoError(t, repo.Create(ctx, a))
	}

	err := repo.Create(ctx, &entity.WorkflowApprover{WorkflowID: wf.ID, UserID: "sup"})
	assert.ErrorIs(t, err, entity.ErrInvalidWorkflow)

	approvers, err := repo.ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, approvers, 3)
	assert.Equal(t, []string{"sup", "head", "admin"}, []string{approvers[0].UserID, approvers[1].UserID, approvers[2].UserID})
	assert.True(t, approvers[2].CanFinalize)
	assert.False(t, approvers[2].CanApprove)

	removed, err := repo.Delete(ctx, wf.ID, "head")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, wf.ID, "head")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestApprovalRepository_VersionAndDuplicates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	wf := seedWorkflow(t, db)
	repo := NewApprovalRepository(db.DB, zap.NewNop())

	a := &entity.RequestApproval{
		RequestID:         "REQ-1",
		RequestType:       "stock_issuance",
		WorkflowID:        wf.ID,
		CurrentStatus:     entity.StatusPending,
		CurrentApproverID: "sup",
		SubmittedBy:       "emp",
		SubmittedDate:     time.Now(),
	}
	require.NoError(t, repo.Create(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	dup := *a
	dup.ID = 0
	assert.ErrorIs(t, repo.Create(ctx, &dup), entity.ErrDuplicateSubmission)

	stale := *a

	now := time.Now()
	a.CurrentStatus = entity.StatusApproved
	a.ApprovedBy = "sup"
	a.ApprovedDate = &now
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	stale.CurrentStatus = entity.StatusRejected
	assert.ErrorIs(t, repo.Update(ctx, &stale), entity.ErrStaleState)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.CurrentStatus)
	require.NotNil(t, got.ApprovedDate)
	assert.Nil(t, got.RejectedDate)

	a.CurrentStatus = entity.StatusRejected
	require.NoError(t, repo.Update(ctx, a))

	active, err := repo.GetActiveByRequest(ctx, "REQ-1", "stock_issuance")
	require.NoError(t, err)
	assert.Nil(t, active)

	resubmit := &entity.RequestApproval{
		RequestID: "REQ-1", RequestType: "stock_issuance", WorkflowID: wf.ID,
		CurrentStatus: entity.StatusPending, CurrentApproverID: "sup", SubmittedBy: "emp", SubmittedDate: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, resubmit))

	latest, err := repo.GetLatestByRequest(ctx, "REQ-1", "stock_issuance")
	require.NoError(t, err)
	assert.Equal(t, resubmit.ID, latest.ID)

	pending, err := repo.ListPendingFor(ctx, "sup")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, resubmit.ID, pending[0].ID)
}

func TestHistoryRepository_StepsAndCounts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	wf := seedWorkflow(t, db)
	approvals := NewApprovalRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())

	a := &entity.RequestApproval{
		RequestID: "REQ-9", RequestType: "stock_issuance", WorkflowID: wf.ID,
		CurrentStatus: entity.StatusPending, CurrentApproverID: "sup", SubmittedBy: "emp", SubmittedDate: time.Now(),
	}
	require.NoError(t, approvals.Create(ctx, a))

	next, err := history.NextStepNumber(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	require.NoError(t, history.Append(ctx, &entity.ApprovalHistory{
		ApprovalID: a.ID, StepNumber: 1, ActionType: entity.ActionForwarded, ActionBy: "emp",
		ForwardedFrom: "emp", ForwardedTo: "sup", ActionDate: time.Now(), IsCurrentStep: true,
	}))
	require.NoError(t, history.ClearCurrent(ctx, a.ID))
	require.NoError(t, history.Append(ctx, &entity.ApprovalHistory{
		ApprovalID: a.ID, StepNumber: 2, ActionType: entity.ActionForwarded, ActionBy: "sup",
		ForwardedFrom: "sup", ForwardedTo: "head", ActionDate: time.Now(), IsCurrentStep: true,
	}))

	err = history.Append(ctx, &entity.ApprovalHistory{ApprovalID: a.ID, StepNumber: 2, ActionType: entity.ActionApproved, ActionBy: "x", ActionDate: time.Now()})
	assert.ErrorIs(t, err, entity.ErrStaleState)

	steps, err := history.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.False(t, steps[0].IsCurrentStep)
	assert.True(t, steps[1].IsCurrentStep)

	recent, err := history.RecentByActor(ctx, "sup", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].StepNumber)

	counts, err := approvals.CountActedOn(ctx, "sup")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{entity.StatusPending: 1}, counts)

	counts, err = approvals.CountActedOn(ctx, "emp")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestStockRepository_GuardedUpdates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewStockRepository(db.DB, zap.NewNop())
	id := seedStock(t, db, "STP-01", 10)

	ok, err := repo.Reserve(ctx, id, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reserve(ctx, id, 4)
	require.NoError(t, err)
	assert.False(t, ok, "only 3 unreserved")

	ok, err = repo.Adjust(ctx, id, -4)
	require.NoError(t, err)
	assert.False(t, ok, "cannot drop below reserved")

	ok, err = repo.Issue(ctx, id, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Issue(ctx, id, 3)
	require.NoError(t, err)
	assert.False(t, ok, "only 2 still reserved")

	rec, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.CurrentQuantity)
	assert.Equal(t, 2, rec.ReservedQuantity)
	assert.Equal(t, 3, rec.AvailableQuantity())
	assert.Equal(t, "STP-01", rec.ItemCode)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDispositionRepository_RoundTripInsideTransaction(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	wf := seedWorkflow(t, db)
	invA := seedStock(t, db, "A", 10)
	invB := seedStock(t, db, "B", 10)

	items := NewRequestItemRepository(db.DB, zap.NewNop())
	line := &entity.RequestedItem{
		RequestID: "REQ-5", RequestType: "stock_issuance", Nomenclature: "Paper",
		RequestedQuantity: 8, UnitPrice: decimal.RequireFromString("2.25"), ItemType: entity.ItemTypeInventory,
	}
	require.NoError(t, items.CreateBatch(ctx, []*entity.RequestedItem{line}))

	stored, err := items.GetByRequest(ctx, "REQ-5", "stock_issuance")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].UnitPrice.Equal(decimal.RequireFromString("2.25")))
	assert.Nil(t, stored[0].ItemMasterID)

	a := &entity.RequestApproval{
		RequestID: "REQ-5", RequestType: "stock_issuance", WorkflowID: wf.ID,
		CurrentStatus: entity.StatusApproved, SubmittedBy: "emp", SubmittedDate: time.Now(),
	}
	require.NoError(t, NewApprovalRepository(db.DB, zap.NewNop()).Create(ctx, a))

	repo := NewDispositionRepository(db.DB, zap.NewNop())
	err = db.WithTransaction(ctx, func(txCtx context.Context) error {
		return repo.CreateBatch(txCtx, []*entity.ItemDisposition{{
			ApprovalID:          a.ID,
			RequestedItemID:     line.ID,
			RequestedQuantity:   8,
			FulfilledQuantity:   5,
			ProcurementQuantity: 3,
			Allocations:         []entity.StockAllocation{{InventoryID: invA, Quantity: 3}, {InventoryID: invB, Quantity: 2}},
			ProcurementEstimate: decimal.RequireFromString("6.75"),
		}})
	})
	require.NoError(t, err)

	got, err := repo.GetByApprovalID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Balanced())
	assert.Len(t, got[0].Allocations, 2)
	assert.True(t, got[0].ProcurementEstimate.Equal(decimal.RequireFromString("6.75")))
	assert.False(t, got[0].Issued)

	n, err := repo.MarkIssued(ctx, a.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.MarkIssued(ctx, a.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	id := seedStock(t, db, "R", 5)
	repo := NewStockRepository(db.DB, zap.NewNop())
	logs := NewInventoryLogRepository(db.DB, zap.NewNop())

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := repo.Reserve(txCtx, id, 5); err != nil {
			return err
		}
		if err := logs.Create(txCtx, &entity.InventoryLog{
			InventoryID: id, MovementType: entity.MovementReserve, QuantityBefore: 5, QuantityAfter: 5, PerformedBy: "t",
		}); err != nil {
			return err
		}
		return entity.ErrInvalidAllocation
	})
	assert.ErrorIs(t, err, entity.ErrInvalidAllocation)

	rec, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ReservedQuantity)

	entries, err := logs.ListByInventory(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
