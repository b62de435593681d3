package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
)

// DispositionRepository implements port.DispositionRepository
type DispositionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDispositionRepository creates a new disposition repository
func NewDispositionRepository(db *sql.DB, logger *zap.Logger) port.DispositionRepository {
	return &DispositionRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts dispositions and their stock allocations.
// Callers run it inside a transaction so a partial batch is never visible.
func (r *DispositionRepository) CreateBatch(ctx context.Context, dispositions []*entity.ItemDisposition) error {
	dispQuery := `
		INSERT INTO item_dispositions (
			approval_id, requested_item_id, requested_quantity, fulfilled_quantity,
			procurement_quantity, rejected_quantity, rejection_reason, procurement_estimate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	allocQuery := `INSERT INTO disposition_allocations (disposition_id, inventory_id, quantity) VALUES (?, ?, ?)`

	exec := r.getExecutor(ctx)
	for _, d := range dispositions {
		result, err := exec.ExecContext(ctx, dispQuery,
			d.ApprovalID,
			d.RequestedItemID,
			d.RequestedQuantity,
			d.FulfilledQuantity,
			d.ProcurementQuantity,
			d.RejectedQuantity,
			d.RejectionReason,
			d.ProcurementEstimate,
		)
		if err != nil {
			r.logger.Error("Failed to create disposition",
				zap.Int64("approval_id", d.ApprovalID),
				zap.Int64("requested_item_id", d.RequestedItemID),
				zap.Error(err))
			return fmt.Errorf("failed to create disposition: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		d.ID = id

		for _, alloc := range d.Allocations {
			if _, err := exec.ExecContext(ctx, allocQuery, d.ID, alloc.InventoryID, alloc.Quantity); err != nil {
				return fmt.Errorf("failed to create allocation: %w", err)
			}
		}
	}

	return nil
}

// GetByApprovalID returns the dispositions of an approval with their allocations
func (r *DispositionRepository) GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ItemDisposition, error) {
	query := `
		SELECT id, approval_id, requested_item_id, requested_quantity, fulfilled_quantity,
			procurement_quantity, rejected_quantity, rejection_reason, procurement_estimate,
			issued, issued_at, created_at
		FROM item_dispositions
		WHERE approval_id = ?
		ORDER BY requested_item_id ASC
	`

	exec := r.getExecutor(ctx)
	rows, err := exec.QueryContext(ctx, query, approvalID)
	if err != nil {
		r.logger.Error("Failed to get dispositions", zap.Int64("approval_id", approvalID), zap.Error(err))
		return nil, fmt.Errorf("failed to get dispositions: %w", err)
	}
	defer rows.Close()

	var dispositions []*entity.ItemDisposition
	byID := make(map[int64]*entity.ItemDisposition)
	for rows.Next() {
		var d entity.ItemDisposition
		var issuedAt sql.NullTime
		err := rows.Scan(
			&d.ID,
			&d.ApprovalID,
			&d.RequestedItemID,
			&d.RequestedQuantity,
			&d.FulfilledQuantity,
			&d.ProcurementQuantity,
			&d.RejectedQuantity,
			&d.RejectionReason,
			&d.ProcurementEstimate,
			&d.Issued,
			&issuedAt,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan disposition: %w", err)
		}
		if issuedAt.Valid {
			d.IssuedAt = &issuedAt.Time
		}
		dispositions = append(dispositions, &d)
		byID[d.ID] = &d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dispositions) == 0 {
		return dispositions, nil
	}

	allocQuery := `
		SELECT a.disposition_id, a.inventory_id, a.quantity
		FROM disposition_allocations a
		JOIN item_dispositions d ON d.id = a.disposition_id
		WHERE d.approval_id = ?
		ORDER BY a.disposition_id, a.inventory_id
	`

	allocRows, err := exec.QueryContext(ctx, allocQuery, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations: %w", err)
	}
	defer allocRows.Close()

	for allocRows.Next() {
		var dispositionID int64
		var alloc entity.StockAllocation
		if err := allocRows.Scan(&dispositionID, &alloc.InventoryID, &alloc.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		if d, ok := byID[dispositionID]; ok {
			d.Allocations = append(d.Allocations, alloc)
		}
	}

	return dispositions, allocRows.Err()
}

// MarkIssued flags the not-yet-issued dispositions of an approval
func (r *DispositionRepository) MarkIssued(ctx context.Context, approvalID int64, at time.Time) (int, error) {
	query := `UPDATE item_dispositions SET issued = 1, issued_at = ? WHERE approval_id = ? AND issued = 0`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, at, approvalID)
	if err != nil {
		r.logger.Error("Failed to mark dispositions issued", zap.Int64("approval_id", approvalID), zap.Error(err))
		return 0, fmt.Errorf("failed to mark issued: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

// getExecutor returns appropriate executor based on context
func (r *DispositionRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.DispositionRepository = (*DispositionRepository)(nil)
