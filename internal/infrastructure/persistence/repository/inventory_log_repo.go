package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
)

// InventoryLogRepository implements port.InventoryLogRepository
type InventoryLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInventoryLogRepository creates a new inventory log repository
func NewInventoryLogRepository(db *sql.DB, logger *zap.Logger) port.InventoryLogRepository {
	return &InventoryLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a stock movement
func (r *InventoryLogRepository) Create(ctx context.Context, l *entity.InventoryLog) error {
	query := `
		INSERT INTO inventory_log (
			inventory_id, approval_id, movement_type, reference, quantity_before,
			quantity_after, quantity_changed, performed_by, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		l.InventoryID,
		l.ApprovalID,
		l.MovementType,
		l.Reference,
		l.QuantityBefore,
		l.QuantityAfter,
		l.QuantityChanged,
		l.PerformedBy,
		l.Reason,
	)
	if err != nil {
		r.logger.Error("Failed to create inventory log", zap.Int64("inventory_id", l.InventoryID), zap.Error(err))
		return fmt.Errorf("failed to create inventory log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	l.ID = id
	return nil
}

// ListByInventory returns the newest movements of a stock row first
func (r *InventoryLogRepository) ListByInventory(ctx context.Context, inventoryID int64, limit int) ([]*entity.InventoryLog, error) {
	query := `
		SELECT id, inventory_id, approval_id, movement_type, reference, quantity_before,
			quantity_after, quantity_changed, performed_by, reason, created_at
		FROM inventory_log
		WHERE inventory_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, inventoryID, limit)
	if err != nil {
		r.logger.Error("Failed to list inventory log", zap.Int64("inventory_id", inventoryID), zap.Error(err))
		return nil, fmt.Errorf("failed to list inventory log: %w", err)
	}
	defer rows.Close()

	var logs []*entity.InventoryLog
	for rows.Next() {
		var l entity.InventoryLog
		var approvalID sql.NullInt64
		err := rows.Scan(
			&l.ID,
			&l.InventoryID,
			&approvalID,
			&l.MovementType,
			&l.Reference,
			&l.QuantityBefore,
			&l.QuantityAfter,
			&l.QuantityChanged,
			&l.PerformedBy,
			&l.Reason,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory log: %w", err)
		}
		if approvalID.Valid {
			l.ApprovalID = &approvalID.Int64
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *InventoryLogRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.InventoryLogRepository = (*InventoryLogRepository)(nil)
