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

// RequestItemRepository implements port.RequestItemRepository
type RequestItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestItemRepository creates a new requested item repository
func NewRequestItemRepository(db *sql.DB, logger *zap.Logger) port.RequestItemRepository {
	return &RequestItemRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the line items of a request and fills in their IDs
func (r *RequestItemRepository) CreateBatch(ctx context.Context, items []*entity.RequestedItem) error {
	query := `
		INSERT INTO requested_items (
			request_id, request_type, item_master_id, nomenclature, custom_item_name,
			requested_quantity, unit_price, item_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.getExecutor(ctx)
	for _, item := range items {
		result, err := exec.ExecContext(ctx, query,
			item.RequestID,
			item.RequestType,
			item.ItemMasterID,
			item.Nomenclature,
			item.CustomItemName,
			item.RequestedQuantity,
			item.UnitPrice,
			item.ItemType,
		)
		if err != nil {
			r.logger.Error("Failed to create requested item", zap.String("request_id", item.RequestID), zap.Error(err))
			return fmt.Errorf("failed to create requested item: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		item.ID = id
	}

	return nil
}

// GetByRequest returns the line items of a request in insertion order
func (r *RequestItemRepository) GetByRequest(ctx context.Context, requestID, requestType string) ([]*entity.RequestedItem, error) {
	query := `
		SELECT id, request_id, request_type, item_master_id, nomenclature, custom_item_name,
			requested_quantity, unit_price, item_type, created_at
		FROM requested_items
		WHERE request_id = ? AND request_type = ?
		ORDER BY id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, requestID, requestType)
	if err != nil {
		r.logger.Error("Failed to get requested items", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get requested items: %w", err)
	}
	defer rows.Close()

	var items []*entity.RequestedItem
	for rows.Next() {
		var item entity.RequestedItem
		var masterID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.RequestType,
			&masterID,
			&item.Nomenclature,
			&item.CustomItemName,
			&item.RequestedQuantity,
			&item.UnitPrice,
			&item.ItemType,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requested item: %w", err)
		}
		if masterID.Valid {
			item.ItemMasterID = &masterID.Int64
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *RequestItemRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.RequestItemRepository = (*RequestItemRepository)(nil)
