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

// StockRepository implements port.StockRepository
type StockRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *sql.DB, logger *zap.Logger) port.StockRepository {
	return &StockRepository{
		db:     db,
		logger: logger,
	}
}

const stockSelect = `
	SELECT s.id, s.item_master_id, m.item_code, m.nomenclature, m.description, m.specifications,
		m.unit_of_measurement, m.category, m.subcategory, s.current_quantity, s.reserved_quantity,
		s.reorder_point, m.is_active, s.updated_at
	FROM inventory_stock s
	JOIN item_masters m ON m.id = s.item_master_id`

// CreateItemMaster inserts a catalog entry
func (r *StockRepository) CreateItemMaster(ctx context.Context, item *entity.ItemMaster) error {
	query := `
		INSERT INTO item_masters (
			item_code, nomenclature, description, specifications, unit_of_measurement,
			category, subcategory, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		item.ItemCode,
		item.Nomenclature,
		item.Description,
		item.Specifications,
		item.UnitOfMeasurement,
		item.Category,
		item.Subcategory,
		boolToInt(item.IsActive),
	)
	if err != nil {
		r.logger.Error("Failed to create item master", zap.String("item_code", item.ItemCode), zap.Error(err))
		return fmt.Errorf("failed to create item master: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	item.ID = id
	return nil
}

// GetItemMasterByCode retrieves a catalog entry by item code
func (r *StockRepository) GetItemMasterByCode(ctx context.Context, code string) (*entity.ItemMaster, error) {
	query := `
		SELECT id, item_code, nomenclature, description, specifications, unit_of_measurement,
			category, subcategory, is_active, created_at
		FROM item_masters
		WHERE item_code = ?
	`

	var m entity.ItemMaster
	err := r.getExecutor(ctx).QueryRowContext(ctx, query, code).Scan(
		&m.ID,
		&m.ItemCode,
		&m.Nomenclature,
		&m.Description,
		&m.Specifications,
		&m.UnitOfMeasurement,
		&m.Category,
		&m.Subcategory,
		&m.IsActive,
		&m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item master: %w", err)
	}
	return &m, nil
}

// CreateStock opens a stock row for a catalog entry
func (r *StockRepository) CreateStock(ctx context.Context, itemMasterID int64, quantity, reorderPoint int) (int64, error) {
	query := `INSERT INTO inventory_stock (item_master_id, current_quantity, reorder_point) VALUES (?, ?, ?)`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, itemMasterID, quantity, reorderPoint)
	if err != nil {
		r.logger.Error("Failed to create stock row", zap.Int64("item_master_id", itemMasterID), zap.Error(err))
		return 0, fmt.Errorf("failed to create stock row: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// ListCatalog returns every stock row with its catalog fields
func (r *StockRepository) ListCatalog(ctx context.Context) ([]*entity.StockRecord, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, stockSelect+` ORDER BY s.id ASC`)
	if err != nil {
		r.logger.Error("Failed to list stock", zap.Error(err))
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	defer rows.Close()

	var records []*entity.StockRecord
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetByID retrieves one stock row
func (r *StockRepository) GetByID(ctx context.Context, inventoryID int64) (*entity.StockRecord, error) {
	rec, err := scanStock(r.getExecutor(ctx).QueryRowContext(ctx, stockSelect+` WHERE s.id = ?`, inventoryID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Reserve moves qty into reserved_quantity while enough stock is unreserved
func (r *StockRepository) Reserve(ctx context.Context, inventoryID int64, qty int) (bool, error) {
	query := `
		UPDATE inventory_stock
		SET reserved_quantity = reserved_quantity + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND current_quantity - reserved_quantity >= ?
	`
	return r.guardedUpdate(ctx, "reserve", query, inventoryID, qty, inventoryID, qty)
}

// Issue removes qty from stock that was previously reserved
func (r *StockRepository) Issue(ctx context.Context, inventoryID int64, qty int) (bool, error) {
	query := `
		UPDATE inventory_stock
		SET current_quantity = current_quantity - ?, reserved_quantity = reserved_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND reserved_quantity >= ?
	`
	return r.guardedUpdate(ctx, "issue", query, inventoryID, qty, qty, inventoryID, qty)
}

// Adjust changes current_quantity by delta without dropping below what is reserved
func (r *StockRepository) Adjust(ctx context.Context, inventoryID int64, delta int) (bool, error) {
	query := `
		UPDATE inventory_stock
		SET current_quantity = current_quantity + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND current_quantity + ? >= reserved_quantity
	`
	return r.guardedUpdate(ctx, "adjust", query, inventoryID, delta, inventoryID, delta)
}

func (r *StockRepository) guardedUpdate(ctx context.Context, op, query string, inventoryID int64, args ...interface{}) (bool, error) {
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update stock", zap.String("op", op), zap.Int64("inventory_id", inventoryID), zap.Error(err))
		return false, fmt.Errorf("failed to %s stock: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func scanStock(row rowScanner) (*entity.StockRecord, error) {
	var s entity.StockRecord
	err := row.Scan(
		&s.InventoryID,
		&s.ItemMasterID,
		&s.ItemCode,
		&s.Nomenclature,
		&s.Description,
		&s.Specifications,
		&s.UnitOfMeasurement,
		&s.Category,
		&s.Subcategory,
		&s.CurrentQuantity,
		&s.ReservedQuantity,
		&s.ReorderPoint,
		&s.IsActive,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock record: %w", err)
	}
	return &s, nil
}

// getExecutor returns appropriate executor based on context
func (r *StockRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.StockRepository = (*StockRepository)(nil)
