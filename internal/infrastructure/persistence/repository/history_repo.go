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

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

const historyColumns = `
	id, approval_id, step_number, action_type, action_by, forwarded_from,
	forwarded_to, comments, action_date, is_current_step`

// Append inserts a history step. Step numbers are unique per approval.
func (r *HistoryRepository) Append(ctx context.Context, step *entity.ApprovalHistory) error {
	query := `
		INSERT INTO approval_history (
			approval_id, step_number, action_type, action_by, forwarded_from,
			forwarded_to, comments, action_date, is_current_step
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		step.ApprovalID,
		step.StepNumber,
		step.ActionType,
		step.ActionBy,
		step.ForwardedFrom,
		step.ForwardedTo,
		step.Comments,
		step.ActionDate,
		boolToInt(step.IsCurrentStep),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: step %d of approval %d already recorded", entity.ErrStaleState, step.StepNumber, step.ApprovalID)
		}
		r.logger.Error("Failed to append history step", zap.Int64("approval_id", step.ApprovalID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	step.ID = id
	return nil
}

// GetByApprovalID retrieves the audit trail of an approval in step order
func (r *HistoryRepository) GetByApprovalID(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error) {
	query := `SELECT ` + historyColumns + `
		FROM approval_history
		WHERE approval_id = ?
		ORDER BY step_number ASC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, approvalID)
	if err != nil {
		r.logger.Error("Failed to get history by approval ID", zap.Int64("approval_id", approvalID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

// ClearCurrent unsets is_current_step on every step of an approval
func (r *HistoryRepository) ClearCurrent(ctx context.Context, approvalID int64) error {
	query := `UPDATE approval_history SET is_current_step = 0 WHERE approval_id = ? AND is_current_step = 1`

	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, approvalID); err != nil {
		r.logger.Error("Failed to clear current step", zap.Int64("approval_id", approvalID), zap.Error(err))
		return fmt.Errorf("failed to clear current step: %w", err)
	}
	return nil
}

// NextStepNumber returns one past the highest recorded step
func (r *HistoryRepository) NextStepNumber(ctx context.Context, approvalID int64) (int, error) {
	query := `SELECT COALESCE(MAX(step_number), 0) + 1 FROM approval_history WHERE approval_id = ?`

	var next int
	if err := r.getExecutor(ctx).QueryRowContext(ctx, query, approvalID).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next step number: %w", err)
	}
	return next, nil
}

// RecentByActor returns the latest steps recorded by userID, newest first
func (r *HistoryRepository) RecentByActor(ctx context.Context, userID string, limit int) ([]*entity.ApprovalHistory, error) {
	query := `SELECT ` + historyColumns + `
		FROM approval_history
		WHERE action_by = ? AND step_number > 1
		ORDER BY action_date DESC, id DESC
		LIMIT ?`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to get recent actions", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get recent actions: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]*entity.ApprovalHistory, error) {
	var records []*entity.ApprovalHistory
	for rows.Next() {
		var h entity.ApprovalHistory
		err := rows.Scan(
			&h.ID,
			&h.ApprovalID,
			&h.StepNumber,
			&h.ActionType,
			&h.ActionBy,
			&h.ForwardedFrom,
			&h.ForwardedTo,
			&h.Comments,
			&h.ActionDate,
			&h.IsCurrentStep,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &h)
	}

	return records, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *HistoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
