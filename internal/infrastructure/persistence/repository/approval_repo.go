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

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `
	id, request_id, request_type, workflow_id, current_status, current_approver_id,
	submitted_by, submitted_date, approved_by, approved_date, finalized_by, finalized_date,
	rejected_by, rejected_date, rejection_reason, version, created_at, updated_at`

// Create inserts a new approval with version 1.
// A second active approval for the same request fails with entity.ErrDuplicateSubmission.
func (r *ApprovalRepository) Create(ctx context.Context, a *entity.RequestApproval) error {
	query := `
		INSERT INTO request_approvals (
			request_id, request_type, workflow_id, current_status, current_approver_id,
			submitted_by, submitted_date, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		a.RequestID,
		a.RequestType,
		a.WorkflowID,
		a.CurrentStatus,
		a.CurrentApproverID,
		a.SubmittedBy,
		a.SubmittedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request %s (%s) already has an active approval", entity.ErrDuplicateSubmission, a.RequestID, a.RequestType)
		}
		r.logger.Error("Failed to create approval", zap.String("request_id", a.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	a.Version = 1
	return nil
}

// GetByID retrieves an approval by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.RequestApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM request_approvals WHERE id = ?`

	a, err := scanApproval(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get approval by ID", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return a, nil
}

// GetActiveByRequest retrieves the pending or approved approval for a request
func (r *ApprovalRepository) GetActiveByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM request_approvals
		WHERE request_id = ? AND request_type = ? AND current_status IN ('pending', 'approved')`

	return scanApproval(r.getExecutor(ctx).QueryRowContext(ctx, query, requestID, requestType))
}

// GetLatestByRequest retrieves the most recent approval for a request, whatever its status
func (r *ApprovalRepository) GetLatestByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM request_approvals
		WHERE request_id = ? AND request_type = ?
		ORDER BY id DESC
		LIMIT 1`

	return scanApproval(r.getExecutor(ctx).QueryRowContext(ctx, query, requestID, requestType))
}

// Update writes status, pointer and outcome fields guarded by the version column
func (r *ApprovalRepository) Update(ctx context.Context, a *entity.RequestApproval) error {
	query := `
		UPDATE request_approvals SET
			current_status = ?, current_approver_id = ?,
			approved_by = ?, approved_date = ?,
			finalized_by = ?, finalized_date = ?,
			rejected_by = ?, rejected_date = ?, rejection_reason = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		a.CurrentStatus,
		a.CurrentApproverID,
		a.ApprovedBy,
		a.ApprovedDate,
		a.FinalizedBy,
		a.FinalizedDate,
		a.RejectedBy,
		a.RejectedDate,
		a.RejectionReason,
		a.ID,
		a.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.Int64("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: approval %d changed since version %d", entity.ErrStaleState, a.ID, a.Version)
	}

	a.Version++
	return nil
}

// ListPendingFor returns pending approvals whose current approver is userID, oldest first
func (r *ApprovalRepository) ListPendingFor(ctx context.Context, userID string) ([]*entity.RequestApproval, error) {
	query := `SELECT ` + approvalColumns + `
		FROM request_approvals
		WHERE current_approver_id = ? AND current_status = 'pending'
		ORDER BY submitted_date ASC, id ASC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.RequestApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}

	return approvals, rows.Err()
}

// CountActedOn counts approvals by current status where userID recorded a step after submission
func (r *ApprovalRepository) CountActedOn(ctx context.Context, userID string) (map[string]int, error) {
	query := `
		SELECT ra.current_status, COUNT(*)
		FROM request_approvals ra
		WHERE EXISTS (
			SELECT 1 FROM approval_history h
			WHERE h.approval_id = ra.id AND h.action_by = ? AND h.step_number > 1
		)
		GROUP BY ra.current_status
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to count approvals", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to count approvals: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func scanApproval(row rowScanner) (*entity.RequestApproval, error) {
	var a entity.RequestApproval
	var approvedDate, finalizedDate, rejectedDate sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.RequestID,
		&a.RequestType,
		&a.WorkflowID,
		&a.CurrentStatus,
		&a.CurrentApproverID,
		&a.SubmittedBy,
		&a.SubmittedDate,
		&a.ApprovedBy,
		&approvedDate,
		&a.FinalizedBy,
		&finalizedDate,
		&a.RejectedBy,
		&rejectedDate,
		&a.RejectionReason,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	if approvedDate.Valid {
		a.ApprovedDate = &approvedDate.Time
	}
	if finalizedDate.Valid {
		a.FinalizedDate = &finalizedDate.Time
	}
	if rejectedDate.Valid {
		a.RejectedDate = &rejectedDate.Time
	}

	return &a, nil
}

// getExecutor returns appropriate executor based on context
func (r *ApprovalRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
