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

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `id, workflow_name, request_type, office_id, description, is_active, created_at, updated_at`

// Create inserts a workflow definition.
// A second active workflow for the same request type fails with entity.ErrInvalidWorkflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.WorkflowDefinition) error {
	query := `
		INSERT INTO workflows (workflow_name, request_type, office_id, description, is_active)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		wf.WorkflowName,
		wf.RequestType,
		wf.OfficeID,
		wf.Description,
		boolToInt(wf.IsActive),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: an active workflow already exists for request type %s", entity.ErrInvalidWorkflow, wf.RequestType)
		}
		r.logger.Error("Failed to create workflow", zap.String("request_type", wf.RequestType), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	wf.ID = id
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ?`
	return r.scanOne(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
}

// GetActiveByRequestType retrieves the active workflow bound to a request type
func (r *WorkflowRepository) GetActiveByRequestType(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE request_type = ? AND is_active = 1`
	return r.scanOne(r.getExecutor(ctx).QueryRowContext(ctx, query, requestType))
}

// List returns every workflow ordered by ID
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY id`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.WorkflowDefinition
	for rows.Next() {
		wf, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}

	return workflows, rows.Err()
}

// SetActive toggles is_active
func (r *WorkflowRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE workflows SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, boolToInt(active), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: another workflow is already active for this request type", entity.ErrInvalidWorkflow)
		}
		r.logger.Error("Failed to update workflow", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: workflow %d", entity.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *WorkflowRepository) scanOne(row rowScanner) (*entity.WorkflowDefinition, error) {
	var wf entity.WorkflowDefinition
	var officeID sql.NullInt64

	err := row.Scan(
		&wf.ID,
		&wf.WorkflowName,
		&wf.RequestType,
		&officeID,
		&wf.Description,
		&wf.IsActive,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if officeID.Valid {
		wf.OfficeID = &officeID.Int64
	}
	return &wf, nil
}

// getExecutor returns appropriate executor based on context
func (r *WorkflowRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// ApproverRepository implements port.ApproverRepository
type ApproverRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApproverRepository creates a new approver repository
func NewApproverRepository(db *sql.DB, logger *zap.Logger) port.ApproverRepository {
	return &ApproverRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an approver. A user may appear only once per workflow.
func (r *ApproverRepository) Create(ctx context.Context, a *entity.WorkflowApprover) error {
	query := `
		INSERT INTO workflow_approvers (
			workflow_id, user_id, user_name, approver_role, approver_level,
			can_approve, can_forward, can_finalize
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		a.WorkflowID,
		a.UserID,
		a.UserName,
		a.ApproverRole,
		a.ApproverLevel,
		boolToInt(a.CanApprove),
		boolToInt(a.CanForward),
		boolToInt(a.CanFinalize),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s is already an approver of workflow %d", entity.ErrInvalidWorkflow, a.UserID, a.WorkflowID)
		}
		r.logger.Error("Failed to create approver", zap.Int64("workflow_id", a.WorkflowID), zap.String("user_id", a.UserID), zap.Error(err))
		return fmt.Errorf("failed to create approver: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	return nil
}

// ListByWorkflow returns approvers ordered by level, then ID
func (r *ApproverRepository) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error) {
	query := `
		SELECT id, workflow_id, user_id, user_name, approver_role, approver_level,
			can_approve, can_forward, can_finalize, created_at
		FROM workflow_approvers
		WHERE workflow_id = ?
		ORDER BY approver_level ASC, id ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list approvers", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvers: %w", err)
	}
	defer rows.Close()

	var approvers []*entity.WorkflowApprover
	for rows.Next() {
		var a entity.WorkflowApprover
		err := rows.Scan(
			&a.ID,
			&a.WorkflowID,
			&a.UserID,
			&a.UserName,
			&a.ApproverRole,
			&a.ApproverLevel,
			&a.CanApprove,
			&a.CanForward,
			&a.CanFinalize,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		approvers = append(approvers, &a)
	}

	return approvers, rows.Err()
}

// Delete removes a user from a workflow
func (r *ApproverRepository) Delete(ctx context.Context, workflowID int64, userID string) (bool, error) {
	query := `DELETE FROM workflow_approvers WHERE workflow_id = ? AND user_id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, workflowID, userID)
	if err != nil {
		r.logger.Error("Failed to delete approver", zap.Int64("workflow_id", workflowID), zap.String("user_id", userID), zap.Error(err))
		return false, fmt.Errorf("failed to delete approver: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// getExecutor returns appropriate executor based on context
func (r *ApproverRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var (
	_ port.WorkflowRepository = (*WorkflowRepository)(nil)
	_ port.ApproverRepository = (*ApproverRepository)(nil)
)
