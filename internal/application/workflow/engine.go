package workflow

import (
	"context"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// ApprovalEngine drives request approvals through their workflow.
// Every mutating call is atomic: status, history, dispositions and stock
// reservations are committed together or not at all.
type ApprovalEngine interface {
	// Submit opens a pending approval for a request and snapshots its line items
	Submit(ctx context.Context, req SubmitRequest) (*entity.RequestApproval, error)

	// Forward hands the approval to another approver of the same workflow
	Forward(ctx context.Context, approvalID int64, actorID, targetID, comments string) (*entity.RequestApproval, error)

	// Approve records allocation decisions, reserves stock and moves the approval to approved
	Approve(ctx context.Context, approvalID int64, actorID string, decisions []entity.AllocationDecision, comments string) (*ApproveResult, error)

	// Reject ends the approval with a reason. A blank reason fails with
	// ErrInvalidAllocation, the kind used for every rejection reason check.
	Reject(ctx context.Context, approvalID int64, actorID, reason string) (*entity.RequestApproval, error)

	// Finalize closes an approved approval
	Finalize(ctx context.Context, approvalID int64, actorID, comments string) (*entity.RequestApproval, error)

	// AvailableTargets lists who the approval may be forwarded to
	AvailableTargets(ctx context.Context, approvalID int64) ([]*entity.WorkflowApprover, error)
}

// Registry resolves workflows and their approvers.
// Lookups that find nothing return an error wrapping entity.ErrNotFound.
type Registry interface {
	ResolveWorkflow(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error)
	GetWorkflow(ctx context.Context, workflowID int64) (*entity.WorkflowDefinition, error)
	ListApprovers(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error)
}

// SubmitRequest carries a new submission.
// WorkflowID is optional; zero resolves the active workflow for RequestType.
// Items may be empty when resubmitting a request whose items are already recorded.
type SubmitRequest struct {
	RequestID   string                  `json:"request_id"`
	RequestType string                  `json:"request_type"`
	WorkflowID  int64                   `json:"workflow_id,omitempty"`
	SubmittedBy string                  `json:"submitted_by"`
	Items       []*entity.RequestedItem `json:"items"`
}

// ApproveResult is the approval after Approve together with its per-item outcome
type ApproveResult struct {
	Approval     *entity.RequestApproval   `json:"approval"`
	Dispositions []*entity.ItemDisposition `json:"dispositions"`
}
