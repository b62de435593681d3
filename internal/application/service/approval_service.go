package service

import (
	"context"
	"fmt"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// recentActionLimit caps the actions listed on a dashboard
const recentActionLimit = 10

// ApprovalService answers read-side questions about approvals
type ApprovalService interface {
	GetApproval(ctx context.Context, id int64) (*entity.RequestApproval, error)
	GetHistory(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error)
	// GetByRequest returns the most recent approval for a request
	GetByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error)
	ListPending(ctx context.Context, userID string) ([]*entity.RequestApproval, error)
	Dashboard(ctx context.Context, userID string) (*entity.DashboardCounts, error)
	GetDispositions(ctx context.Context, approvalID int64) ([]*entity.ItemDisposition, error)
}

type approvalServiceImpl struct {
	approvalRepo    port.ApprovalRepository
	historyRepo     port.HistoryRepository
	dispositionRepo port.DispositionRepository
	logger          Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	approvalRepo port.ApprovalRepository,
	historyRepo port.HistoryRepository,
	dispositionRepo port.DispositionRepository,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		approvalRepo:    approvalRepo,
		historyRepo:     historyRepo,
		dispositionRepo: dispositionRepo,
		logger:          logger,
	}
}

// GetApproval retrieves an approval by ID
func (s *approvalServiceImpl) GetApproval(ctx context.Context, id int64) (*entity.RequestApproval, error) {
	approval, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get approval", "error", err, "id", id)
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: approval %d", entity.ErrNotFound, id)
	}
	return approval, nil
}

// GetHistory returns the audit trail of an approval in step order
func (s *approvalServiceImpl) GetHistory(ctx context.Context, approvalID int64) ([]*entity.ApprovalHistory, error) {
	if _, err := s.GetApproval(ctx, approvalID); err != nil {
		return nil, err
	}

	history, err := s.historyRepo.GetByApprovalID(ctx, approvalID)
	if err != nil {
		s.logger.Error("Failed to get history", "error", err, "approval_id", approvalID)
		return nil, err
	}
	return history, nil
}

// GetByRequest returns the latest approval submitted for a request
func (s *approvalServiceImpl) GetByRequest(ctx context.Context, requestID, requestType string) (*entity.RequestApproval, error) {
	approval, err := s.approvalRepo.GetLatestByRequest(ctx, requestID, requestType)
	if err != nil {
		s.logger.Error("Failed to get approval by request", "error", err, "request_id", requestID, "request_type", requestType)
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: no approval for request %s (%s)", entity.ErrNotFound, requestID, requestType)
	}
	return approval, nil
}

// ListPending returns approvals waiting on userID
func (s *approvalServiceImpl) ListPending(ctx context.Context, userID string) ([]*entity.RequestApproval, error) {
	approvals, err := s.approvalRepo.ListPendingFor(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err, "user_id", userID)
		return nil, err
	}
	return approvals, nil
}

// Dashboard summarises the approvals a user holds or has acted on
func (s *approvalServiceImpl) Dashboard(ctx context.Context, userID string) (*entity.DashboardCounts, error) {
	pending, err := s.ListPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts, err := s.approvalRepo.CountActedOn(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to count approvals", "error", err, "user_id", userID)
		return nil, err
	}

	recent, err := s.historyRepo.RecentByActor(ctx, userID, recentActionLimit)
	if err != nil {
		s.logger.Error("Failed to list recent actions", "error", err, "user_id", userID)
		return nil, err
	}
	if recent == nil {
		recent = []*entity.ApprovalHistory{}
	}

	return &entity.DashboardCounts{
		Pending:       len(pending),
		Approved:      counts[entity.StatusApproved],
		Rejected:      counts[entity.StatusRejected],
		Finalized:     counts[entity.StatusFinalized],
		RecentActions: recent,
	}, nil
}

// GetDispositions returns the per-item outcome recorded at approval
func (s *approvalServiceImpl) GetDispositions(ctx context.Context, approvalID int64) ([]*entity.ItemDisposition, error) {
	if _, err := s.GetApproval(ctx, approvalID); err != nil {
		return nil, err
	}

	dispositions, err := s.dispositionRepo.GetByApprovalID(ctx, approvalID)
	if err != nil {
		s.logger.Error("Failed to get dispositions", "error", err, "approval_id", approvalID)
		return nil, err
	}
	return dispositions, nil
}
