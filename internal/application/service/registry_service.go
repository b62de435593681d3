package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/application/workflow"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/pkg/utils"
)

// RegistryService resolves workflows for the engine and administers them
type RegistryService interface {
	workflow.Registry

	CreateWorkflow(ctx context.Context, wf *entity.WorkflowDefinition) error
	ListWorkflows(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	SetWorkflowActive(ctx context.Context, workflowID int64, active bool) error

	// AddApprover and RemoveApprover never touch the current approver of in-flight approvals
	AddApprover(ctx context.Context, approver *entity.WorkflowApprover) error
	RemoveApprover(ctx context.Context, workflowID int64, userID string) error
}

type registryServiceImpl struct {
	workflowRepo port.WorkflowRepository
	approverRepo port.ApproverRepository
	txManager    port.TransactionManager
	cache        *gocache.Cache
	logger       Logger
}

// NewRegistryService creates a RegistryService with a read-through cache.
// A ttl of zero disables caching.
func NewRegistryService(
	workflowRepo port.WorkflowRepository,
	approverRepo port.ApproverRepository,
	txManager port.TransactionManager,
	ttl time.Duration,
	logger Logger,
) RegistryService {
	s := &registryServiceImpl{
		workflowRepo: workflowRepo,
		approverRepo: approverRepo,
		txManager:    txManager,
		logger:       logger,
	}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

func workflowKey(id int64) string { return fmt.Sprintf("wf:%d", id) }
func requestTypeKey(rt string) string { return "type:" + rt }
func approversKey(workflowID int64) string { return fmt.Sprintf("approvers:%d", workflowID) }

// ResolveWorkflow returns the active workflow for a request type
func (s *registryServiceImpl) ResolveWorkflow(ctx context.Context, requestType string) (*entity.WorkflowDefinition, error) {
	if wf, ok := s.cached(requestTypeKey(requestType)); ok {
		return wf.(*entity.WorkflowDefinition), nil
	}

	wf, err := s.workflowRepo.GetActiveByRequestType(ctx, requestType)
	if err != nil {
		s.logger.Error("Failed to resolve workflow", "error", err, "request_type", requestType)
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: no active workflow for request type %s", entity.ErrNotFound, requestType)
	}

	s.store(requestTypeKey(requestType), wf)
	return wf, nil
}

// GetWorkflow returns a workflow by id, active or not
func (s *registryServiceImpl) GetWorkflow(ctx context.Context, workflowID int64) (*entity.WorkflowDefinition, error) {
	if wf, ok := s.cached(workflowKey(workflowID)); ok {
		return wf.(*entity.WorkflowDefinition), nil
	}

	wf, err := s.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		s.logger.Error("Failed to get workflow", "error", err, "workflow_id", workflowID)
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %d", entity.ErrNotFound, workflowID)
	}

	s.store(workflowKey(workflowID), wf)
	return wf, nil
}

// ListApprovers returns approvers ordered by level, then id
func (s *registryServiceImpl) ListApprovers(ctx context.Context, workflowID int64) ([]*entity.WorkflowApprover, error) {
	if approvers, ok := s.cached(approversKey(workflowID)); ok {
		return approvers.([]*entity.WorkflowApprover), nil
	}

	approvers, err := s.approverRepo.ListByWorkflow(ctx, workflowID)
	if err != nil {
		s.logger.Error("Failed to list approvers", "error", err, "workflow_id", workflowID)
		return nil, err
	}

	s.store(approversKey(workflowID), approvers)
	return approvers, nil
}

// CreateWorkflow registers a workflow definition
func (s *registryServiceImpl) CreateWorkflow(ctx context.Context, wf *entity.WorkflowDefinition) error {
	wf.WorkflowName = utils.SanitizeString(wf.WorkflowName)
	if err := utils.RequireText("workflow_name", wf.WorkflowName); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidWorkflow, err)
	}
	if err := utils.ValidateIdentifier("request_type", wf.RequestType); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidWorkflow, err)
	}

	if err := s.workflowRepo.Create(ctx, wf); err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "request_type", wf.RequestType)
		return err
	}

	s.forget(requestTypeKey(wf.RequestType))
	s.logger.Info("Workflow created", "workflow_id", wf.ID, "request_type", wf.RequestType, "active", wf.IsActive)
	return nil
}

// ListWorkflows returns every workflow definition
func (s *registryServiceImpl) ListWorkflows(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	workflows, err := s.workflowRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list workflows", "error", err)
		return nil, err
	}
	return workflows, nil
}

// SetWorkflowActive switches a workflow on or off
func (s *registryServiceImpl) SetWorkflowActive(ctx context.Context, workflowID int64, active bool) error {
	wf, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	if err := s.workflowRepo.SetActive(ctx, workflowID, active); err != nil {
		s.logger.Error("Failed to set workflow active", "error", err, "workflow_id", workflowID, "active", active)
		return err
	}

	s.forget(workflowKey(workflowID), requestTypeKey(wf.RequestType))
	s.logger.Info("Workflow activation changed", "workflow_id", workflowID, "active", active)
	return nil
}

// AddApprover adds a user to a workflow
func (s *registryServiceImpl) AddApprover(ctx context.Context, approver *entity.WorkflowApprover) error {
	if err := utils.ValidateIdentifier("user_id", approver.UserID); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidWorkflow, err)
	}
	if !approver.CanApprove && !approver.CanForward && !approver.CanFinalize {
		return fmt.Errorf("%w: approver %s has no capabilities", entity.ErrInvalidWorkflow, approver.UserID)
	}
	approver.UserName = utils.SanitizeString(approver.UserName)
	approver.ApproverRole = strings.TrimSpace(approver.ApproverRole)

	if _, err := s.GetWorkflow(ctx, approver.WorkflowID); err != nil {
		return err
	}

	if err := s.approverRepo.Create(ctx, approver); err != nil {
		s.logger.Error("Failed to add approver", "error", err, "workflow_id", approver.WorkflowID, "user_id", approver.UserID)
		return err
	}

	s.forget(approversKey(approver.WorkflowID))
	s.logger.Info("Approver added", "workflow_id", approver.WorkflowID, "user_id", approver.UserID)
	return nil
}

// RemoveApprover removes a user from a workflow. The last finalizer cannot be
// removed while other approvers remain.
func (s *registryServiceImpl) RemoveApprover(ctx context.Context, workflowID int64, userID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		approvers, err := s.approverRepo.ListByWorkflow(txCtx, workflowID)
		if err != nil {
			return err
		}

		target := entity.FindApprover(approvers, userID)
		if target == nil {
			return fmt.Errorf("%w: approver %s in workflow %d", entity.ErrNotFound, userID, workflowID)
		}

		if target.CanFinalize && len(approvers) > 1 && countFinalizers(approvers) == 1 {
			return fmt.Errorf("%w: %s is the last finalizer of workflow %d", entity.ErrInvalidWorkflow, userID, workflowID)
		}

		removed, err := s.approverRepo.Delete(txCtx, workflowID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: approver %s in workflow %d", entity.ErrNotFound, userID, workflowID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to remove approver", "error", err, "workflow_id", workflowID, "user_id", userID)
		return err
	}

	s.forget(approversKey(workflowID))
	s.logger.Info("Approver removed", "workflow_id", workflowID, "user_id", userID)
	return nil
}

func countFinalizers(approvers []*entity.WorkflowApprover) int {
	n := 0
	for _, a := range approvers {
		if a.CanFinalize {
			n++
		}
	}
	return n
}

func (s *registryServiceImpl) cached(key string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *registryServiceImpl) store(key string, v interface{}) {
	if s.cache != nil {
		s.cache.SetDefault(key, v)
	}
}

func (s *registryServiceImpl) forget(keys ...string) {
	if s.cache == nil {
		return
	}
	for _, k := range keys {
		s.cache.Delete(k)
	}
}

// Verify interface compliance
var _ workflow.Registry = (*registryServiceImpl)(nil)
