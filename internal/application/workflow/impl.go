package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/domain/event"
	"github.com/garyjia/stock-approval/internal/domain/inventory"
	domainwf "github.com/garyjia/stock-approval/internal/domain/workflow"
)

var errNoGuard = fmt.Errorf("%w: action not available", entity.ErrNotAuthorized)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Repositories groups the persistence ports the engine writes through
type Repositories struct {
	Approvals     port.ApprovalRepository
	History       port.HistoryRepository
	Items         port.RequestItemRepository
	Stock         port.StockRepository
	Dispositions  port.DispositionRepository
	InventoryLogs port.InventoryLogRepository
}

// engineImpl is the concrete implementation of ApprovalEngine
type engineImpl struct {
	registry   Registry
	repos      Repositories
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
	locks      *keyedLocker
}

// EngineOption configures the approval engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets a logger for the engine
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new approval engine
func NewEngine(registry Registry, repos Repositories, txManager port.TransactionManager, opts ...EngineOption) ApprovalEngine {
	e := &engineImpl{
		registry:  registry,
		repos:     repos,
		txManager: txManager,
		now:       time.Now,
		locks:     newKeyedLocker(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// transitionContext is the state one mutating call works on inside its transaction
type transitionContext struct {
	approval  *entity.RequestApproval
	approvers []*entity.WorkflowApprover
	actorID   string
	actor     *entity.WorkflowApprover
	now       time.Time
	events    []*event.Event
}

func (tc *transitionContext) emit(eventType event.Type, payload map[string]interface{}) {
	tc.events = append(tc.events, event.NewEvent(eventType, tc.approval.ID, tc.approval.RequestID, payload))
}

// isCurrent reports whether the actor holds the pointer and passes check
func (tc *transitionContext) isCurrent(check func(*entity.WorkflowApprover) bool) bool {
	return tc.actor != nil && tc.approval.CurrentApproverID == tc.actorID && check(tc.actor)
}

// Submit opens a pending approval
func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.RequestApproval, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	var approval *entity.RequestApproval
	var events []*event.Event

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		wf, err := e.resolveWorkflow(txCtx, req)
		if err != nil {
			return err
		}

		approvers, err := e.registry.ListApprovers(txCtx, wf.ID)
		if err != nil {
			return err
		}
		initial := entity.InitialApprover(approvers)
		if initial == nil {
			return fmt.Errorf("%w: workflow %d has no approver that can approve or forward", entity.ErrInvalidWorkflow, wf.ID)
		}
		if entity.FirstFinalizer(approvers) == nil {
			return fmt.Errorf("%w: workflow %d has no finalizer", entity.ErrInvalidWorkflow, wf.ID)
		}

		// only a rejected request may be submitted again
		latest, err := e.repos.Approvals.GetLatestByRequest(txCtx, req.RequestID, req.RequestType)
		if err != nil {
			return err
		}
		if latest != nil && latest.CurrentStatus != entity.StatusRejected {
			return fmt.Errorf("%w: request %s already has %s approval %d", entity.ErrDuplicateSubmission, req.RequestID, latest.CurrentStatus, latest.ID)
		}

		now := e.now()
		approval = &entity.RequestApproval{
			RequestID:         req.RequestID,
			RequestType:       req.RequestType,
			WorkflowID:        wf.ID,
			CurrentStatus:     entity.StatusPending,
			CurrentApproverID: initial.UserID,
			SubmittedBy:       req.SubmittedBy,
			SubmittedDate:     now,
		}
		if err := e.repos.Approvals.Create(txCtx, approval); err != nil {
			return err
		}

		itemCount, err := e.recordItems(txCtx, req)
		if err != nil {
			return err
		}

		tc := &transitionContext{approval: approval, actorID: req.SubmittedBy, now: now}
		if err := e.appendStep(txCtx, tc, &entity.ApprovalHistory{
			ActionType:    entity.ActionForwarded,
			ActionBy:      req.SubmittedBy,
			ForwardedFrom: req.SubmittedBy,
			ForwardedTo:   initial.UserID,
			Comments:      "Submitted for approval",
			IsCurrentStep: true,
		}); err != nil {
			return err
		}

		tc.emit(event.TypeApprovalSubmitted, map[string]interface{}{
			"actor_id":    req.SubmittedBy,
			"workflow_id": wf.ID,
			"to":          initial.UserID,
			"item_count":  itemCount,
		})
		events = tc.events
		return nil
	})
	if err != nil {
		e.logError("Submit failed", err, "request_id", req.RequestID, "request_type", req.RequestType)
		return nil, err
	}

	e.publish(ctx, events)
	e.logInfo("Approval submitted", "approval_id", approval.ID, "request_id", approval.RequestID, "approver", approval.CurrentApproverID)
	return approval, nil
}

// Forward moves the pointer to targetID, keeping the approval pending
func (e *engineImpl) Forward(ctx context.Context, approvalID int64, actorID, targetID, comments string) (*entity.RequestApproval, error) {
	tc, err := e.transition(ctx, approvalID, actorID, domainwf.TriggerForward,
		func(tc *transitionContext) Guards {
			return Guards{Forward: func(context.Context) error {
				if !tc.isCurrent(func(a *entity.WorkflowApprover) bool { return a.CanForward }) {
					return fmt.Errorf("%w: %s cannot forward approval %d", entity.ErrNotAuthorized, actorID, approvalID)
				}
				targets := domainwf.ForwardTargets(tc.approvers, tc.approval.CurrentApproverID)
				if !domainwf.ContainsTarget(targets, targetID) {
					return fmt.Errorf("%w: %s", entity.ErrInvalidTarget, targetID)
				}
				return nil
			}}
		},
		func(txCtx context.Context, tc *transitionContext) error {
			tc.approval.CurrentApproverID = targetID
			if err := e.appendStep(txCtx, tc, &entity.ApprovalHistory{
				ActionType:    entity.ActionForwarded,
				ActionBy:      actorID,
				ForwardedFrom: actorID,
				ForwardedTo:   targetID,
				Comments:      strings.TrimSpace(comments),
				IsCurrentStep: true,
			}); err != nil {
				return err
			}
			tc.emit(event.TypeApprovalForwarded, map[string]interface{}{
				"actor_id": actorID,
				"from":     actorID,
				"to":       targetID,
			})
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return tc.approval, nil
}

// Approve resolves decisions against live stock, reserves it and hands the approval to a finalizer
func (e *engineImpl) Approve(ctx context.Context, approvalID int64, actorID string, decisions []entity.AllocationDecision, comments string) (*ApproveResult, error) {
	var resolution *inventory.Resolution

	tc, err := e.transition(ctx, approvalID, actorID, domainwf.TriggerApprove,
		func(tc *transitionContext) Guards {
			return Guards{Approve: func(context.Context) error {
				if !tc.isCurrent(func(a *entity.WorkflowApprover) bool { return a.CanApprove }) {
					return fmt.Errorf("%w: %s cannot approve approval %d", entity.ErrNotAuthorized, actorID, approvalID)
				}
				return nil
			}}
		},
		func(txCtx context.Context, tc *transitionContext) error {
			finalizer := tc.actor
			if !finalizer.CanFinalize {
				finalizer = entity.FirstFinalizer(tc.approvers)
			}
			if finalizer == nil {
				return fmt.Errorf("%w: workflow %d has no finalizer", entity.ErrInvalidWorkflow, tc.approval.WorkflowID)
			}

			res, err := e.allocate(txCtx, tc, decisions)
			if err != nil {
				return err
			}
			resolution = res

			tc.approval.ApprovedBy = actorID
			tc.approval.ApprovedDate = &tc.now
			tc.approval.CurrentApproverID = finalizer.UserID

			if err := e.appendStep(txCtx, tc, &entity.ApprovalHistory{
				ActionType:    entity.ActionApproved,
				ActionBy:      actorID,
				ForwardedFrom: actorID,
				ForwardedTo:   finalizer.UserID,
				Comments:      strings.TrimSpace(comments),
				IsCurrentStep: true,
			}); err != nil {
				return err
			}

			fulfilled, procurement, rejected := res.Totals()
			tc.emit(event.TypeApprovalApproved, map[string]interface{}{
				"actor_id":             actorID,
				"to":                   finalizer.UserID,
				"fulfilled_quantity":   fulfilled,
				"procurement_quantity": procurement,
				"rejected_quantity":    rejected,
			})
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	return &ApproveResult{Approval: tc.approval, Dispositions: resolution.Dispositions}, nil
}

// Reject ends a pending approval
func (e *engineImpl) Reject(ctx context.Context, approvalID int64, actorID, reason string) (*entity.RequestApproval, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", entity.ErrInvalidAllocation)
	}

	tc, err := e.transition(ctx, approvalID, actorID, domainwf.TriggerReject,
		func(tc *transitionContext) Guards {
			return Guards{Reject: func(context.Context) error {
				current := tc.isCurrent(func(a *entity.WorkflowApprover) bool { return a.CanApprove })
				elevated := tc.actor != nil && tc.actor.CanFinalize
				if !current && !elevated {
					return fmt.Errorf("%w: %s cannot reject approval %d", entity.ErrNotAuthorized, actorID, approvalID)
				}
				return nil
			}}
		},
		func(txCtx context.Context, tc *transitionContext) error {
			tc.approval.RejectedBy = actorID
			tc.approval.RejectedDate = &tc.now
			tc.approval.RejectionReason = reason
			tc.approval.CurrentApproverID = ""

			if err := e.appendStep(txCtx, tc, &entity.ApprovalHistory{
				ActionType: entity.ActionRejected,
				ActionBy:   actorID,
				Comments:   reason,
			}); err != nil {
				return err
			}
			tc.emit(event.TypeApprovalRejected, map[string]interface{}{
				"actor_id": actorID,
				"reason":   reason,
			})
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return tc.approval, nil
}

// Finalize closes an approved approval
func (e *engineImpl) Finalize(ctx context.Context, approvalID int64, actorID, comments string) (*entity.RequestApproval, error) {
	tc, err := e.transition(ctx, approvalID, actorID, domainwf.TriggerFinalize,
		func(tc *transitionContext) Guards {
			return Guards{Finalize: func(context.Context) error {
				if tc.actor == nil || !tc.actor.CanFinalize {
					return fmt.Errorf("%w: %s cannot finalize approval %d", entity.ErrNotAuthorized, actorID, approvalID)
				}
				return nil
			}}
		},
		func(txCtx context.Context, tc *transitionContext) error {
			tc.approval.FinalizedBy = actorID
			tc.approval.FinalizedDate = &tc.now
			tc.approval.CurrentApproverID = ""

			if err := e.appendStep(txCtx, tc, &entity.ApprovalHistory{
				ActionType: entity.ActionFinalized,
				ActionBy:   actorID,
				Comments:   strings.TrimSpace(comments),
			}); err != nil {
				return err
			}
			tc.emit(event.TypeApprovalFinalized, map[string]interface{}{
				"actor_id": actorID,
			})
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return tc.approval, nil
}

// AvailableTargets lists forwarding targets; only pending approvals have any
func (e *engineImpl) AvailableTargets(ctx context.Context, approvalID int64) ([]*entity.WorkflowApprover, error) {
	approval, err := e.repos.Approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: approval %d", entity.ErrNotFound, approvalID)
	}
	if approval.CurrentStatus != entity.StatusPending {
		return []*entity.WorkflowApprover{}, nil
	}

	approvers, err := e.registry.ListApprovers(ctx, approval.WorkflowID)
	if err != nil {
		return nil, err
	}
	return domainwf.ForwardTargets(approvers, approval.CurrentApproverID), nil
}

// transition runs one trigger against an approval under its lock and inside one transaction.
// Events collected by apply are published only after commit.
func (e *engineImpl) transition(
	ctx context.Context,
	approvalID int64,
	actorID string,
	trigger domainwf.Trigger,
	guards func(tc *transitionContext) Guards,
	apply func(txCtx context.Context, tc *transitionContext) error,
) (*transitionContext, error) {
	unlock := e.locks.Lock(approvalID)
	defer unlock()

	var tc *transitionContext

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		approval, err := e.repos.Approvals.GetByID(txCtx, approvalID)
		if err != nil {
			return err
		}
		if approval == nil {
			return fmt.Errorf("%w: approval %d", entity.ErrNotFound, approvalID)
		}

		state := domainwf.State(approval.CurrentStatus)
		if !state.IsValid() {
			return fmt.Errorf("approval %d has unknown status %q", approvalID, approval.CurrentStatus)
		}

		approvers, err := e.registry.ListApprovers(txCtx, approval.WorkflowID)
		if err != nil {
			return err
		}

		tc = &transitionContext{
			approval:  approval,
			approvers: approvers,
			actorID:   actorID,
			actor:     entity.FindApprover(approvers, actorID),
			now:       e.now(),
		}

		machine, err := BuildApprovalStateMachine(state, guards(tc))
		if err != nil {
			return err
		}
		if err := machine.Fire(txCtx, trigger); err != nil {
			return transitionError(approval, trigger, err)
		}
		approval.CurrentStatus = machine.State().String()

		if err := apply(txCtx, tc); err != nil {
			return err
		}

		return e.repos.Approvals.Update(txCtx, approval)
	})
	if err != nil {
		e.logError("Transition failed", err, "approval_id", approvalID, "trigger", trigger.String(), "actor_id", actorID)
		return nil, err
	}

	e.publish(ctx, tc.events)
	e.logInfo("Approval transitioned",
		"approval_id", approvalID,
		"trigger", trigger.String(),
		"actor_id", actorID,
		"status", tc.approval.CurrentStatus,
	)
	return tc, nil
}

// transitionError maps state machine failures onto domain errors
func transitionError(approval *entity.RequestApproval, trigger domainwf.Trigger, err error) error {
	switch {
	case errors.Is(err, domainwf.ErrGuardFailed):
		return err
	case trigger == domainwf.TriggerFinalize && approval.CurrentStatus == entity.StatusFinalized:
		return fmt.Errorf("%w: approval %d", entity.ErrAlreadyFinalized, approval.ID)
	default:
		return fmt.Errorf("%w: cannot %s approval %d in status %s", entity.ErrStaleState,
			strings.ToLower(trigger.String()), approval.ID, approval.CurrentStatus)
	}
}

// allocate matches the items against stock read inside the transaction, resolves
// the decisions over those matches and reserves the draw
func (e *engineImpl) allocate(txCtx context.Context, tc *transitionContext, decisions []entity.AllocationDecision) (*inventory.Resolution, error) {
	a := tc.approval

	items, err := e.repos.Items.GetByRequest(txCtx, a.RequestID, a.RequestType)
	if err != nil {
		return nil, err
	}

	catalog, err := e.repos.Stock.ListCatalog(txCtx)
	if err != nil {
		return nil, err
	}
	active := make([]*entity.StockRecord, 0, len(catalog))
	byID := make(map[int64]*entity.StockRecord, len(catalog))
	for _, rec := range catalog {
		if rec.IsActive {
			active = append(active, rec)
			byID[rec.InventoryID] = rec
		}
	}

	matches := inventory.MatchItems(items, active)
	res, err := inventory.Resolve(items, decisions, inventory.SnapshotOf(active), inventory.CandidatesOf(matches))
	if err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	for _, r := range res.Reservations {
		ok, err := e.repos.Stock.Reserve(txCtx, r.InventoryID, r.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: inventory %d no longer has %d available", entity.ErrInvalidAllocation, r.InventoryID, r.Quantity)
		}

		before := byID[r.InventoryID].AvailableQuantity()
		if err := e.repos.InventoryLogs.Create(txCtx, &entity.InventoryLog{
			InventoryID:     r.InventoryID,
			ApprovalID:      &a.ID,
			MovementType:    entity.MovementReserve,
			Reference:       reference,
			QuantityBefore:  before,
			QuantityAfter:   before - r.Quantity,
			QuantityChanged: -r.Quantity,
			PerformedBy:     tc.actorID,
			Reason:          fmt.Sprintf("reserved for request %s", a.RequestID),
		}); err != nil {
			return nil, err
		}
	}

	for _, d := range res.Dispositions {
		d.ApprovalID = a.ID
		d.CreatedAt = tc.now
	}
	if err := e.repos.Dispositions.CreateBatch(txCtx, res.Dispositions); err != nil {
		return nil, err
	}

	return res, nil
}

// appendStep clears the current marker and records the next history step
func (e *engineImpl) appendStep(txCtx context.Context, tc *transitionContext, step *entity.ApprovalHistory) error {
	if err := e.repos.History.ClearCurrent(txCtx, tc.approval.ID); err != nil {
		return err
	}

	next, err := e.repos.History.NextStepNumber(txCtx, tc.approval.ID)
	if err != nil {
		return err
	}

	step.ApprovalID = tc.approval.ID
	step.StepNumber = next
	step.ActionDate = tc.now
	return e.repos.History.Append(txCtx, step)
}

func (e *engineImpl) resolveWorkflow(ctx context.Context, req SubmitRequest) (*entity.WorkflowDefinition, error) {
	if req.WorkflowID == 0 {
		wf, err := e.registry.ResolveWorkflow(ctx, req.RequestType)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return nil, fmt.Errorf("%w: no active workflow for request type %s", entity.ErrInvalidWorkflow, req.RequestType)
			}
			return nil, err
		}
		return wf, nil
	}

	wf, err := e.registry.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: workflow %d does not exist", entity.ErrInvalidWorkflow, req.WorkflowID)
		}
		return nil, err
	}
	if !wf.IsActive {
		return nil, fmt.Errorf("%w: workflow %d is inactive", entity.ErrInvalidWorkflow, wf.ID)
	}
	if wf.RequestType != req.RequestType {
		return nil, fmt.Errorf("%w: workflow %d handles %s, not %s", entity.ErrInvalidWorkflow, wf.ID, wf.RequestType, req.RequestType)
	}
	return wf, nil
}

// recordItems snapshots the submitted line items. A resubmission after rejection
// sends no items and reuses those recorded the first time.
func (e *engineImpl) recordItems(txCtx context.Context, req SubmitRequest) (int, error) {
	existing, err := e.repos.Items.GetByRequest(txCtx, req.RequestID, req.RequestType)
	if err != nil {
		return 0, err
	}

	switch {
	case len(existing) > 0 && len(req.Items) > 0:
		return 0, fmt.Errorf("%w: items for request %s are already recorded", entity.ErrInvalidAllocation, req.RequestID)
	case len(existing) > 0:
		return len(existing), nil
	case len(req.Items) == 0:
		return 0, fmt.Errorf("%w: at least one item is required", entity.ErrInvalidAllocation)
	}

	for _, item := range req.Items {
		item.RequestID = req.RequestID
		item.RequestType = req.RequestType
	}
	if err := e.repos.Items.CreateBatch(txCtx, req.Items); err != nil {
		return 0, err
	}
	return len(req.Items), nil
}

func validateSubmission(req SubmitRequest) error {
	var problems []string
	if strings.TrimSpace(req.RequestID) == "" {
		problems = append(problems, "request_id is required")
	}
	if strings.TrimSpace(req.RequestType) == "" {
		problems = append(problems, "request_type is required")
	}
	if strings.TrimSpace(req.SubmittedBy) == "" {
		problems = append(problems, "submitted_by is required")
	}
	for i, item := range req.Items {
		if item == nil {
			problems = append(problems, fmt.Sprintf("item %d: missing", i))
			continue
		}
		if item.RequestedQuantity <= 0 {
			problems = append(problems, fmt.Sprintf("item %d: requested_quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("item %d: unit_price cannot be negative", i))
		}
		switch item.ItemType {
		case entity.ItemTypeInventory:
			if item.ItemMasterID == nil && strings.TrimSpace(item.Nomenclature) == "" {
				problems = append(problems, fmt.Sprintf("item %d: inventory items need item_master_id or nomenclature", i))
			}
		case entity.ItemTypeCustom:
			if strings.TrimSpace(item.SearchName()) == "" {
				problems = append(problems, fmt.Sprintf("item %d: custom items need a name", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("item %d: unknown item_type %q", i, item.ItemType))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", entity.ErrInvalidAllocation, strings.Join(problems, "; "))
	}
	return nil
}

func (e *engineImpl) publish(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil || len(events) == 0 {
		return
	}
	e.dispatcher.Publish(ctx, events...)
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, err error, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, append(keysAndValues, "error", err, "kind", entity.ErrorKind(err))...)
	}
}
