package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// CreateWorkflowRequest is the body of POST /api/workflows
type CreateWorkflowRequest struct {
	WorkflowName string `json:"workflow_name"`
	RequestType  string `json:"request_type"`
	OfficeID     *int64 `json:"office_id"`
	Description  string `json:"description"`
	IsActive     *bool  `json:"is_active"`
}

// SetActiveRequest is the body of PUT /api/workflows/:id/active
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AddApproverRequest is the body of POST /api/workflows/:id/approvers
type AddApproverRequest struct {
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	ApproverRole  string `json:"approver_role"`
	ApproverLevel int    `json:"approver_level"`
	CanApprove    bool   `json:"can_approve"`
	CanForward    bool   `json:"can_forward"`
	CanFinalize   bool   `json:"can_finalize"`
}

// AdjustStockRequest is the body of POST /api/stock/:id/adjust
type AdjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.services.Registry.ListWorkflows(c.Request.Context())
	if err != nil {
		h.writeError(c, "list_workflows", err)
		return
	}
	if workflows == nil {
		workflows = []*entity.WorkflowDefinition{}
	}
	h.ok(c, http.StatusOK, workflows)
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	wf := &entity.WorkflowDefinition{
		WorkflowName: req.WorkflowName,
		RequestType:  req.RequestType,
		OfficeID:     req.OfficeID,
		Description:  req.Description,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.services.Registry.CreateWorkflow(c.Request.Context(), wf); err != nil {
		h.writeError(c, "create_workflow", err)
		return
	}

	h.logger.Info("Workflow created", "workflow_id", wf.ID, "request_type", wf.RequestType)
	h.ok(c, http.StatusCreated, wf)
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	wf, err := h.services.Registry.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_workflow", err)
		return
	}
	h.ok(c, http.StatusOK, wf)
}

// SetWorkflowActive handles PUT /api/workflows/:id/active
func (h *Handlers) SetWorkflowActive(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.services.Registry.SetWorkflowActive(c.Request.Context(), id, *req.Active); err != nil {
		h.writeError(c, "set_workflow_active", err)
		return
	}
	wf, err := h.services.Registry.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_workflow", err)
		return
	}
	h.ok(c, http.StatusOK, wf)
}

// ListApprovers handles GET /api/workflows/:id/approvers
func (h *Handlers) ListApprovers(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.services.Registry.GetWorkflow(c.Request.Context(), id); err != nil {
		h.writeError(c, "get_workflow", err)
		return
	}
	approvers, err := h.services.Registry.ListApprovers(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "list_approvers", err)
		return
	}
	if approvers == nil {
		approvers = []*entity.WorkflowApprover{}
	}
	h.ok(c, http.StatusOK, approvers)
}

// AddApprover handles POST /api/workflows/:id/approvers
func (h *Handlers) AddApprover(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	var req AddApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	approver := &entity.WorkflowApprover{
		WorkflowID:    id,
		UserID:        req.UserID,
		UserName:      req.UserName,
		ApproverRole:  req.ApproverRole,
		ApproverLevel: req.ApproverLevel,
		CanApprove:    req.CanApprove,
		CanForward:    req.CanForward,
		CanFinalize:   req.CanFinalize,
	}
	if err := h.services.Registry.AddApprover(c.Request.Context(), approver); err != nil {
		h.writeError(c, "add_approver", err)
		return
	}
	h.ok(c, http.StatusCreated, approver)
}

// RemoveApprover handles DELETE /api/workflows/:id/approvers/:userId
func (h *Handlers) RemoveApprover(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Registry.RemoveApprover(c.Request.Context(), id, c.Param("userId")); err != nil {
		h.writeError(c, "remove_approver", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListStock handles GET /api/stock
func (h *Handlers) ListStock(c *gin.Context) {
	records, err := h.services.Inventory.ListStock(c.Request.Context())
	if err != nil {
		h.writeError(c, "list_stock", err)
		return
	}
	if records == nil {
		records = []*entity.StockRecord{}
	}
	h.ok(c, http.StatusOK, records)
}

// AdjustStock handles POST /api/stock/:id/adjust
func (h *Handlers) AdjustStock(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.services.Inventory.AdjustStock(c.Request.Context(), id, req.Delta, actor, req.Reason)
	if err != nil {
		h.writeError(c, "adjust_stock", err)
		return
	}
	h.ok(c, http.StatusOK, rec)
}

// StockLog handles GET /api/stock/:id/log?limit=N
func (h *Handlers) StockLog(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, "invalid limit: "+raw)
			return
		}
		limit = n
	}

	logs, err := h.services.Inventory.StockLog(c.Request.Context(), id, limit)
	if err != nil {
		h.writeError(c, "stock_log", err)
		return
	}
	if logs == nil {
		logs = []*entity.InventoryLog{}
	}
	h.ok(c, http.StatusOK, logs)
}
