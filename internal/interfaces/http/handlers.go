package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/stock-approval/internal/application/workflow"
	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// actorHeader carries the acting user id. Authentication happens upstream.
const actorHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services     Services
	logger       Logger
	observeError func(kind string)
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger, observeError func(kind string)) *Handlers {
	return &Handlers{
		services:     services,
		logger:       logger,
		observeError: observeError,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// ForwardRequest is the body of POST /api/approvals/:id/forward
type ForwardRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Comments string `json:"comments"`
}

// ApproveRequest is the body of POST /api/approvals/:id/approve
type ApproveRequest struct {
	Decisions []entity.AllocationDecision `json:"decisions"`
	Comments  string                      `json:"comments"`
}

// RejectRequest is the body of POST /api/approvals/:id/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// FinalizeRequest is the body of POST /api/approvals/:id/finalize
type FinalizeRequest struct {
	Comments string `json:"comments"`
}

func (h *Handlers) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// actor returns the acting user or renders 403 when the header is missing
func (h *Handlers) actor(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(actorHeader))
	if id == "" {
		h.writeError(c, "actor", entity.ErrNotAuthorized)
		return "", false
	}
	return id, true
}

func (h *Handlers) idParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid "+name+": "+raw)
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one is present
func bindOptional(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}

// Submit handles POST /api/approvals
func (h *Handlers) Submit(c *gin.Context) {
	var req workflow.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.SubmittedBy == "" {
		req.SubmittedBy = strings.TrimSpace(c.GetHeader(actorHeader))
	}

	approval, err := h.services.Engine.Submit(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "submit", err)
		return
	}
	h.ok(c, http.StatusCreated, approval)
}

// GetApproval handles GET /api/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	approval, err := h.services.Approvals.GetApproval(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_approval", err)
		return
	}
	h.ok(c, http.StatusOK, approval)
}

// GetHistory handles GET /api/approvals/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	history, err := h.services.Approvals.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_history", err)
		return
	}
	h.ok(c, http.StatusOK, history)
}

// GetDispositions handles GET /api/approvals/:id/dispositions
func (h *Handlers) GetDispositions(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	dispositions, err := h.services.Approvals.GetDispositions(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_dispositions", err)
		return
	}
	h.ok(c, http.StatusOK, dispositions)
}

// AvailableTargets handles GET /api/approvals/:id/targets
func (h *Handlers) AvailableTargets(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	targets, err := h.services.Engine.AvailableTargets(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "available_targets", err)
		return
	}
	h.ok(c, http.StatusOK, targets)
}

// Forward handles POST /api/approvals/:id/forward
func (h *Handlers) Forward(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	approval, err := h.services.Engine.Forward(c.Request.Context(), id, actor, req.TargetID, req.Comments)
	if err != nil {
		h.writeError(c, "forward", err)
		return
	}
	h.ok(c, http.StatusOK, approval)
}

// Approve handles POST /api/approvals/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.services.Engine.Approve(c.Request.Context(), id, actor, req.Decisions, req.Comments)
	if err != nil {
		h.writeError(c, "approve", err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// Reject handles POST /api/approvals/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.badRequest(c, "reason is required")
		return
	}

	approval, err := h.services.Engine.Reject(c.Request.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeError(c, "reject", err)
		return
	}
	h.ok(c, http.StatusOK, approval)
}

// Finalize handles POST /api/approvals/:id/finalize
func (h *Handlers) Finalize(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := bindOptional(c, &req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}

	approval, err := h.services.Engine.Finalize(c.Request.Context(), id, actor, req.Comments)
	if err != nil {
		h.writeError(c, "finalize", err)
		return
	}
	h.ok(c, http.StatusOK, approval)
}

// IssueStock handles POST /api/approvals/:id/issue
func (h *Handlers) IssueStock(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	receipt, err := h.services.Inventory.IssueStock(c.Request.Context(), id, actor)
	if err != nil {
		h.writeError(c, "issue_stock", err)
		return
	}
	h.ok(c, http.StatusOK, receipt)
}

// GetByRequest handles GET /api/requests/:type/:requestId/approval
func (h *Handlers) GetByRequest(c *gin.Context) {
	approval, err := h.services.Approvals.GetByRequest(c.Request.Context(), c.Param("requestId"), c.Param("type"))
	if err != nil {
		h.writeError(c, "get_by_request", err)
		return
	}
	h.ok(c, http.StatusOK, approval)
}

// MatchRequest handles GET /api/requests/:type/:requestId/matches
func (h *Handlers) MatchRequest(c *gin.Context) {
	result, err := h.services.Inventory.MatchRequest(c.Request.Context(), c.Param("requestId"), c.Param("type"))
	if err != nil {
		h.writeError(c, "match_request", err)
		return
	}
	h.ok(c, http.StatusOK, result)
}

// ListPending handles GET /api/me/pending
func (h *Handlers) ListPending(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	pending, err := h.services.Approvals.ListPending(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, "list_pending", err)
		return
	}
	if pending == nil {
		pending = []*entity.RequestApproval{}
	}
	h.ok(c, http.StatusOK, pending)
}

// Dashboard handles GET /api/me/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	counts, err := h.services.Approvals.Dashboard(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, "dashboard", err)
		return
	}
	h.ok(c, http.StatusOK, counts)
}
