package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/container"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/infrastructure/seed"
)

const seedDoc = `
workflows:
  - name: Stock issuance
    request_type: stock_issuance
    approvers:
      - {user_id: alice, level: 1, can_approve: true, can_forward: true}
      - {user_id: bob, level: 2, can_approve: true}
      - {user_id: carol, level: 3, can_finalize: true}
catalog:
  - {item_code: STP-001, nomenclature: Stapler, opening_stock: 10, reorder_level: 2}
`

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type apiFixture struct {
	t      *testing.T
	server *Server
	kinds  []string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := container.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Metrics.Enabled = false
	cfg.Worker.ReorderInterval = time.Hour

	c, err := container.NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	doc, err := seed.Parse([]byte(seedDoc))
	require.NoError(t, err)
	_, err = c.Seeder().Apply(context.Background(), doc)
	require.NoError(t, err)

	f := &apiFixture{t: t}
	f.server = NewServer(DefaultServerConfig(), Services{
		Engine:    c.Engine(),
		Registry:  c.Services().Registry,
		Approvals: c.Services().Approval,
		Inventory: c.Services().Inventory,
	}, nopLogger{},
		WithHealthCheck(func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h.Components
		}),
		WithErrorObserver(func(kind string) { f.kinds = append(f.kinds, kind) }),
	)
	return f
}

// do sends a JSON request as actor and decodes the envelope
func (f *apiFixture) do(method, path, actor string, body interface{}) (int, Response) {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}

	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

// decode re-marshals resp.Data into out
func decode(t *testing.T, data interface{}, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (f *apiFixture) submit(requestID string, qty int) int64 {
	f.t.Helper()
	code, resp := f.do(http.MethodPost, "/api/approvals", "requester", map[string]interface{}{
		"request_id":   requestID,
		"request_type": entity.RequestTypeStockIssuance,
		"items": []map[string]interface{}{
			{"nomenclature": "Stapler", "requested_quantity": qty, "item_type": entity.ItemTypeInventory},
		},
	})
	require.Equal(f.t, http.StatusCreated, code, resp.Error)

	var a entity.RequestApproval
	decode(f.t, resp.Data, &a)
	return a.ID
}

func TestServer_HealthAndRequestID(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestServer_ApprovalLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	id := f.submit("REQ-1", 4)
	base := fmt.Sprintf("/api/approvals/%d", id)

	code, resp := f.do(http.MethodGet, base+"/targets", "", nil)
	require.Equal(t, http.StatusOK, code)
	var targets []entity.WorkflowApprover
	decode(t, resp.Data, &targets)
	assert.NotEmpty(t, targets)

	code, resp = f.do(http.MethodPost, base+"/forward", "alice", ForwardRequest{TargetID: "bob", Comments: "please check"})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = f.do(http.MethodGet, "/api/me/pending", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var pending []entity.RequestApproval
	decode(t, resp.Data, &pending)
	require.Len(t, pending, 1)

	code, resp = f.do(http.MethodGet, "/api/requests/stock_issuance/REQ-1/matches", "", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var match entity.MatchResult
	decode(t, resp.Data, &match)
	require.Len(t, match.Items, 1)
	require.NotEmpty(t, match.Items[0].InventoryMatches)
	stockID := match.Items[0].InventoryMatches[0].InventoryID
	itemID := match.Items[0].RequestedItemID

	code, resp = f.do(http.MethodPost, base+"/approve", "bob", ApproveRequest{
		Decisions: []entity.AllocationDecision{{
			RequestedItemID:   itemID,
			DecisionType:      entity.DecisionApproveFromStock,
			InventoryItemID:   &stockID,
			AllocatedQuantity: 4,
		}},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = f.do(http.MethodPost, base+"/finalize", "carol", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = f.do(http.MethodPost, base+"/finalize", "carol", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_finalized", resp.Kind)

	code, resp = f.do(http.MethodPost, base+"/issue", "storekeeper", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = f.do(http.MethodGet, fmt.Sprintf("/api/stock/%d/log?limit=5", stockID), "", nil)
	require.Equal(t, http.StatusOK, code)
	var logs []entity.InventoryLog
	decode(t, resp.Data, &logs)
	require.Len(t, logs, 3)
	assert.Equal(t, entity.MovementIssue, logs[0].MovementType)

	code, resp = f.do(http.MethodGet, base+"/history", "", nil)
	require.Equal(t, http.StatusOK, code)
	var history []entity.ApprovalHistory
	decode(t, resp.Data, &history)
	assert.Len(t, history, 4)

	code, resp = f.do(http.MethodGet, "/api/me/dashboard", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var dash entity.DashboardCounts
	decode(t, resp.Data, &dash)
	assert.Equal(t, 1, dash.Finalized)

	assert.Equal(t, []string{"already_finalized"}, f.kinds)
}

func TestServer_ErrorStatuses(t *testing.T) {
	f := newAPIFixture(t)
	id := f.submit("REQ-2", 1)
	base := fmt.Sprintf("/api/approvals/%d", id)

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   interface{}
		status int
		kind   string
	}{
		{"missing actor", http.MethodPost, base + "/forward", "", ForwardRequest{TargetID: "bob"}, http.StatusForbidden, "not_authorized"},
		{"wrong actor", http.MethodPost, base + "/forward", "bob", ForwardRequest{TargetID: "carol"}, http.StatusForbidden, "not_authorized"},
		{"bad target", http.MethodPost, base + "/forward", "alice", ForwardRequest{TargetID: "mallory"}, http.StatusUnprocessableEntity, "invalid_target"},
		{"blank reason", http.MethodPost, base + "/reject", "alice", RejectRequest{Reason: "  "}, http.StatusBadRequest, "bad_request"},
		{"finalize pending", http.MethodPost, base + "/finalize", "carol", nil, http.StatusConflict, "stale_state"},
		{"unknown approval", http.MethodGet, "/api/approvals/999", "", nil, http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/api/approvals/abc", "", nil, http.StatusBadRequest, "bad_request"},
		{"duplicate", http.MethodPost, "/api/approvals", "requester", map[string]interface{}{
			"request_id": "REQ-2", "request_type": "stock_issuance",
			"items": []map[string]interface{}{{"nomenclature": "Stapler", "requested_quantity": 1, "item_type": "inventory"}},
		}, http.StatusConflict, "duplicate_submission"},
		{"unknown workflow", http.MethodPost, "/api/approvals", "requester", map[string]interface{}{
			"request_id": "REQ-3", "request_type": "tender",
			"items": []map[string]interface{}{{"nomenclature": "Stapler", "requested_quantity": 1, "item_type": "inventory"}},
		}, http.StatusUnprocessableEntity, "invalid_workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := f.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.status, code, resp.Error)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.False(t, resp.Success)
		})
	}
}

func TestServer_WorkflowAdministration(t *testing.T) {
	f := newAPIFixture(t)

	code, resp := f.do(http.MethodPost, "/api/workflows", "", CreateWorkflowRequest{WorkflowName: "Tender", RequestType: "tender"})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var wf entity.WorkflowDefinition
	decode(t, resp.Data, &wf)
	assert.True(t, wf.IsActive)
	base := fmt.Sprintf("/api/workflows/%d", wf.ID)

	code, _ = f.do(http.MethodPost, base+"/approvers", "", AddApproverRequest{UserID: "erin", ApproverLevel: 1, CanFinalize: true})
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(http.MethodPost, base+"/approvers", "", AddApproverRequest{UserID: "frank", ApproverLevel: 2, CanApprove: true})
	require.Equal(t, http.StatusCreated, code)

	code, resp = f.do(http.MethodGet, base+"/approvers", "", nil)
	require.Equal(t, http.StatusOK, code)
	var approvers []entity.WorkflowApprover
	decode(t, resp.Data, &approvers)
	assert.Len(t, approvers, 2)

	code, resp = f.do(http.MethodDelete, base+"/approvers/erin", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_workflow", resp.Kind)

	code, _ = f.do(http.MethodDelete, base+"/approvers/frank", "", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, resp = f.do(http.MethodPut, base+"/active", "", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, code, resp.Error)
	decode(t, resp.Data, &wf)
	assert.False(t, wf.IsActive)

	code, _ = f.do(http.MethodPut, base+"/active", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = f.do(http.MethodGet, "/api/workflows", "", nil)
	require.Equal(t, http.StatusOK, code)
	var all []entity.WorkflowDefinition
	decode(t, resp.Data, &all)
	assert.Len(t, all, 2)
}

func TestServer_StockAdministration(t *testing.T) {
	f := newAPIFixture(t)

	code, resp := f.do(http.MethodGet, "/api/stock", "", nil)
	require.Equal(t, http.StatusOK, code)
	var stock []entity.StockRecord
	decode(t, resp.Data, &stock)
	require.Len(t, stock, 1)
	path := fmt.Sprintf("/api/stock/%d/adjust", stock[0].InventoryID)

	code, resp = f.do(http.MethodPost, path, "storekeeper", AdjustStockRequest{Delta: 5, Reason: "delivery"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var rec entity.StockRecord
	decode(t, resp.Data, &rec)
	assert.Equal(t, 15, rec.CurrentQuantity)

	code, resp = f.do(http.MethodPost, path, "storekeeper", AdjustStockRequest{Delta: -100, Reason: "write-off"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_allocation", resp.Kind)

	code, _ = f.do(http.MethodGet, fmt.Sprintf("/api/stock/%d/log?limit=x", stock[0].InventoryID), "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{entity.ErrNotFound, http.StatusNotFound},
		{entity.ErrNotAuthorized, http.StatusForbidden},
		{entity.ErrInvalidWorkflow, http.StatusUnprocessableEntity},
		{entity.ErrInvalidTarget, http.StatusUnprocessableEntity},
		{entity.ErrInvalidAllocation, http.StatusUnprocessableEntity},
		{entity.ErrDuplicateSubmission, http.StatusConflict},
		{entity.ErrAlreadyFinalized, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", entity.ErrStaleState), http.StatusConflict},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
