package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claimflow/internal/application/approval"
	"github.com/garyjia/claimflow/internal/application/pipeline"
	"github.com/garyjia/claimflow/internal/application/port/porttest"
	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

type mockPipeline struct {
	runFn     func(req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error)
	enqueueFn func(req pipeline.PipelineRequest) ([]string, error)
}

func (m *mockPipeline) RunPipeline(ctx context.Context, req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error) {
	return m.runFn(req)
}

func (m *mockPipeline) Enqueue(ctx context.Context, req pipeline.PipelineRequest) ([]string, error) {
	return m.enqueueFn(req)
}

type mockApproval struct {
	decideFn   func(req approval.DecisionRequest) (*approval.DecisionResult, error)
	returnFn   func(claimID, actor, remarks string) (*workflow.Transition, error)
	resubmitFn func(claimID, actor string) (*workflow.Transition, error)
	settleFn   func(claimID, actor string) (*approval.SettleResult, error)
}

func (m *mockApproval) Decide(ctx context.Context, req approval.DecisionRequest) (*approval.DecisionResult, error) {
	return m.decideFn(req)
}

func (m *mockApproval) Return(ctx context.Context, claimID, actor, remarks string) (*workflow.Transition, error) {
	return m.returnFn(claimID, actor, remarks)
}

func (m *mockApproval) Resubmit(ctx context.Context, claimID, actor string) (*workflow.Transition, error) {
	return m.resubmitFn(claimID, actor)
}

func (m *mockApproval) Settle(ctx context.Context, claimID, actor string) (*approval.SettleResult, error) {
	return m.settleFn(claimID, actor)
}

type testAPI struct {
	claims   *porttest.ClaimStore
	pipeline *mockPipeline
	approval *mockApproval
	rules    *porttest.SkipRules
	server   *Server
}

func newTestAPI(t *testing.T, withQueue bool) *testAPI {
	t.Helper()
	api := &testAPI{
		claims:   porttest.NewClaimStore(),
		pipeline: &mockPipeline{},
		approval: &mockApproval{},
		rules:    &porttest.SkipRules{},
	}
	svc := Services{
		Claims:    api.claims,
		History:   porttest.NewHistoryStore(),
		Approvals: porttest.NewApprovalStore(),
		Pipeline:  api.pipeline,
		Approval:  api.approval,
		SkipRules: skiprule.NewResolver(api.rules, nil),
	}
	if withQueue {
		svc.Queue = api.pipeline
	}
	api.server = NewServer(DefaultServerConfig(), svc, nil)

	require.NoError(t, api.claims.Create(context.Background(), &entity.Claim{
		TenantID: "acme", ID: "c-1", EmployeeID: "emp-1", ClaimType: entity.ClaimTypeAllowance,
		CategoryCode: "MEAL", Amount: 300, Status: "SUBMITTED",
	}))
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, false)
	rec, resp := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestCreateAndGetClaim(t *testing.T) {
	api := newTestAPI(t, false)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/claims", jsonBody{
		"tenant_id": "acme", "employee_id": "emp-2", "claim_type": "reimbursement",
		"category_code": "travel", "amount": 1200.5, "currency": "INR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := resp.Data.(map[string]interface{})
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "REIMBURSEMENT", created["claim_type"])
	assert.Equal(t, "SUBMITTED", created["status"])

	rec, resp = api.do(t, http.MethodGet, "/api/v1/claims/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := resp.Data.(map[string]interface{})
	assert.Equal(t, "TRAVEL", view["claim"].(map[string]interface{})["category_code"])

	rec, _ = api.do(t, http.MethodGet, "/api/v1/claims/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateClaim_Invalid(t *testing.T) {
	api := newTestAPI(t, false)

	tests := []struct {
		name string
		body jsonBody
	}{
		{"missing tenant", jsonBody{"employee_id": "e", "claim_type": "ALLOWANCE", "category_code": "MEAL", "amount": 10}},
		{"zero amount", jsonBody{"tenant_id": "t", "employee_id": "e", "claim_type": "ALLOWANCE", "category_code": "MEAL", "amount": 0}},
		{"unknown type", jsonBody{"tenant_id": "t", "employee_id": "e", "claim_type": "BONUS", "category_code": "MEAL", "amount": 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := api.do(t, http.MethodPost, "/api/v1/claims", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestRunPipeline(t *testing.T) {
	t.Run("sync defaults claim type from the claim", func(t *testing.T) {
		api := newTestAPI(t, false)
		var got pipeline.PipelineRequest
		api.pipeline.runFn = func(req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error) {
			got = req
			return &pipeline.PipelineOutcome{ClaimID: req.ClaimID, Stages: []string{"INTEGRATION"}}, nil
		}

		rec, resp := api.do(t, http.MethodPost, "/api/v1/claims/c-1/pipeline", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, resp.Success)
		assert.Equal(t, pipeline.PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeAllowance}, got)
	})

	t.Run("stage failure is unprocessable", func(t *testing.T) {
		api := newTestAPI(t, false)
		api.pipeline.runFn = func(req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error) {
			return nil, &pipeline.StageError{ClaimID: "c-1", Stage: pipeline.StageIntegration, Index: 0, Err: entity.ErrNotFound}
		}

		rec, resp := api.do(t, http.MethodPost, "/api/v1/claims/c-1/pipeline", jsonBody{"claim_type": "allowance"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, pipeline.StageIntegration, resp.Data.(map[string]interface{})["stage"])
	})

	t.Run("async without a queue", func(t *testing.T) {
		api := newTestAPI(t, false)
		rec, _ := api.do(t, http.MethodPost, "/api/v1/claims/c-1/pipeline", jsonBody{"async": true})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("async enqueues", func(t *testing.T) {
		api := newTestAPI(t, true)
		api.pipeline.enqueueFn = func(req pipeline.PipelineRequest) ([]string, error) {
			return []string{"INTEGRATION", "VALIDATION", "APPROVAL_ROUTING"}, nil
		}
		rec, resp := api.do(t, http.MethodPost, "/api/v1/claims/c-1/pipeline", jsonBody{"async": true})
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, resp.Data.(map[string]interface{})["stages"], 3)
	})

	t.Run("terminal claim conflicts", func(t *testing.T) {
		api := newTestAPI(t, false)
		api.pipeline.runFn = func(req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error) {
			return nil, fmt.Errorf("start: %w", domainwf.ErrInvalidTransition)
		}
		rec, _ := api.do(t, http.MethodPost, "/api/v1/claims/c-1/pipeline", jsonBody{"claim_type": "ALLOWANCE"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDecide(t *testing.T) {
	api := newTestAPI(t, false)
	var got approval.DecisionRequest
	api.approval.decideFn = func(req approval.DecisionRequest) (*approval.DecisionResult, error) {
		got = req
		if req.Decision == "MAYBE" {
			return nil, fmt.Errorf("%w: bad decision", entity.ErrValidationInput)
		}
		return &approval.DecisionResult{ClaimID: req.ClaimID, Status: domainwf.StatePendingHR, NextLevel: "HR"}, nil
	}

	rec, resp := api.do(t, http.MethodPost, "/api/v1/claims/c-1/approvals/manager",
		jsonBody{"decision": "APPROVED", "approver_id": "mgr-1", "remarks": "fine"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, approval.DecisionRequest{ClaimID: "c-1", Level: "manager", Decision: "APPROVED", ApproverID: "mgr-1", Remarks: "fine"}, got)
	assert.Equal(t, "PENDING_HR", resp.Data.(map[string]interface{})["status"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/claims/c-1/approvals/manager", jsonBody{"decision": "MAYBE", "approver_id": "m"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/claims/c-1/approvals/manager", jsonBody{"decision": "APPROVED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReturnResubmitSettle(t *testing.T) {
	api := newTestAPI(t, false)
	api.approval.returnFn = func(claimID, actor, remarks string) (*workflow.Transition, error) {
		return &workflow.Transition{ClaimID: claimID, From: domainwf.StatePendingManager, To: domainwf.StateReturnedToEmployee, Trigger: domainwf.TriggerReturn}, nil
	}
	api.approval.resubmitFn = func(claimID, actor string) (*workflow.Transition, error) {
		return nil, fmt.Errorf("%w: not returned", domainwf.ErrInvalidTransition)
	}
	api.approval.settleFn = func(claimID, actor string) (*approval.SettleResult, error) {
		return &approval.SettleResult{
			Transition:  &workflow.Transition{ClaimID: claimID, From: domainwf.StateFinanceApproved, To: domainwf.StateSettled, Trigger: domainwf.TriggerSettle},
			VoucherPath: "/data/vouchers/acme/c-1.xlsx",
		}, nil
	}

	rec, resp := api.do(t, http.MethodPost, "/api/v1/claims/c-1/return", jsonBody{"actor": "mgr-1", "remarks": "missing receipt"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RETURNED_TO_EMPLOYEE", resp.Data.(map[string]interface{})["to"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/claims/c-1/resubmit", jsonBody{"actor": "emp-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = api.do(t, http.MethodPost, "/api/v1/claims/c-1/settle", jsonBody{"actor": "finance-bot"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/data/vouchers/acme/c-1.xlsx", resp.Data.(map[string]interface{})["voucher_path"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/claims/c-1/settle", jsonBody{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSkipRules(t *testing.T) {
	api := newTestAPI(t, false)

	rec, resp := api.do(t, http.MethodPost, "/api/v1/skip-rules", jsonBody{
		"tenant_id": "acme", "name": "directors", "match_type": "designation",
		"designations": []string{"director"}, "skip_manager": true, "priority": 1, "active": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, resp.Data.(map[string]interface{})["id"])
	require.Len(t, api.rules.Rules, 1)
	assert.Equal(t, []string{"DIRECTOR"}, api.rules.Rules[0].Designations)

	rec, resp = api.do(t, http.MethodPost, "/api/v1/skip-rules/check", jsonBody{
		"tenant_id": "acme", "employee_designation": "Director", "claim_amount": 500,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decision := resp.Data.(map[string]interface{})
	assert.Equal(t, true, decision["matched"])
	assert.Equal(t, true, decision["skip_manager"])

	rec, _ = api.do(t, http.MethodPost, "/api/v1/skip-rules/check", jsonBody{"employee_designation": "Director"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/skip-rules", jsonBody{"tenant_id": "acme", "name": "noop", "match_type": "email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type jsonBody = map[string]interface{}
