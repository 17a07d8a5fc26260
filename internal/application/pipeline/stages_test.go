package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claimflow/internal/application/approval"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/port/porttest"
	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/validation"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

type mockProcessor struct {
	processFn func(ctx context.Context, docs []entity.Document) (*port.DocumentSummary, error)
}

func (m *mockProcessor) Process(ctx context.Context, docs []entity.Document) (*port.DocumentSummary, error) {
	return m.processFn(ctx, docs)
}

type system struct {
	claims    *porttest.ClaimStore
	approvals *porttest.ApprovalStore
	employees *porttest.Employees
	rules     *porttest.SkipRules
	reasoner  *porttest.Reasoner
	orch      *Orchestrator
}

func newSystem(t *testing.T, amount float64, processor port.DocumentProcessor) *system {
	t.Helper()
	now := time.Now().UTC()
	s := &system{
		claims:    porttest.NewClaimStore(),
		approvals: porttest.NewApprovalStore(),
		employees: &porttest.Employees{Employees: map[string]*entity.EmployeeContext{
			"emp-1": {
				EmployeeID:  "emp-1",
				TenantID:    "acme",
				Email:       "lead@acme.io",
				Designation: "LEAD",
				JoinDate:    now.AddDate(-2, 0, 0),
				Documents:   []entity.Document{{ID: "d-1", ClaimID: "c-1", FileName: "ticket.pdf", FilePath: "/docs/ticket.pdf"}},
			},
		}},
		rules:    &porttest.SkipRules{},
		reasoner: &porttest.Reasoner{},
	}
	history := porttest.NewHistoryStore()
	tx := &porttest.TxManager{}
	policies := &porttest.Policies{}

	engine := workflow.NewEngine(s.claims, history, tx)
	validator := validation.NewEngine(s.claims, s.employees, policies, s.reasoner, nil)
	router := approval.NewService(s.claims, s.approvals, s.employees, skiprule.NewResolver(s.rules, nil), engine, tx, nil)

	s.orch = NewOrchestrator(s.claims, engine, tx, []Stage{
		NewDocumentStage(s.claims, s.employees, processor, nil),
		NewIntegrationStage(s.claims, s.employees, nil),
		NewValidationStage(validator),
		NewRoutingStage(router),
	}, nil)

	require.NoError(t, s.claims.Create(context.Background(), &entity.Claim{
		TenantID:     "acme",
		ID:           "c-1",
		EmployeeID:   "emp-1",
		ClaimType:    entity.ClaimTypeReimbursement,
		CategoryCode: "TRAVEL",
		Amount:       amount,
		Currency:     "INR",
		ClaimDate:    now.AddDate(0, 0, -2),
		Status:       "SUBMITTED",
	}))
	return s
}

func (s *system) claim(t *testing.T) *entity.Claim {
	t.Helper()
	c, err := s.claims.GetByID(context.Background(), "c-1")
	require.NoError(t, err)
	return c
}

func TestPipeline_EndToEndAutoApprovedRoutesToManager(t *testing.T) {
	s := newSystem(t, 1500, nil)

	outcome, err := s.orch.RunPipeline(context.Background(), PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeReimbursement, HasDocuments: true})
	require.NoError(t, err)

	routed, ok := outcome.Output.(*approval.RouteResult)
	require.True(t, ok)
	assert.Equal(t, "PENDING_MANAGER", routed.EntryStatus.String())

	claim := s.claim(t)
	assert.Equal(t, "PENDING_MANAGER", claim.Status)
	for _, key := range []string{entity.PayloadKeyDocuments, entity.PayloadKeyIntegrationData, entity.PayloadKeyValidation, entity.PayloadKeyApprovalHistory} {
		assert.Contains(t, claim.Payload, key)
	}

	var v entity.ValidationResult
	_, err = claim.PayloadValue(entity.PayloadKeyValidation, &v)
	require.NoError(t, err)
	assert.Equal(t, entity.RecommendationAutoApprove, v.Recommendation)
	assert.Equal(t, 0, s.reasoner.CallCount())
}

func TestPipeline_EndToEndSkipRuleAndAIPath(t *testing.T) {
	s := newSystem(t, 50000, nil)
	s.rules.Rules = append(s.rules.Rules, &entity.ApprovalSkipRule{
		ID: "r-1", TenantID: "acme", Name: "leads", MatchType: entity.MatchTypeDesignation,
		Designations: []string{"lead"}, SkipManager: true, Priority: 1, Active: true,
	})
	s.reasoner.Response = `{"confidence": 0.97, "recommendation": "REVIEW", "reasoning": "over limit"}`

	_, err := s.orch.RunPipeline(context.Background(), PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeReimbursement})
	require.NoError(t, err)

	claim := s.claim(t)
	assert.Equal(t, "PENDING_HR", claim.Status)
	assert.NotContains(t, claim.Payload, entity.PayloadKeyDocuments)

	var v entity.ValidationResult
	_, err = claim.PayloadValue(entity.PayloadKeyValidation, &v)
	require.NoError(t, err)
	assert.Equal(t, 0.85, v.Confidence)
	assert.True(t, v.LLMUsed)
}

func TestPipeline_DirectoryOutageDoesNotFail(t *testing.T) {
	s := newSystem(t, 1500, nil)
	s.employees.Err = entity.ErrExternalProvider
	s.reasoner.Err = errors.New("provider down")

	_, err := s.orch.RunPipeline(context.Background(), PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeAllowance})
	assert.ErrorIs(t, err, entity.ErrValidationInput)

	_, err = s.orch.RunPipeline(context.Background(), PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeReimbursement})
	require.NoError(t, err)

	claim := s.claim(t)
	assert.Equal(t, "PENDING_MANAGER", claim.Status)

	var data entity.IntegrationData
	_, err = claim.PayloadValue(entity.PayloadKeyIntegrationData, &data)
	require.NoError(t, err)
	assert.False(t, data.Available)
	assert.NotEmpty(t, data.Error)

	var v entity.ValidationResult
	_, err = claim.PayloadValue(entity.PayloadKeyValidation, &v)
	require.NoError(t, err)
	assert.True(t, v.Degraded)
	assert.Equal(t, entity.RecommendationReview, v.Recommendation)
}

func TestPipeline_UnknownEmployeeRejects(t *testing.T) {
	s := newSystem(t, 1500, nil)
	delete(s.employees.Employees, "emp-1")

	_, err := s.orch.RunPipeline(context.Background(), PipelineRequest{ClaimID: "c-1", ClaimType: entity.ClaimTypeReimbursement})

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageIntegration, stageErr.Stage)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Equal(t, "REJECTED", s.claim(t).Status)
}

func TestDocumentStage(t *testing.T) {
	t.Run("only the claim's documents are processed", func(t *testing.T) {
		var seen []entity.Document
		s := newSystem(t, 1500, nil)
		s.employees.Employees["emp-1"].Documents = append(s.employees.Employees["emp-1"].Documents,
			entity.Document{ID: "d-9", ClaimID: "c-other"})

		stage := NewDocumentStage(s.claims, s.employees, &mockProcessor{processFn: func(ctx context.Context, docs []entity.Document) (*port.DocumentSummary, error) {
			seen = docs
			return &port.DocumentSummary{Documents: len(docs), Pages: 2}, nil
		}}, nil)

		out, err := stage.Run(context.Background(), "c-1")
		require.NoError(t, err)
		require.Len(t, seen, 1)
		assert.Equal(t, "d-1", seen[0].ID)
		assert.Equal(t, 2, out.(*port.DocumentSummary).Pages)
	})

	t.Run("processor failure is fatal", func(t *testing.T) {
		s := newSystem(t, 1500, nil)
		stage := NewDocumentStage(s.claims, s.employees, &mockProcessor{processFn: func(ctx context.Context, docs []entity.Document) (*port.DocumentSummary, error) {
			return nil, errors.New("corrupt pdf")
		}}, nil)

		_, err := stage.Run(context.Background(), "c-1")
		assert.Error(t, err)
		assert.NotContains(t, s.claim(t).Payload, entity.PayloadKeyDocuments)
	})
}
