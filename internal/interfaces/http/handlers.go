package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/approval"
	"github.com/garyjia/claimflow/internal/application/pipeline"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// PipelineRunner runs a pipeline to completion within the request
type PipelineRunner interface {
	RunPipeline(ctx context.Context, req pipeline.PipelineRequest) (*pipeline.PipelineOutcome, error)
}

// PipelineEnqueuer starts a pipeline on the stage workers
type PipelineEnqueuer interface {
	Enqueue(ctx context.Context, req pipeline.PipelineRequest) ([]string, error)
}

// ApprovalService is the human side of the approval chain
type ApprovalService interface {
	Decide(ctx context.Context, req approval.DecisionRequest) (*approval.DecisionResult, error)
	Return(ctx context.Context, claimID, actor, remarks string) (*workflow.Transition, error)
	Resubmit(ctx context.Context, claimID, actor string) (*workflow.Transition, error)
	Settle(ctx context.Context, claimID, actor string) (*approval.SettleResult, error)
}

// SkipRuleService previews and stores approval skip rules
type SkipRuleService interface {
	ResolveSkips(ctx context.Context, q skiprule.Query) (entity.SkipDecision, error)
	CreateRule(ctx context.Context, rule *entity.ApprovalSkipRule) error
}

// Services are the application collaborators behind the API. Queue may be
// nil, in which case asynchronous runs are refused.
type Services struct {
	Claims    port.ClaimRepository
	History   port.HistoryRepository
	Approvals port.ApprovalRepository
	Pipeline  PipelineRunner
	Queue     PipelineEnqueuer
	Approval  ApprovalService
	SkipRules SkipRuleService
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	svc    Services
	now    func() time.Time
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc Services, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, now: time.Now, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateClaimRequest is the body of POST /claims
type CreateClaimRequest struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id" binding:"required"`
	EmployeeID   string    `json:"employee_id" binding:"required"`
	ClaimType    string    `json:"claim_type" binding:"required"`
	CategoryCode string    `json:"category_code" binding:"required"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	ClaimDate    time.Time `json:"claim_date"`
	Description  string    `json:"description"`
	ProjectCode  string    `json:"project_code"`
}

// RunPipelineRequest is the body of POST /claims/:id/pipeline
type RunPipelineRequest struct {
	ClaimType    string `json:"claim_type"`
	HasDocuments bool   `json:"has_documents"`
	Async        bool   `json:"async"`
}

// DecisionBody is the body of POST /claims/:id/approvals/:level
type DecisionBody struct {
	Decision   string `json:"decision" binding:"required"`
	ApproverID string `json:"approver_id" binding:"required"`
	Remarks    string `json:"remarks"`
}

// ActorBody names who performs a return, resubmit or settle
type ActorBody struct {
	Actor   string `json:"actor" binding:"required"`
	Remarks string `json:"remarks"`
}

// ClaimView is a claim together with its audit trail
type ClaimView struct {
	Claim     *entity.Claim          `json:"claim"`
	History   []*entity.ClaimHistory `json:"history"`
	Approvals []*entity.Approval     `json:"approvals"`
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api/v1")
	{
		api.POST("/claims", h.CreateClaim)
		api.GET("/claims/:id", h.GetClaim)
		api.POST("/claims/:id/pipeline", h.RunPipeline)
		api.POST("/claims/:id/approvals/:level", h.Decide)
		api.POST("/claims/:id/return", h.Return)
		api.POST("/claims/:id/resubmit", h.Resubmit)
		api.POST("/claims/:id/settle", h.Settle)

		api.POST("/skip-rules", h.CreateSkipRule)
		api.POST("/skip-rules/check", h.CheckSkipRules)
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateClaim handles POST /api/v1/claims
func (h *Handlers) CreateClaim(c *gin.Context) {
	var req CreateClaimRequest
	if !h.bind(c, &req) {
		return
	}

	claim := &entity.Claim{
		ID:           req.ID,
		TenantID:     req.TenantID,
		EmployeeID:   req.EmployeeID,
		ClaimType:    strings.ToUpper(req.ClaimType),
		CategoryCode: strings.ToUpper(req.CategoryCode),
		Amount:       req.Amount,
		Currency:     req.Currency,
		ClaimDate:    req.ClaimDate,
		Description:  req.Description,
		ProjectCode:  req.ProjectCode,
		Status:       domainwf.StateSubmitted.String(),
	}
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimDate.IsZero() {
		claim.ClaimDate = h.now().UTC()
	}
	if err := claim.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.Claims.Create(c.Request.Context(), claim); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: claim})
}

// GetClaim handles GET /api/v1/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	ctx := c.Request.Context()
	claim, err := h.svc.Claims.GetByID(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if claim == nil {
		h.fail(c, entity.ErrNotFound)
		return
	}

	view := ClaimView{Claim: claim}
	if view.History, err = h.svc.History.GetByClaimID(ctx, claim.ID); err != nil {
		h.fail(c, err)
		return
	}
	if view.Approvals, err = h.svc.Approvals.ListByClaim(ctx, claim.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// RunPipeline handles POST /api/v1/claims/:id/pipeline. The claim type
// defaults to the stored one.
func (h *Handlers) RunPipeline(c *gin.Context) {
	var body RunPipelineRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &body) {
		return
	}

	ctx := c.Request.Context()
	req := pipeline.PipelineRequest{
		ClaimID:      c.Param("id"),
		ClaimType:    strings.ToUpper(body.ClaimType),
		HasDocuments: body.HasDocuments,
	}
	if req.ClaimType == "" {
		claim, err := h.svc.Claims.GetByID(ctx, req.ClaimID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if claim == nil {
			h.fail(c, entity.ErrNotFound)
			return
		}
		req.ClaimType = claim.ClaimType
	}

	if body.Async {
		if h.svc.Queue == nil {
			c.JSON(http.StatusServiceUnavailable, Response{Error: "asynchronous pipelines are disabled"})
			return
		}
		stages, err := h.svc.Queue.Enqueue(ctx, req)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"claim_id": req.ClaimID, "stages": stages}})
		return
	}

	outcome, err := h.svc.Pipeline.RunPipeline(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: outcome})
}

// Decide handles POST /api/v1/claims/:id/approvals/:level
func (h *Handlers) Decide(c *gin.Context) {
	var body DecisionBody
	if !h.bind(c, &body) {
		return
	}
	result, err := h.svc.Approval.Decide(c.Request.Context(), approval.DecisionRequest{
		ClaimID:    c.Param("id"),
		Level:      c.Param("level"),
		Decision:   body.Decision,
		ApproverID: body.ApproverID,
		Remarks:    body.Remarks,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// Return handles POST /api/v1/claims/:id/return
func (h *Handlers) Return(c *gin.Context) {
	var body ActorBody
	if !h.bind(c, &body) {
		return
	}
	t, err := h.svc.Approval.Return(c.Request.Context(), c.Param("id"), body.Actor, body.Remarks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: transitionView(t)})
}

// Resubmit handles POST /api/v1/claims/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	var body ActorBody
	if !h.bind(c, &body) {
		return
	}
	t, err := h.svc.Approval.Resubmit(c.Request.Context(), c.Param("id"), body.Actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: transitionView(t)})
}

// Settle handles POST /api/v1/claims/:id/settle
func (h *Handlers) Settle(c *gin.Context) {
	var body ActorBody
	if !h.bind(c, &body) {
		return
	}
	result, err := h.svc.Approval.Settle(c.Request.Context(), c.Param("id"), body.Actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	data := transitionView(result.Transition)
	data["voucher_path"] = result.VoucherPath
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// CreateSkipRule handles POST /api/v1/skip-rules
func (h *Handlers) CreateSkipRule(c *gin.Context) {
	var rule entity.ApprovalSkipRule
	if !h.bind(c, &rule) {
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := h.svc.SkipRules.CreateRule(c.Request.Context(), &rule); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// CheckSkipRules handles POST /api/v1/skip-rules/check. It previews the
// decision without touching any claim.
func (h *Handlers) CheckSkipRules(c *gin.Context) {
	var q skiprule.Query
	if !h.bind(c, &q) {
		return
	}
	if q.TenantID == "" {
		h.fail(c, fmt.Errorf("%w: tenant_id is required", entity.ErrValidationInput))
		return
	}
	decision, err := h.svc.SkipRules.ResolveSkips(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: decision})
}

func transitionView(t *workflow.Transition) gin.H {
	return gin.H{
		"claim_id": t.ClaimID,
		"from":     t.From,
		"to":       t.To,
		"trigger":  t.Trigger,
	}
}

func (h *Handlers) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// fail maps application errors onto status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := Response{Error: err.Error()}

	var stageErr *pipeline.StageError
	switch {
	case errors.As(err, &stageErr):
		status = http.StatusUnprocessableEntity
		body.Data = gin.H{"stage": stageErr.Stage, "index": stageErr.Index}
	case errors.Is(err, entity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrValidationInput):
		status = http.StatusBadRequest
	case errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrClaimTerminal),
		errors.Is(err, pipeline.ErrStageOutOfOrder),
		errors.Is(err, pipeline.ErrStageCompleted):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrExternalProvider):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}
