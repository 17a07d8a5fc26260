// Package pipeline runs a claim through its ordered stage plan. The plan and a
// durable current-stage marker live on the claim row, so a pipeline can be
// resumed from the marker after a crash.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

var (
	// ErrClaimTerminal is returned when a stage is requested for a settled or rejected claim
	ErrClaimTerminal = errors.New("claim is in a terminal state")

	// ErrStageCompleted is returned when the requested stage already ran
	ErrStageCompleted = errors.New("stage already completed")

	// ErrStageOutOfOrder is returned when a stage is requested ahead of the marker
	ErrStageOutOfOrder = errors.New("stage requested out of order")
)

const (
	// DefaultStageVersion is recorded on execution log entries
	DefaultStageVersion = "v1"

	maxSummaryLen = 1000
	tracerName    = "github.com/garyjia/claimflow/pipeline"
)

// PipelineRequest starts a pipeline for one claim
type PipelineRequest struct {
	ClaimID      string `json:"claim_id"`
	ClaimType    string `json:"claim_type"`
	HasDocuments bool   `json:"has_documents"`
}

// StageReport describes one stage invocation
type StageReport struct {
	Stage      string      `json:"stage"`
	Index      int         `json:"index"`
	Status     string      `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Output     interface{} `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// PipelineOutcome is returned by a successful synchronous run
type PipelineOutcome struct {
	ClaimID string        `json:"claim_id"`
	Stages  []string      `json:"stages"`
	Reports []StageReport `json:"reports"`
	Output  interface{}   `json:"output"`
}

// Orchestrator executes stage plans
type Orchestrator struct {
	claims     port.ClaimRepository
	engine     workflow.Engine
	tx         port.TransactionManager
	stages     map[string]Stage
	sink       port.ExecutionSink
	dispatcher dispatcher.Publisher
	tracer     trace.Tracer
	version    string
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithExecutionSink reports every stage invocation to sink
func WithExecutionSink(sink port.ExecutionSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithDispatcher publishes stage and pipeline events
func WithDispatcher(d dispatcher.Publisher) Option {
	return func(o *Orchestrator) {
		o.dispatcher = d
	}
}

// WithTracer overrides the tracer used for stage spans
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithStageVersion sets the version recorded in the execution log
func WithStageVersion(v string) Option {
	return func(o *Orchestrator) {
		o.version = v
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator over the given stages
func NewOrchestrator(
	claims port.ClaimRepository,
	engine workflow.Engine,
	tx port.TransactionManager,
	stages []Stage,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		claims:  claims,
		engine:  engine,
		tx:      tx,
		stages:  make(map[string]Stage, len(stages)),
		tracer:  otel.Tracer(tracerName),
		version: DefaultStageVersion,
		now:     time.Now,
		logger:  logger,
	}
	for _, s := range stages {
		o.stages[s.Name()] = s
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunPipeline executes the whole plan synchronously. A stage failure rejects
// the claim and is returned as a *StageError; payload keys written by earlier
// stages are kept.
func (o *Orchestrator) RunPipeline(ctx context.Context, req PipelineRequest) (*PipelineOutcome, error) {
	stages, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome := &PipelineOutcome{
		ClaimID: req.ClaimID,
		Stages:  stages,
		Reports: make([]StageReport, 0, len(stages)),
	}
	for i := range stages {
		report, err := o.RunStage(ctx, req.ClaimID, i)
		if report != nil {
			outcome.Reports = append(outcome.Reports, *report)
		}
		if err != nil {
			return outcome, err
		}
		outcome.Output = report.Output
	}

	o.finish(ctx, req.ClaimID, stages)
	return outcome, nil
}

// Start moves the claim to AI_PROCESSING and records a fresh stage plan.
// Starting a claim that is already processing restarts its plan.
func (o *Orchestrator) Start(ctx context.Context, req PipelineRequest) ([]string, error) {
	stages, err := BuildStages(req.ClaimType, req.HasDocuments)
	if err != nil {
		return nil, err
	}
	for _, name := range stages {
		if _, ok := o.stages[name]; !ok {
			return nil, fmt.Errorf("no stage registered for %s", name)
		}
	}

	claim, err := loadClaim(ctx, o.claims, req.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.ClaimType != req.ClaimType {
		return nil, fmt.Errorf("%w: claim %s is %s, not %s", entity.ErrValidationInput, claim.ID, claim.ClaimType, req.ClaimType)
	}

	var t *workflow.Transition
	err = o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		t, err = o.engine.Apply(txCtx, workflow.TransitionRequest{
			ClaimID: claim.ID,
			Trigger: domainwf.TriggerStartProcessing,
			Note:    "pipeline: " + strings.Join(stages, ", "),
		})
		if err != nil {
			return err
		}
		return o.claims.SetPipeline(txCtx, claim.ID, stages)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pipeline for claim %s: %w", claim.ID, err)
	}
	o.engine.Publish(ctx, t)

	o.logger.Info("Pipeline started",
		zap.String("claim_id", claim.ID),
		zap.String("claim_type", claim.ClaimType),
		zap.Strings("stages", stages))
	return stages, nil
}

// RunStage executes exactly the stage at index. It refuses to run unless the
// claim's durable marker points at that stage, and advances the marker only
// after the stage returned successfully.
func (o *Orchestrator) RunStage(ctx context.Context, claimID string, index int) (*StageReport, error) {
	claim, err := loadClaim(ctx, o.claims, claimID)
	if err != nil {
		return nil, err
	}
	state, err := domainwf.ParseState(claim.Status)
	if err != nil {
		return nil, fmt.Errorf("claim %s has status %q: %w", claim.ID, claim.Status, err)
	}
	if state.IsTerminal() {
		return nil, fmt.Errorf("claim %s is %s: %w", claim.ID, state, ErrClaimTerminal)
	}
	switch {
	case index < claim.CurrentStage:
		return nil, fmt.Errorf("claim %s stage %d: %w", claim.ID, index, ErrStageCompleted)
	case index > claim.CurrentStage || index >= len(claim.PipelineStages):
		return nil, fmt.Errorf("claim %s stage %d, marker at %d of %d: %w",
			claim.ID, index, claim.CurrentStage, len(claim.PipelineStages), ErrStageOutOfOrder)
	case state != domainwf.StateAIProcessing && index == len(claim.PipelineStages)-1 && pastProcessing(state):
		return o.repairMarker(ctx, claim, index)
	case state != domainwf.StateAIProcessing:
		return nil, fmt.Errorf("claim %s is %s, not %s: %w", claim.ID, state, domainwf.StateAIProcessing, ErrStageOutOfOrder)
	}

	name := claim.PipelineStages[index]
	stage, ok := o.stages[name]
	if !ok {
		return nil, fmt.Errorf("no stage registered for %s", name)
	}

	spanCtx, span := o.tracer.Start(ctx, "pipeline."+strings.ToLower(name),
		trace.WithAttributes(
			attribute.String("claim.id", claim.ID),
			attribute.String("claim.tenant_id", claim.TenantID),
			attribute.Int("pipeline.stage_index", index),
		))
	defer span.End()

	started := o.now()
	output, runErr := stage.Run(spanCtx, claim.ID)
	duration := o.now().Sub(started).Milliseconds()

	report := &StageReport{
		Stage:      name,
		Index:      index,
		Status:     entity.ExecutionStatusSuccess,
		DurationMs: duration,
		Output:     output,
	}
	if runErr != nil {
		report.Status = entity.ExecutionStatusFailed
		report.Output = nil
		report.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	o.logExecution(ctx, claim.ID, report, output)

	if runErr != nil {
		o.fail(ctx, claim, name, runErr)
		return report, &StageError{ClaimID: claim.ID, Stage: name, Index: index, Err: runErr}
	}

	if err := o.claims.AdvanceStage(ctx, claim.ID, index+1); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("failed to advance stage marker for claim %s: %w", claim.ID, err)
	}
	span.SetStatus(codes.Ok, "")

	o.logger.Info("Stage completed",
		zap.String("claim_id", claim.ID),
		zap.String("stage", name),
		zap.Int("index", index),
		zap.Int64("duration_ms", duration))
	o.publish(ctx, event.NewEvent(event.TypeStageCompleted, claim.TenantID, claim.ID, map[string]interface{}{
		"stage":       name,
		"index":       index,
		"duration_ms": duration,
		"last":        index == len(claim.PipelineStages)-1,
	}))
	return report, nil
}

// repairMarker handles a last stage whose transition out of AI_PROCESSING
// committed while the marker write after it did not. The stage is not run
// again; the marker is moved past it and the report carries no output.
func (o *Orchestrator) repairMarker(ctx context.Context, claim *entity.Claim, index int) (*StageReport, error) {
	name := claim.PipelineStages[index]
	if err := o.claims.AdvanceStage(ctx, claim.ID, index+1); err != nil {
		return nil, fmt.Errorf("failed to advance stage marker for claim %s: %w", claim.ID, err)
	}
	o.logger.Warn("Stage already committed, marker repaired",
		zap.String("claim_id", claim.ID),
		zap.String("stage", name),
		zap.Int("index", index),
		zap.String("status", claim.Status))
	return &StageReport{Stage: name, Index: index, Status: entity.ExecutionStatusSuccess}, nil
}

// pastProcessing reports whether a claim has been routed to approvers
func pastProcessing(s domainwf.State) bool {
	switch s {
	case domainwf.StateManagerApproved, domainwf.StateHRApproved, domainwf.StateFinanceApproved:
		return true
	}
	return s.IsPending()
}

// fail rejects the claim after a stage error. The rejection must be recorded
// even when ctx was cancelled mid-stage.
func (o *Orchestrator) fail(ctx context.Context, claim *entity.Claim, stage string, cause error) {
	ctx = context.WithoutCancel(ctx)

	o.logger.Error("Stage failed, rejecting claim",
		zap.String("claim_id", claim.ID),
		zap.String("stage", stage),
		zap.Error(cause))

	if _, err := o.engine.Fire(ctx, workflow.TransitionRequest{
		ClaimID: claim.ID,
		Trigger: domainwf.TriggerReject,
		Action:  entity.ActionPipelineFailed,
		Note:    fmt.Sprintf("stage %s failed: %v", stage, cause),
	}); err != nil {
		o.logger.Error("Failed to reject claim after stage failure",
			zap.String("claim_id", claim.ID),
			zap.String("stage", stage),
			zap.Error(err))
	}

	o.publish(ctx, event.NewEvent(event.TypePipelineFailed, claim.TenantID, claim.ID, map[string]interface{}{
		"stage": stage,
		"error": cause.Error(),
	}))
}

func (o *Orchestrator) finish(ctx context.Context, claimID string, stages []string) {
	o.logger.Info("Pipeline finished", zap.String("claim_id", claimID), zap.Strings("stages", stages))
	claim, err := o.claims.GetByID(ctx, claimID)
	if err != nil || claim == nil {
		return
	}
	o.publish(ctx, event.NewEvent(event.TypePipelineFinished, claim.TenantID, claim.ID, map[string]interface{}{
		"status": claim.Status,
		"stages": strings.Join(stages, ","),
	}))
}

// logExecution writes the execution record. Sink failures are only logged.
func (o *Orchestrator) logExecution(ctx context.Context, claimID string, report *StageReport, output interface{}) {
	if o.sink == nil {
		return
	}

	exec := &entity.AgentExecution{
		ID:           uuid.NewString(),
		ClaimID:      claimID,
		StageName:    report.Stage,
		Version:      o.version,
		Status:       report.Status,
		DurationMs:   report.DurationMs,
		ErrorMessage: report.Error,
		CreatedAt:    o.now().UTC(),
	}
	if report.Error == "" {
		exec.ResultSummary = summarize(output)
	}
	if v, ok := output.(*entity.ValidationResult); ok && v != nil {
		c := v.Confidence
		exec.Confidence = &c
	}

	if err := o.sink.LogExecution(context.WithoutCancel(ctx), exec); err != nil {
		o.logger.Warn("Failed to log stage execution",
			zap.String("claim_id", claimID),
			zap.String("stage", report.Stage),
			zap.Error(err))
	}
}

func summarize(output interface{}) string {
	if output == nil {
		return ""
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	if len(data) > maxSummaryLen {
		return string(data[:maxSummaryLen])
	}
	return string(data)
}

func (o *Orchestrator) publish(ctx context.Context, evt *event.Event) {
	if o.dispatcher == nil {
		return
	}
	o.dispatcher.DispatchAsync(ctx, evt)
}
