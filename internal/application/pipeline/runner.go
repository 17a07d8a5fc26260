package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// Runner drives pipelines asynchronously through a stage queue. Job N+1 for
// a claim is only published after job N committed, so one claim never has two
// stages in flight.
type Runner struct {
	orchestrator *Orchestrator
	queue        port.StageQueue
	logger       *zap.Logger
}

// NewRunner creates an asynchronous runner
func NewRunner(orchestrator *Orchestrator, queue port.StageQueue, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		orchestrator: orchestrator,
		queue:        queue,
		logger:       logger,
	}
}

// Enqueue starts the pipeline and publishes its first stage job
func (r *Runner) Enqueue(ctx context.Context, req PipelineRequest) ([]string, error) {
	stages, err := r.orchestrator.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.queue.Publish(ctx, &port.StageJob{ClaimID: req.ClaimID, StageIndex: 0}); err != nil {
		return nil, fmt.Errorf("failed to enqueue claim %s: %w", req.ClaimID, err)
	}
	return stages, nil
}

// Handle runs one stage job. Jobs for terminal claims and stages that already
// ran are dropped without error. Any other error should be nacked.
func (r *Runner) Handle(ctx context.Context, job port.StageJob) error {
	report, err := r.orchestrator.RunStage(ctx, job.ClaimID, job.StageIndex)
	switch {
	case errors.Is(err, ErrClaimTerminal), errors.Is(err, ErrStageCompleted):
		r.logger.Info("Dropping stage job",
			zap.String("claim_id", job.ClaimID),
			zap.Int("stage_index", job.StageIndex),
			zap.String("reason", err.Error()))
		return nil
	case err != nil:
		return err
	}

	claim, err := r.orchestrator.claims.GetByID(ctx, job.ClaimID)
	if err != nil {
		return fmt.Errorf("failed to reload claim: %w", err)
	}
	if claim == nil {
		return fmt.Errorf("claim %s: %w", job.ClaimID, entity.ErrNotFound)
	}

	next := job.StageIndex + 1
	if next >= len(claim.PipelineStages) {
		r.orchestrator.finish(ctx, claim.ID, claim.PipelineStages)
		return nil
	}

	r.logger.Debug("Stage done, enqueueing next",
		zap.String("claim_id", claim.ID),
		zap.String("stage", report.Stage),
		zap.Int("next_index", next))
	return r.queue.Publish(ctx, &port.StageJob{ClaimID: claim.ID, StageIndex: next})
}

// Resume re-enqueues a claim stuck in AI_PROCESSING at its durable marker
func (r *Runner) Resume(ctx context.Context, claim *entity.Claim) error {
	if claim.Status != domainwf.StateAIProcessing.String() {
		return fmt.Errorf("%w: claim %s is %s", ErrStageOutOfOrder, claim.ID, claim.Status)
	}
	if len(claim.PipelineStages) == 0 || claim.CurrentStage >= len(claim.PipelineStages) {
		return fmt.Errorf("%w: claim %s has no pending stage", ErrStageCompleted, claim.ID)
	}
	r.logger.Info("Resuming pipeline",
		zap.String("claim_id", claim.ID),
		zap.Int("stage_index", claim.CurrentStage),
		zap.String("stage", claim.PipelineStages[claim.CurrentStage]))
	return r.queue.Publish(ctx, &port.StageJob{ClaimID: claim.ID, StageIndex: claim.CurrentStage})
}
