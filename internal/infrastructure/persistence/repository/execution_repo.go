package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// ExecutionRepository implements port.ExecutionSink
type ExecutionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new execution log repository
func NewExecutionRepository(db *sqlite.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

// LogExecution appends one stage execution record
func (r *ExecutionRepository) LogExecution(ctx context.Context, exec *entity.AgentExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO agent_executions (id, claim_id, stage_name, version, status, result_summary,
			duration_ms, error_message, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ClaimID, exec.StageName, exec.Version, exec.Status, exec.ResultSummary,
		exec.DurationMs, exec.ErrorMessage, exec.Confidence, exec.CreatedAt,
	)
	if err != nil {
		r.logger.Warn("Failed to log execution",
			zap.String("claim_id", exec.ClaimID),
			zap.String("stage", exec.StageName),
			zap.Error(err))
		return fmt.Errorf("failed to log execution: %w", err)
	}
	return nil
}

// ListByClaim returns the execution log of a claim, oldest first
func (r *ExecutionRepository) ListByClaim(ctx context.Context, claimID string) ([]*entity.AgentExecution, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, claim_id, stage_name, version, status, result_summary, duration_ms,
			error_message, confidence, created_at
		FROM agent_executions
		WHERE claim_id = ?
		ORDER BY created_at ASC, rowid ASC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*entity.AgentExecution
	for rows.Next() {
		var e entity.AgentExecution
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.StageName, &e.Version, &e.Status, &e.ResultSummary,
			&e.DurationMs, &e.ErrorMessage, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ port.ExecutionSink = (*ExecutionRepository)(nil)
