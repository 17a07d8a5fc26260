package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `id, claim_id, level, approver_id, status, decided_at, remarks, created_at`

// Create inserts an approval row, assigning an id when missing
func (r *ApprovalRepository) Create(ctx context.Context, a *entity.Approval) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClaimID, a.Level, a.ApproverID, a.Status, a.DecidedAt, a.Remarks, a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approval",
			zap.String("claim_id", a.ClaimID),
			zap.String("level", a.Level),
			zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

// UpdateDecision records the outcome of a pending approval
func (r *ApprovalRepository) UpdateDecision(ctx context.Context, id string, status string, approverID string, remarks string, decidedAt time.Time) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE approvals
		SET status = ?, approver_id = ?, remarks = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		status, approverID, remarks, decidedAt.UTC(), id, entity.ApprovalStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.String("approval_id", id), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending approval %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

// GetPending returns the open approval for a claim level, or (nil, nil)
func (r *ApprovalRepository) GetPending(ctx context.Context, claimID string, level string) (*entity.Approval, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE claim_id = ? AND level = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		claimID, level, entity.ApprovalStatusPending)

	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get pending approval", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return a, nil
}

// ListByClaim returns all approval rows of a claim in creation order
func (r *ApprovalRepository) ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE claim_id = ?
		ORDER BY created_at ASC, rowid ASC`, claimID)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var out []*entity.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (*entity.Approval, error) {
	var (
		a          entity.Approval
		approverID sql.NullString
		decidedAt  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.ClaimID, &a.Level, &approverID, &a.Status, &decidedAt, &a.Remarks, &a.CreatedAt); err != nil {
		return nil, err
	}
	if approverID.Valid {
		a.ApproverID = &approverID.String
	}
	if decidedAt.Valid {
		a.DecidedAt = &decidedAt.Time
	}
	return &a, nil
}
