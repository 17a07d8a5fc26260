package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history entry
func (r *HistoryRepository) Create(ctx context.Context, h *entity.ClaimHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO claim_history (claim_id, actor, previous_status, new_status, action, note, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ClaimID, h.Actor, h.PreviousStatus, h.NewStatus, h.Action, h.Note, h.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history", zap.String("claim_id", h.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	h.ID = id
	return nil
}

// GetByClaimID returns the trail of a claim, oldest first
func (r *HistoryRepository) GetByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimHistory, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, claim_id, actor, previous_status, new_status, action, note, timestamp
		FROM claim_history
		WHERE claim_id = ?
		ORDER BY id ASC`, claimID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("claim_id", claimID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var out []*entity.ClaimHistory
	for rows.Next() {
		var h entity.ClaimHistory
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.Actor, &h.PreviousStatus, &h.NewStatus, &h.Action, &h.Note, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
