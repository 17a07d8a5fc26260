package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqlite.DB, logger *zap.Logger) port.ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
	}
}

const claimColumns = `
	id, tenant_id, employee_id, claim_type, category_code, amount, currency,
	claim_date, description, project_code, payload, status, return_count,
	pipeline_stages, current_stage, created_at, updated_at`

// Create inserts a new claim
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	if err := claim.Validate(); err != nil {
		return err
	}

	payload := claim.Payload
	if payload == nil {
		payload = map[string]json.RawMessage{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	stagesJSON, err := json.Marshal(nonNil(claim.PipelineStages))
	if err != nil {
		return fmt.Errorf("failed to encode pipeline stages: %w", err)
	}

	now := time.Now().UTC()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	claim.UpdatedAt = now

	_, err = r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ID, claim.TenantID, claim.EmployeeID, claim.ClaimType, claim.CategoryCode,
		claim.Amount, claim.Currency, claim.ClaimDate.UTC(), claim.Description, claim.ProjectCode,
		string(payloadJSON), claim.Status, claim.ReturnCount, string(stagesJSON), claim.CurrentStage,
		claim.CreatedAt, claim.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create claim", zap.String("claim_id", claim.ID), zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// GetByID retrieves a claim, returning (nil, nil) when it does not exist
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*entity.Claim, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)

	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.String("claim_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// UpdateStatus sets the claim status
func (r *ClaimRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	return r.exec(ctx, "update status", id,
		`UPDATE claims SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
}

// IncrementReturnCount bumps the return counter by one
func (r *ClaimRepository) IncrementReturnCount(ctx context.Context, id string) error {
	return r.exec(ctx, "increment return count", id,
		`UPDATE claims SET return_count = return_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
}

// SetPayloadKey replaces one top-level payload key in place
func (r *ClaimRepository) SetPayloadKey(ctx context.Context, id string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode payload key %s: %w", key, err)
	}

	return r.exec(ctx, "set payload key", id, `
		UPDATE claims
		SET payload = json_set(COALESCE(NULLIF(payload, ''), '{}'), '$.' || ?, json(?)),
			updated_at = ?
		WHERE id = ?`,
		key, string(data), time.Now().UTC(), id)
}

// SetPipeline stores the stage plan and resets the marker
func (r *ClaimRepository) SetPipeline(ctx context.Context, id string, stages []string) error {
	data, err := json.Marshal(nonNil(stages))
	if err != nil {
		return fmt.Errorf("failed to encode pipeline stages: %w", err)
	}
	return r.exec(ctx, "set pipeline", id,
		`UPDATE claims SET pipeline_stages = ?, current_stage = 0, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id)
}

// AdvanceStage moves the stage marker
func (r *ClaimRepository) AdvanceStage(ctx context.Context, id string, next int) error {
	return r.exec(ctx, "advance stage", id,
		`UPDATE claims SET current_stage = ?, updated_at = ? WHERE id = ?`,
		next, time.Now().UTC(), id)
}

// ListStale returns claims stuck in status since before
func (r *ClaimRepository) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]*entity.Claim, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`,
		status, before.UTC(), limit)
	if err != nil {
		r.logger.Error("Failed to list stale claims", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list stale claims: %w", err)
	}
	defer rows.Close()

	var claims []*entity.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func (r *ClaimRepository) exec(ctx context.Context, op, id, query string, args ...interface{}) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.String("claim_id", id), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("claim %s: %w", id, entity.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*entity.Claim, error) {
	var (
		claim       entity.Claim
		payloadJSON string
		stagesJSON  string
	)

	err := row.Scan(
		&claim.ID, &claim.TenantID, &claim.EmployeeID, &claim.ClaimType, &claim.CategoryCode,
		&claim.Amount, &claim.Currency, &claim.ClaimDate, &claim.Description, &claim.ProjectCode,
		&payloadJSON, &claim.Status, &claim.ReturnCount, &stagesJSON, &claim.CurrentStage,
		&claim.CreatedAt, &claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.Payload = map[string]json.RawMessage{}
	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &claim.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload of claim %s: %v", entity.ErrValidationInput, claim.ID, err)
		}
	}
	if stagesJSON != "" {
		if err := json.Unmarshal([]byte(stagesJSON), &claim.PipelineStages); err != nil {
			return nil, fmt.Errorf("%w: pipeline of claim %s: %v", entity.ErrValidationInput, claim.ID, err)
		}
	}
	return &claim, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
