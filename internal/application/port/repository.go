package port

import (
	"context"
	"time"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

// ClaimRepository defines persistence operations for Claim.
// Getters return (nil, nil) when the claim does not exist.
type ClaimRepository interface {
	Create(ctx context.Context, claim *entity.Claim) error
	GetByID(ctx context.Context, id string) (*entity.Claim, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	IncrementReturnCount(ctx context.Context, id string) error

	// SetPayloadKey replaces a single payload key, leaving all others untouched
	SetPayloadKey(ctx context.Context, id string, key string, value interface{}) error

	// SetPipeline records the stage plan and resets the stage marker to zero
	SetPipeline(ctx context.Context, id string, stages []string) error

	// AdvanceStage moves the durable stage marker forward
	AdvanceStage(ctx context.Context, id string, next int) error

	// ListStale returns claims in status whose last update is older than before
	ListStale(ctx context.Context, status string, before time.Time, limit int) ([]*entity.Claim, error)
}

// ApprovalRepository defines persistence operations for Approval
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entity.Approval) error
	UpdateDecision(ctx context.Context, id string, status string, approverID string, remarks string, decidedAt time.Time) error
	GetPending(ctx context.Context, claimID string, level string) (*entity.Approval, error)
	ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error)
}

// SkipRuleRepository defines read operations for ApprovalSkipRule
type SkipRuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalSkipRule) error

	// ListActive returns the tenant's active rules in no guaranteed order
	ListActive(ctx context.Context, tenantID string) ([]*entity.ApprovalSkipRule, error)
}

// HistoryRepository defines persistence operations for ClaimHistory
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ClaimHistory) error
	GetByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimHistory, error)
}

// PolicyStore is the read-only lookup of category policy
type PolicyStore interface {
	GetPolicy(ctx context.Context, tenantID, claimType, category string) ([]entity.PolicyRule, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
