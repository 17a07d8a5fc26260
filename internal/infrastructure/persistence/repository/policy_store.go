package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// PolicyStore implements port.PolicyStore over the versioned policy_rules table
type PolicyStore struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewPolicyStore creates a new policy store
func NewPolicyStore(db *sqlite.DB, logger *zap.Logger) *PolicyStore {
	return &PolicyStore{
		db:     db,
		logger: logger,
	}
}

// GetPolicy returns the active rules of the latest version for the key.
// An empty slice means no policy is configured.
func (s *PolicyStore) GetPolicy(ctx context.Context, tenantID, claimType, category string) ([]entity.PolicyRule, error) {
	rows, err := s.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, tenant_id, claim_type, category_code, amount_limit, min_tenure_months,
			required_documents, description, version, active
		FROM policy_rules
		WHERE tenant_id = ? AND claim_type = ? AND category_code = ? AND active = 1
			AND version = (
				SELECT MAX(version) FROM policy_rules
				WHERE tenant_id = ? AND claim_type = ? AND category_code = ? AND active = 1
			)
		ORDER BY id ASC`,
		tenantID, claimType, category, tenantID, claimType, category)
	if err != nil {
		s.logger.Error("Failed to load policy",
			zap.String("tenant_id", tenantID),
			zap.String("claim_type", claimType),
			zap.String("category", category),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	defer rows.Close()

	var rules []entity.PolicyRule
	for rows.Next() {
		var (
			rule      entity.PolicyRule
			limit     sql.NullFloat64
			tenure    sql.NullInt64
			documents sql.NullInt64
		)
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.ClaimType, &rule.CategoryCode,
			&limit, &tenure, &documents, &rule.Description, &rule.Version, &rule.Active); err != nil {
			return nil, fmt.Errorf("failed to scan policy rule: %w", err)
		}
		if limit.Valid {
			v := limit.Float64
			rule.AmountLimit = &v
		}
		if tenure.Valid {
			v := int(tenure.Int64)
			rule.MinTenureMonths = &v
		}
		if documents.Valid {
			v := int(documents.Int64)
			rule.RequiredDocuments = &v
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Upsert stores a policy rule version. Used by seeding and tests.
func (s *PolicyStore) Upsert(ctx context.Context, rule *entity.PolicyRule) error {
	if rule.Version == 0 {
		rule.Version = 1
	}
	result, err := s.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO policy_rules (tenant_id, claim_type, category_code, amount_limit,
			min_tenure_months, required_documents, description, version, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, claim_type, category_code, version) DO UPDATE SET
			amount_limit = excluded.amount_limit,
			min_tenure_months = excluded.min_tenure_months,
			required_documents = excluded.required_documents,
			description = excluded.description,
			active = excluded.active`,
		rule.TenantID, rule.ClaimType, rule.CategoryCode, rule.AmountLimit,
		rule.MinTenureMonths, rule.RequiredDocuments, rule.Description, rule.Version, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert policy rule: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil && id > 0 {
		rule.ID = id
	}
	return nil
}

var _ port.PolicyStore = (*PolicyStore)(nil)
