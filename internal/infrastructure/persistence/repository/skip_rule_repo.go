package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// SkipRuleRepository implements port.SkipRuleRepository
type SkipRuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSkipRuleRepository creates a new skip rule repository
func NewSkipRuleRepository(db *sqlite.DB, logger *zap.Logger) port.SkipRuleRepository {
	return &SkipRuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a rule
func (r *SkipRuleRepository) Create(ctx context.Context, rule *entity.ApprovalSkipRule) error {
	if !entity.IsValidMatchType(rule.MatchType) {
		return fmt.Errorf("%w: unknown match type %q", entity.ErrValidationInput, rule.MatchType)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	emails, _ := json.Marshal(nonNil(rule.Emails))
	designations, _ := json.Marshal(nonNil(rule.Designations))
	projects, _ := json.Marshal(nonNil(rule.ProjectCodes))
	categories, _ := json.Marshal(nonNil(rule.AllowedCategories))

	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO approval_skip_rules (
			id, tenant_id, name, match_type, emails, designations, project_codes,
			max_amount_threshold, allowed_categories, skip_manager, skip_hr, skip_finance,
			priority, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.TenantID, rule.Name, rule.MatchType,
		string(emails), string(designations), string(projects),
		rule.MaxAmountThreshold, string(categories),
		rule.SkipManager, rule.SkipHR, rule.SkipFinance,
		rule.Priority, rule.Active,
	)
	if err != nil {
		r.logger.Error("Failed to create skip rule",
			zap.String("tenant_id", rule.TenantID),
			zap.String("name", rule.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create skip rule: %w", err)
	}
	return nil
}

// ListActive returns the tenant's active rules. Ordering is left to the resolver.
func (r *SkipRuleRepository) ListActive(ctx context.Context, tenantID string) ([]*entity.ApprovalSkipRule, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, tenant_id, name, match_type, emails, designations, project_codes,
			max_amount_threshold, allowed_categories, skip_manager, skip_hr, skip_finance,
			priority, active
		FROM approval_skip_rules
		WHERE tenant_id = ? AND active = 1`, tenantID)
	if err != nil {
		r.logger.Error("Failed to list skip rules", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, fmt.Errorf("failed to list skip rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalSkipRule
	for rows.Next() {
		var (
			rule                                       entity.ApprovalSkipRule
			emails, designations, projects, categories string
			threshold                                  sql.NullFloat64
		)
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.MatchType,
			&emails, &designations, &projects,
			&threshold, &categories,
			&rule.SkipManager, &rule.SkipHR, &rule.SkipFinance,
			&rule.Priority, &rule.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan skip rule: %w", err)
		}

		if threshold.Valid {
			v := threshold.Float64
			rule.MaxAmountThreshold = &v
		}
		for _, f := range []struct {
			raw string
			dst *[]string
		}{
			{emails, &rule.Emails},
			{designations, &rule.Designations},
			{projects, &rule.ProjectCodes},
			{categories, &rule.AllowedCategories},
		} {
			if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
				return nil, fmt.Errorf("%w: skip rule %s: %v", entity.ErrValidationInput, rule.Name, err)
			}
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}
