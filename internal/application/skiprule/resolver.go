package skiprule

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Query is the employee and claim context a skip decision is made for
type Query struct {
	TenantID            string  `json:"tenant_id"`
	EmployeeEmail       string  `json:"employee_email"`
	EmployeeDesignation string  `json:"employee_designation"`
	ClaimAmount         float64 `json:"claim_amount"`
	CategoryCode        string  `json:"category_code"`
	ProjectCode         string  `json:"project_code"`
}

// Resolver picks the first applicable approval skip rule for a claim.
// It never writes.
type Resolver struct {
	rules  port.SkipRuleRepository
	logger *zap.Logger
}

// NewResolver creates a skip rule resolver
func NewResolver(rules port.SkipRuleRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		rules:  rules,
		logger: logger,
	}
}

// ResolveSkips returns the decision of the first rule, in (priority, name)
// order, that matches the query and passes its amount and category guards.
// When nothing applies the standard flow decision is returned.
func (r *Resolver) ResolveSkips(ctx context.Context, q Query) (entity.SkipDecision, error) {
	rules, err := r.rules.ListActive(ctx, q.TenantID)
	if err != nil {
		return entity.SkipDecision{}, fmt.Errorf("failed to load skip rules: %w", err)
	}

	ordered := Order(rules)
	for _, rule := range ordered {
		detail, ok := matches(rule, q)
		if !ok {
			continue
		}

		if reason, ok := guardsPass(rule, q); !ok {
			r.logger.Debug("Skip rule matched but guard failed",
				zap.String("tenant_id", q.TenantID),
				zap.String("rule", rule.Name),
				zap.String("reason", reason))
			continue
		}

		decision := entity.DecisionFor(rule, detail)
		r.logger.Info("Skip rule applied",
			zap.String("tenant_id", q.TenantID),
			zap.String("rule", rule.Name),
			zap.Int("priority", rule.Priority),
			zap.Strings("skipped_levels", decision.SkippedLevels()))
		return decision, nil
	}

	return entity.StandardFlow(), nil
}

// Order returns the active rules sorted by priority then name.
// Inactive rules are dropped.
func Order(rules []*entity.ApprovalSkipRule) []*entity.ApprovalSkipRule {
	out := make([]*entity.ApprovalSkipRule, 0, len(rules))
	for _, rule := range rules {
		if rule != nil && rule.Active {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// matches consults exactly the value set selected by the rule's match type
func matches(rule *entity.ApprovalSkipRule, q Query) (string, bool) {
	switch rule.MatchType {
	case entity.MatchTypeEmail:
		if containsFold(rule.Emails, q.EmployeeEmail) {
			return "email " + NormalizeEmail(q.EmployeeEmail), true
		}
	case entity.MatchTypeDesignation:
		if containsFold(rule.Designations, q.EmployeeDesignation) {
			return "designation " + NormalizeCode(q.EmployeeDesignation), true
		}
	case entity.MatchTypeProject:
		if containsFold(rule.ProjectCodes, q.ProjectCode) {
			return "project " + NormalizeCode(q.ProjectCode), true
		}
	}
	return "", false
}

func guardsPass(rule *entity.ApprovalSkipRule, q Query) (string, bool) {
	if rule.MaxAmountThreshold != nil && q.ClaimAmount > *rule.MaxAmountThreshold {
		return fmt.Sprintf("amount %.2f exceeds ceiling %.2f", q.ClaimAmount, *rule.MaxAmountThreshold), false
	}
	if len(rule.AllowedCategories) > 0 && !containsFold(rule.AllowedCategories, q.CategoryCode) {
		return fmt.Sprintf("category %s not allowed", NormalizeCode(q.CategoryCode)), false
	}
	return "", true
}

// CreateRule normalizes and stores a new rule for its tenant
func (r *Resolver) CreateRule(ctx context.Context, rule *entity.ApprovalSkipRule) error {
	NormalizeRule(rule)

	if rule.TenantID == "" || rule.Name == "" {
		return fmt.Errorf("%w: skip rule needs tenant and name", entity.ErrValidationInput)
	}
	if !entity.IsValidMatchType(rule.MatchType) {
		return fmt.Errorf("%w: unknown match type %q", entity.ErrValidationInput, rule.MatchType)
	}
	if rule.MaxAmountThreshold != nil && *rule.MaxAmountThreshold <= 0 {
		return fmt.Errorf("%w: amount ceiling must be positive", entity.ErrValidationInput)
	}
	if !rule.SkipManager && !rule.SkipHR && !rule.SkipFinance {
		return fmt.Errorf("%w: skip rule %q skips no level", entity.ErrValidationInput, rule.Name)
	}

	if err := r.rules.Create(ctx, rule); err != nil {
		return err
	}
	r.logger.Info("Skip rule created",
		zap.String("tenant_id", rule.TenantID),
		zap.String("rule", rule.Name),
		zap.String("match_type", rule.MatchType))
	return nil
}
