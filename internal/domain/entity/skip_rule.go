package entity

import "fmt"

// Skip rule match types
const (
	MatchTypeEmail       = "email"
	MatchTypeDesignation = "designation"
	MatchTypeProject     = "project"
)

// StandardFlowReason is reported when no skip rule applies
const StandardFlowReason = "standard flow: no skip rule matched"

// ApprovalSkipRule bypasses approval levels for qualifying claims
type ApprovalSkipRule struct {
	ID                 string   `json:"id"`
	TenantID           string   `json:"tenant_id"`
	Name               string   `json:"name"`
	MatchType          string   `json:"match_type"`
	Emails             []string `json:"emails,omitempty"`
	Designations       []string `json:"designations,omitempty"`
	ProjectCodes       []string `json:"project_codes,omitempty"`
	MaxAmountThreshold *float64 `json:"max_amount_threshold,omitempty"`
	AllowedCategories  []string `json:"allowed_categories,omitempty"`
	SkipManager        bool     `json:"skip_manager"`
	SkipHR             bool     `json:"skip_hr"`
	SkipFinance        bool     `json:"skip_finance"`
	Priority           int      `json:"priority"`
	Active             bool     `json:"active"`
}

// IsValidMatchType reports whether t is a supported match type
func IsValidMatchType(t string) bool {
	switch t {
	case MatchTypeEmail, MatchTypeDesignation, MatchTypeProject:
		return true
	}
	return false
}

// SkipDecision says which approval levels a claim bypasses
type SkipDecision struct {
	SkipManager bool   `json:"skip_manager"`
	SkipHR      bool   `json:"skip_hr"`
	SkipFinance bool   `json:"skip_finance"`
	Matched     bool   `json:"matched"`
	RuleID      string `json:"rule_id,omitempty"`
	RuleName    string `json:"rule_name,omitempty"`
	Reason      string `json:"reason"`
}

// StandardFlow is the decision used when no rule matches
func StandardFlow() SkipDecision {
	return SkipDecision{Reason: StandardFlowReason}
}

// DecisionFor builds the decision granted by a matched rule
func DecisionFor(rule *ApprovalSkipRule, detail string) SkipDecision {
	return SkipDecision{
		SkipManager: rule.SkipManager,
		SkipHR:      rule.SkipHR,
		SkipFinance: rule.SkipFinance,
		Matched:     true,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Reason:      fmt.Sprintf("skip rule %q (priority %d) matched on %s", rule.Name, rule.Priority, detail),
	}
}

// Skips reports whether the decision bypasses the given level
func (d SkipDecision) Skips(level string) bool {
	switch level {
	case ApprovalLevelManager:
		return d.SkipManager
	case ApprovalLevelHR:
		return d.SkipHR
	case ApprovalLevelFinance:
		return d.SkipFinance
	}
	return false
}

// SkippedLevels lists the bypassed levels in chain order
func (d SkipDecision) SkippedLevels() []string {
	var levels []string
	for _, l := range ApprovalChain {
		if d.Skips(l) {
			levels = append(levels, l)
		}
	}
	return levels
}
