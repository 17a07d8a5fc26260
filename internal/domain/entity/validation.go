package entity

import "time"

// Recommendations produced by the validation engine
const (
	RecommendationAutoApprove = "AUTO_APPROVE"
	RecommendationApprove     = "APPROVE"
	RecommendationReview      = "REVIEW"
	RecommendationReject      = "REJECT"
)

// Deterministic rule identifiers
const (
	RuleAmountLimit         = "AMOUNT_LIMIT"
	RuleTenureMinimum       = "TENURE_MINIMUM"
	RuleDocumentRequirement = "DOCUMENT_REQUIREMENT"
	RuleClaimAge            = "CLAIM_AGE"
)

// RuleEvidence is the outcome of one deterministic check
type RuleEvidence struct {
	RuleID   string `json:"rule_id"`
	Passed   bool   `json:"passed"`
	Evidence string `json:"evidence"`
}

// ValidationResult is written under the claim's validation payload key
type ValidationResult struct {
	Confidence     float64        `json:"confidence"`
	Recommendation string         `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	Justification  string         `json:"justification,omitempty"`
	Evidence       []RuleEvidence `json:"evidence"`
	LLMUsed        bool           `json:"llm_used"`
	Degraded       bool           `json:"degraded,omitempty"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// FailedRules returns the evidence entries that did not pass
func (r *ValidationResult) FailedRules() []RuleEvidence {
	var failed []RuleEvidence
	for _, e := range r.Evidence {
		if !e.Passed {
			failed = append(failed, e)
		}
	}
	return failed
}

// IsAIRecommendation reports whether rec is an allowed AI outcome
func IsAIRecommendation(rec string) bool {
	switch rec {
	case RecommendationApprove, RecommendationReview, RecommendationReject:
		return true
	}
	return false
}
