package entity

// PolicyRule holds the limits applied to one (claim type, category) pair.
// Nil numeric fields mean the rule does not constrain that dimension.
type PolicyRule struct {
	ID                int64    `json:"id"`
	TenantID          string   `json:"tenant_id"`
	ClaimType         string   `json:"claim_type"`
	CategoryCode      string   `json:"category_code"`
	AmountLimit       *float64 `json:"amount_limit,omitempty"`
	MinTenureMonths   *int     `json:"min_tenure_months,omitempty"`
	RequiredDocuments *int     `json:"required_documents,omitempty"`
	Description       string   `json:"description"`
	Version           int      `json:"version"`
	Active            bool     `json:"active"`
}
