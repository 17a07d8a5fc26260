package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claim types
const (
	ClaimTypeReimbursement = "REIMBURSEMENT"
	ClaimTypeAllowance     = "ALLOWANCE"
)

// Payload keys, one per stage. A stage only ever writes its own key.
const (
	PayloadKeyDocuments       = "documents"
	PayloadKeyIntegrationData = "integration_data"
	PayloadKeyValidation      = "validation"
	PayloadKeyApprovalHistory = "approval_history"
)

// Claim represents a single reimbursement or allowance request
type Claim struct {
	TenantID       string                     `json:"tenant_id"`
	ID             string                     `json:"id"`
	EmployeeID     string                     `json:"employee_id"`
	ClaimType      string                     `json:"claim_type"`
	CategoryCode   string                     `json:"category_code"`
	Amount         float64                    `json:"amount"`
	Currency       string                     `json:"currency"`
	ClaimDate      time.Time                  `json:"claim_date"`
	Description    string                     `json:"description"`
	ProjectCode    string                     `json:"project_code,omitempty"`
	Payload        map[string]json.RawMessage `json:"payload"`
	Status         string                     `json:"status"`
	ReturnCount    int                        `json:"return_count"`
	PipelineStages []string                   `json:"pipeline_stages,omitempty"`
	CurrentStage   int                        `json:"current_stage"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// IsValidClaimType reports whether t is one of the supported claim types
func IsValidClaimType(t string) bool {
	return t == ClaimTypeReimbursement || t == ClaimTypeAllowance
}

// Validate checks the structural invariants of a claim
func (c *Claim) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: claim id is required", ErrValidationInput)
	}
	if strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidationInput)
	}
	if !IsValidClaimType(c.ClaimType) {
		return fmt.Errorf("%w: unknown claim type %q", ErrValidationInput, c.ClaimType)
	}
	if c.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrValidationInput, c.Amount)
	}
	return nil
}

// PayloadValue decodes the payload entry under key into v.
// It returns false when the key is absent.
func (c *Claim) PayloadValue(key string, v interface{}) (bool, error) {
	raw, ok := c.Payload[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: payload key %s: %v", ErrValidationInput, key, err)
	}
	return true, nil
}

// AgeDays returns whole days between the claim date and now
func (c *Claim) AgeDays(now time.Time) int {
	return int(now.Sub(c.ClaimDate).Hours() / 24)
}
