package entity

import "time"

// Approval levels
const (
	ApprovalLevelManager = "MANAGER"
	ApprovalLevelHR      = "HR"
	ApprovalLevelFinance = "FINANCE"
)

// ApprovalChain is the fixed order levels are visited in
var ApprovalChain = []string{ApprovalLevelManager, ApprovalLevelHR, ApprovalLevelFinance}

// Approval decision statuses
const (
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
	ApprovalStatusReturned = "RETURNED"
)

// IsValidApprovalLevel reports whether level is part of the chain
func IsValidApprovalLevel(level string) bool {
	for _, l := range ApprovalChain {
		if l == level {
			return true
		}
	}
	return false
}

// Approval records one level a claim actually passed through
type Approval struct {
	ID         string     `json:"id"`
	ClaimID    string     `json:"claim_id"`
	Level      string     `json:"level"`
	ApproverID *string    `json:"approver_id,omitempty"`
	Status     string     `json:"status"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Remarks    string     `json:"remarks,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ApprovalHistory is stored under the approval_history payload key
type ApprovalHistory struct {
	SkipDecision  SkipDecision      `json:"skip_decision"`
	SkippedLevels []string          `json:"skipped_levels"`
	EntryStatus   string            `json:"entry_status"`
	Decisions     []ApprovalOutcome `json:"decisions,omitempty"`
	RoutedAt      time.Time         `json:"routed_at"`
}

// ApprovalOutcome is one human decision appended to the approval history
type ApprovalOutcome struct {
	Level      string    `json:"level"`
	Decision   string    `json:"decision"`
	ApproverID string    `json:"approver_id"`
	Remarks    string    `json:"remarks,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}
