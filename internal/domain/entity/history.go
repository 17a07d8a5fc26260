package entity

import "time"

// History actions
const (
	ActionTransition     = "TRANSITION"
	ActionPipelineFailed = "PIPELINE_FAILED"
	ActionApprovalDecide = "APPROVAL_DECISION"
	ActionReturned       = "RETURNED"
	ActionSettled        = "SETTLED"
)

// SystemActor is recorded when the pipeline itself moves a claim
const SystemActor = "system"

// ClaimHistory is the audit trail of one claim status transition
type ClaimHistory struct {
	ID             int64     `json:"id"`
	ClaimID        string    `json:"claim_id"`
	Actor          string    `json:"actor"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Action         string    `json:"action"`
	Note           string    `json:"note"`
	Timestamp      time.Time `json:"timestamp"`
}
