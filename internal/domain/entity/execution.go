package entity

import "time"

// Execution statuses
const (
	ExecutionStatusSuccess = "SUCCESS"
	ExecutionStatusFailed  = "FAILED"
)

// AgentExecution is the observability record for one stage invocation
type AgentExecution struct {
	ID            string    `json:"id"`
	ClaimID       string    `json:"claim_id"`
	StageName     string    `json:"stage_name"`
	Version       string    `json:"version"`
	Status        string    `json:"status"`
	ResultSummary string    `json:"result_summary"`
	DurationMs    int64     `json:"duration_ms"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Confidence    *float64  `json:"confidence,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
