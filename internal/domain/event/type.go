package event

// Type identifies the type of domain event
type Type string

const (
	TypeStatusChanged    Type = "claim.status_changed"
	TypeStageCompleted   Type = "pipeline.stage_completed"
	TypePipelineFailed   Type = "pipeline.failed"
	TypePipelineFinished Type = "pipeline.finished"
	TypeApprovalDecided  Type = "approval.decided"
	TypeClaimReturned    Type = "claim.returned"
	TypeClaimSettled     Type = "claim.settled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStatusChanged,
		TypeStageCompleted,
		TypePipelineFailed,
		TypePipelineFinished,
		TypeApprovalDecided,
		TypeClaimReturned,
		TypeClaimSettled:
		return true
	default:
		return false
	}
}
