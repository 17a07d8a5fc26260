package workflow

// Trigger represents an event that can cause a claim status transition
type Trigger string

const (
	TriggerSubmit            Trigger = "SUBMIT"
	TriggerResubmit          Trigger = "RESUBMIT"
	TriggerStartProcessing   Trigger = "START_PROCESSING"
	TriggerRouteToManager    Trigger = "ROUTE_TO_MANAGER"
	TriggerRouteToHR         Trigger = "ROUTE_TO_HR"
	TriggerRouteToFinance    Trigger = "ROUTE_TO_FINANCE"
	TriggerCompleteApprovals Trigger = "COMPLETE_APPROVALS"
	TriggerApprove           Trigger = "APPROVE"
	TriggerReject            Trigger = "REJECT"
	TriggerReturn            Trigger = "RETURN"
	TriggerSettle            Trigger = "SETTLE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
