package workflow

// State represents a claim status in the processing lifecycle
type State string

const (
	StateDraft              State = "DRAFT"
	StateSubmitted          State = "SUBMITTED"
	StateAIProcessing       State = "AI_PROCESSING"
	StatePendingManager     State = "PENDING_MANAGER"
	StateManagerApproved    State = "MANAGER_APPROVED"
	StatePendingHR          State = "PENDING_HR"
	StateHRApproved         State = "HR_APPROVED"
	StatePendingFinance     State = "PENDING_FINANCE"
	StateFinanceApproved    State = "FINANCE_APPROVED"
	StateSettled            State = "SETTLED"
	StateRejected           State = "REJECTED"
	StateReturnedToEmployee State = "RETURNED_TO_EMPLOYEE"
)

var validStates = map[State]bool{
	StateDraft:              true,
	StateSubmitted:          true,
	StateAIProcessing:       true,
	StatePendingManager:     true,
	StateManagerApproved:    true,
	StatePendingHR:          true,
	StateHRApproved:         true,
	StatePendingFinance:     true,
	StateFinanceApproved:    true,
	StateSettled:            true,
	StateRejected:           true,
	StateReturnedToEmployee: true,
}

var terminalStates = map[State]bool{
	StateRejected: true,
	StateSettled:  true,
}

var pendingStates = map[State]bool{
	StatePendingManager: true,
	StatePendingHR:      true,
	StatePendingFinance: true,
}

// IsTerminal returns true if no further transitions are allowed out of the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsPending returns true if the claim is waiting on a human approver
func (s State) IsPending() bool {
	return pendingStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known claim status
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a stored status into a State
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", ErrInvalidState
	}
	return st, nil
}
