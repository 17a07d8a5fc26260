package workflow

import (
	"fmt"
	"sync"
)

var (
	claimBuilderOnce sync.Once
	claimBuilder     StateMachineBuilder
)

// ClaimBuilder returns the shared builder holding the claim status graph
func ClaimBuilder() StateMachineBuilder {
	claimBuilderOnce.Do(func() {
		claimBuilder = newClaimBuilder()
	})
	return claimBuilder
}

// NewClaimMachine positions a claim status machine at the given state
func NewClaimMachine(current State) StateMachine {
	return ClaimBuilder().Build(current)
}

func newClaimBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted)

	b.Configure(StateSubmitted).
		Permit(TriggerStartProcessing, StateAIProcessing).
		Permit(TriggerReject, StateRejected)

	// re-entering AI_PROCESSING lets a crashed pipeline be re-run
	b.Configure(StateAIProcessing).
		Permit(TriggerStartProcessing, StateAIProcessing).
		Permit(TriggerRouteToManager, StatePendingManager).
		Permit(TriggerRouteToHR, StatePendingHR).
		Permit(TriggerRouteToFinance, StatePendingFinance).
		Permit(TriggerCompleteApprovals, StateFinanceApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StatePendingManager).
		Permit(TriggerApprove, StateManagerApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerReturn, StateReturnedToEmployee)

	b.Configure(StateManagerApproved).
		Permit(TriggerRouteToHR, StatePendingHR).
		Permit(TriggerRouteToFinance, StatePendingFinance).
		Permit(TriggerCompleteApprovals, StateFinanceApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StatePendingHR).
		Permit(TriggerApprove, StateHRApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerReturn, StateReturnedToEmployee)

	b.Configure(StateHRApproved).
		Permit(TriggerRouteToFinance, StatePendingFinance).
		Permit(TriggerCompleteApprovals, StateFinanceApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StatePendingFinance).
		Permit(TriggerApprove, StateFinanceApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerReturn, StateReturnedToEmployee)

	b.Configure(StateFinanceApproved).
		Permit(TriggerSettle, StateSettled)

	b.Configure(StateReturnedToEmployee).
		Permit(TriggerResubmit, StateSubmitted)

	if err := b.Validate(); err != nil {
		panic(fmt.Sprintf("claim status graph: %v", err))
	}
	return b
}
