package workflow

import (
	"context"
	"errors"
	"testing"
)

type guardKey struct{}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateSubmitted, false},
		{StateAIProcessing, false},
		{StatePendingManager, false},
		{StateManagerApproved, false},
		{StatePendingHR, false},
		{StateHRApproved, false},
		{StatePendingFinance, false},
		{StateFinanceApproved, false},
		{StateReturnedToEmployee, false},
		{StateRejected, true},
		{StateSettled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"draft", StateDraft, true},
		{"settled", StateSettled, true},
		{"unknown", State("ARCHIVED"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	st, err := ParseState("PENDING_HR")
	if err != nil || st != StatePendingHR {
		t.Errorf("ParseState() = %v, %v", st, err)
	}

	if _, err := ParseState("bogus"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ParseState(bogus) error = %v, want %v", err, ErrInvalidState)
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()
	NewBuilder().Configure(State("INVALID"))
}

func TestBuilder_PermitPanicsOnInvalidTarget(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid target state")
		}
	}()
	NewBuilder().Configure(StateDraft).Permit(TriggerSubmit, State("INVALID"))
}

func TestStateConfiguration_PermitIf(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateAIProcessing).
		PermitIf(TriggerRouteToManager, StatePendingManager, func(ctx context.Context) bool {
			return ctx.Value(guardKey{}) == "manager"
		}).
		PermitIf(TriggerRouteToManager, StatePendingHR, func(ctx context.Context) bool {
			return ctx.Value(guardKey{}) == "hr"
		})

	m1 := builder.Build(StateAIProcessing)
	if err := m1.Fire(context.WithValue(context.Background(), guardKey{}, "hr"), TriggerRouteToManager); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m1.State() != StatePendingHR {
		t.Errorf("State after Fire() = %v, want %v", m1.State(), StatePendingHR)
	}

	m2 := builder.Build(StateAIProcessing)
	err := m2.Fire(context.WithValue(context.Background(), guardKey{}, "none"), TriggerRouteToManager)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if m2.State() != StateAIProcessing {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateAIProcessing, m2.State())
	}
}

func TestStateMachine_Destination_DoesNotMove(t *testing.T) {
	m := NewClaimMachine(StatePendingManager)

	next, err := m.Destination(context.Background(), TriggerApprove)
	if err != nil {
		t.Fatalf("Destination() failed: %v", err)
	}
	if next != StateManagerApproved {
		t.Errorf("Destination() = %v, want %v", next, StateManagerApproved)
	}
	if m.State() != StatePendingManager {
		t.Errorf("Destination() moved the machine to %v", m.State())
	}
}

func TestStateMachine_Independence(t *testing.T) {
	m1 := NewClaimMachine(StateDraft)
	m2 := NewClaimMachine(StateDraft)

	if err := m1.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m2.State() != StateDraft {
		t.Errorf("machine2 state = %v, want %v", m2.State(), StateDraft)
	}
}

func TestClaimMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
	}{
		{"submit draft", StateDraft, TriggerSubmit, StateSubmitted},
		{"start processing", StateSubmitted, TriggerStartProcessing, StateAIProcessing},
		{"restart processing", StateAIProcessing, TriggerStartProcessing, StateAIProcessing},
		{"route manager", StateAIProcessing, TriggerRouteToManager, StatePendingManager},
		{"route hr directly", StateAIProcessing, TriggerRouteToHR, StatePendingHR},
		{"route finance directly", StateAIProcessing, TriggerRouteToFinance, StatePendingFinance},
		{"all levels skipped", StateAIProcessing, TriggerCompleteApprovals, StateFinanceApproved},
		{"manager approves", StatePendingManager, TriggerApprove, StateManagerApproved},
		{"manager to hr", StateManagerApproved, TriggerRouteToHR, StatePendingHR},
		{"manager to finance", StateManagerApproved, TriggerRouteToFinance, StatePendingFinance},
		{"hr approves", StatePendingHR, TriggerApprove, StateHRApproved},
		{"hr to finance", StateHRApproved, TriggerRouteToFinance, StatePendingFinance},
		{"hr completes", StateHRApproved, TriggerCompleteApprovals, StateFinanceApproved},
		{"finance approves", StatePendingFinance, TriggerApprove, StateFinanceApproved},
		{"settle", StateFinanceApproved, TriggerSettle, StateSettled},
		{"return from hr", StatePendingHR, TriggerReturn, StateReturnedToEmployee},
		{"resubmit", StateReturnedToEmployee, TriggerResubmit, StateSubmitted},
		{"reject processing", StateAIProcessing, TriggerReject, StateRejected},
		{"reject pending finance", StatePendingFinance, TriggerReject, StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewClaimMachine(tt.from)
			if err := m.Fire(context.Background(), tt.trigger); err != nil {
				t.Fatalf("Fire(%v) from %v failed: %v", tt.trigger, tt.from, err)
			}
			if m.State() != tt.want {
				t.Errorf("State after Fire() = %v, want %v", m.State(), tt.want)
			}
		})
	}
}

func TestClaimMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
	}{
		{"approve without pending", StateAIProcessing, TriggerApprove},
		{"settle before finance", StatePendingFinance, TriggerSettle},
		{"reopen rejected", StateRejected, TriggerSubmit},
		{"reprocess settled", StateSettled, TriggerStartProcessing},
		{"return from draft", StateDraft, TriggerReturn},
		{"process draft", StateDraft, TriggerStartProcessing},
		{"approve returned", StateReturnedToEmployee, TriggerApprove},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewClaimMachine(tt.from)
			err := m.Fire(context.Background(), tt.trigger)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
			}
			if m.State() != tt.from {
				t.Errorf("State should remain %v, got %v", tt.from, m.State())
			}
		})
	}
}

func TestClaimMachine_StandardFlow(t *testing.T) {
	m := NewClaimMachine(StateDraft)

	steps := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerSubmit, StateSubmitted},
		{TriggerStartProcessing, StateAIProcessing},
		{TriggerRouteToManager, StatePendingManager},
		{TriggerApprove, StateManagerApproved},
		{TriggerRouteToHR, StatePendingHR},
		{TriggerApprove, StateHRApproved},
		{TriggerRouteToFinance, StatePendingFinance},
		{TriggerApprove, StateFinanceApproved},
		{TriggerSettle, StateSettled},
	}

	for i, step := range steps {
		if err := m.Fire(context.Background(), step.trigger); err != nil {
			t.Fatalf("Step %d: Fire(%v) failed: %v", i, step.trigger, err)
		}
		if m.State() != step.want {
			t.Errorf("Step %d: State = %v, want %v", i, m.State(), step.want)
		}
	}

	if len(m.PermittedTriggers()) != 0 {
		t.Errorf("terminal state should permit no triggers, got %v", m.PermittedTriggers())
	}
}

func TestStateMachine_PermittedTriggers_Sorted(t *testing.T) {
	triggers := NewClaimMachine(StatePendingManager).PermittedTriggers()
	want := []Trigger{TriggerApprove, TriggerReject, TriggerReturn}
	if len(triggers) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", triggers, want)
	}
	for i := range want {
		if triggers[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, triggers[i], want[i])
		}
	}
}

func TestBuilder_FrozenAfterBuild(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)
	b.Build(StateDraft)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() after Build() should panic")
		}
	}()
	b.Configure(StateSubmitted)
}

func TestBuilder_Validate(t *testing.T) {
	tests := []struct {
		name      string
		configure func(b StateMachineBuilder)
		wantErr   bool
	}{
		{
			name: "absorbing terminals",
			configure: func(b StateMachineBuilder) {
				b.Configure(StateFinanceApproved).Permit(TriggerSettle, StateSettled)
			},
		},
		{
			name: "terminal state with an exit",
			configure: func(b StateMachineBuilder) {
				b.Configure(StateRejected).Permit(TriggerResubmit, StateSubmitted)
				b.Configure(StateSubmitted).Permit(TriggerReject, StateRejected)
			},
			wantErr: true,
		},
		{
			name: "dead end",
			configure: func(b StateMachineBuilder) {
				b.Configure(StatePendingManager).Permit(TriggerReturn, StateReturnedToEmployee)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.configure(b)
			if err := b.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClaimBuilder_Edges(t *testing.T) {
	edges := ClaimBuilder().Edges()

	out := map[State]int{}
	for _, e := range edges {
		out[e.From]++
		if e.Guarded {
			t.Errorf("unexpected guarded edge %v", e)
		}
		if e.From.IsTerminal() {
			t.Errorf("terminal state %s has edge %v", e.From, e)
		}
	}
	if out[StatePendingManager] != 3 || out[StateAIProcessing] != 6 || out[StateFinanceApproved] != 1 {
		t.Errorf("unexpected edge counts %v", out)
	}

	for i := 1; i < len(edges); i++ {
		if edges[i-1].From > edges[i].From {
			t.Fatalf("edges not ordered by source: %v before %v", edges[i-1], edges[i])
		}
	}
}
