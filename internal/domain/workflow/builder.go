package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// GuardFunc decides whether a guarded transition may be taken
type GuardFunc func(ctx context.Context) bool

// Edge is one transition of the status graph
type Edge struct {
	From    State
	Trigger Trigger
	To      State
	Guarded bool
}

// StateMachineBuilder collects the transition graph and stamps out machines.
// The first Build freezes the graph; every machine shares it read-only.
type StateMachineBuilder interface {
	// Configure returns the configuration for transitions leaving the given state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at the initial state
	Build(initialState State) StateMachine

	// Edges lists every transition ordered by source state, trigger, then registration
	Edges() []Edge

	// Validate checks that terminal states are absorbing and that every
	// other state a transition enters has a way out
	Validate() error
}

// StateConfiguration configures transitions leaving one state
type StateConfiguration interface {
	// Permit allows a trigger to move to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to move to the target state when the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

// graph maps a source state to its outgoing transitions by trigger
type graph map[State]map[Trigger][]transition

type stateConfig struct {
	builder   *stateMachineBuilder
	fromState State
}

type stateMachineBuilder struct {
	mu     sync.Mutex
	graph  graph
	frozen bool
}

type stateMachine struct {
	currentState State
	graph        graph
}

// NewBuilder creates an empty state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{graph: make(graph)}
}

// Configure returns the configuration for the given state. It panics once
// the graph is frozen.
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustBeOpen()
	if _, ok := b.graph[state]; !ok {
		b.graph[state] = make(map[Trigger][]transition)
	}
	return &stateConfig{builder: b, fromState: state}
}

func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()

	return &stateMachine{currentState: initialState, graph: b.graph}
}

func (b *stateMachineBuilder) mustBeOpen() {
	if b.frozen {
		panic("state machine graph is frozen after Build")
	}
}

func (b *stateMachineBuilder) Edges() []Edge {
	b.mu.Lock()
	defer b.mu.Unlock()

	var edges []Edge
	for from, byTrigger := range b.graph {
		for trigger, ts := range byTrigger {
			for _, t := range ts {
				edges = append(edges, Edge{From: from, Trigger: trigger, To: t.toState, Guarded: t.guard != nil})
			}
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].Trigger < edges[j].Trigger
	})
	return edges
}

func (b *stateMachineBuilder) Validate() error {
	edges := b.Edges()

	exits := make(map[State]bool)
	for _, e := range edges {
		exits[e.From] = true
	}

	var errs []error
	for _, e := range edges {
		if e.From.IsTerminal() {
			errs = append(errs, fmt.Errorf("terminal state %s leaves on %s", e.From, e.Trigger))
		}
		if !e.To.IsTerminal() && !exits[e.To] {
			errs = append(errs, fmt.Errorf("%s enters %s which has no way out", e.Trigger, e.To))
		}
	}
	return errors.Join(errs...)
}

// Permit allows a trigger to move to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to move to the target state when the guard passes.
// Guarded transitions for the same trigger are tried in registration order.
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	b := c.builder
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustBeOpen()
	out := b.graph[c.fromState]
	out[trigger] = append(out[trigger], transition{toState: toState, guard: guard})
	return c
}

func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.graph[m.currentState][trigger]) > 0
}

func (m *stateMachine) Destination(ctx context.Context, trigger Trigger) (State, error) {
	out, exists := m.graph[m.currentState]
	if !exists {
		return "", fmt.Errorf("%w: cannot fire %s from %s (no configuration)", ErrInvalidTransition, trigger, m.currentState)
	}

	transitions := out[trigger]
	if len(transitions) == 0 {
		return "", fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.currentState)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			return t.toState, nil
		}
	}
	return "", fmt.Errorf("%w: trigger %s from %s", ErrGuardFailed, trigger, m.currentState)
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	next, err := m.Destination(ctx, trigger)
	if err != nil {
		return err
	}
	m.currentState = next
	return nil
}

// PermittedTriggers returns the configured triggers sorted by name
func (m *stateMachine) PermittedTriggers() []Trigger {
	out := m.graph[m.currentState]
	triggers := make([]Trigger, 0, len(out))
	for trigger := range out {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
