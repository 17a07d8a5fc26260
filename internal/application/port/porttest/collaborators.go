package porttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
)

// SkipRules is an in-memory port.SkipRuleRepository
type SkipRules struct {
	mu    sync.Mutex
	Rules []*entity.ApprovalSkipRule
	Calls int
}

func (s *SkipRules) Create(ctx context.Context, rule *entity.ApprovalSkipRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rules = append(s.Rules, rule)
	return nil
}

func (s *SkipRules) ListActive(ctx context.Context, tenantID string) ([]*entity.ApprovalSkipRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	var out []*entity.ApprovalSkipRule
	for _, r := range s.Rules {
		if r.TenantID == tenantID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// Policies is a map-backed port.PolicyStore keyed by claim type and category
type Policies struct {
	Rules map[string][]entity.PolicyRule
	Err   error
}

// PolicyKey builds the lookup key used by Policies
func PolicyKey(claimType, category string) string {
	return claimType + "/" + category
}

func (p *Policies) GetPolicy(ctx context.Context, tenantID, claimType, category string) ([]entity.PolicyRule, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Rules[PolicyKey(claimType, category)], nil
}

// Employees is a map-backed port.EmployeeDirectory
type Employees struct {
	mu        sync.Mutex
	Employees map[string]*entity.EmployeeContext
	Err       error
	Calls     int
}

func (e *Employees) GetEmployeeContext(ctx context.Context, employeeID string) (*entity.EmployeeContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	emp, ok := e.Employees[employeeID]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", employeeID, entity.ErrNotFound)
	}
	cp := *emp
	return &cp, nil
}

// Reasoner returns a canned response or delegates to Fn
type Reasoner struct {
	mu       sync.Mutex
	Response string
	Err      error
	Fn       func(ctx context.Context, prompt, system string, temperature float32) (string, error)

	Calls       int
	LastPrompt  string
	LastSystem  string
	Temperature float32
}

func (r *Reasoner) Reason(ctx context.Context, prompt, system string, temperature float32) (string, error) {
	r.mu.Lock()
	r.Calls++
	r.LastPrompt = prompt
	r.LastSystem = system
	r.Temperature = temperature
	fn := r.Fn
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, system, temperature)
	}
	return r.Response, r.Err
}

// CallCount returns the number of Reason calls
func (r *Reasoner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Calls
}

// Executions records execution log entries
type Executions struct {
	mu      sync.Mutex
	Entries []*entity.AgentExecution
	Err     error
}

func (e *Executions) LogExecution(ctx context.Context, exec *entity.AgentExecution) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *exec
	e.Entries = append(e.Entries, &cp)
	return e.Err
}

// Snapshot returns a copy of the recorded entries
func (e *Executions) Snapshot() []*entity.AgentExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*entity.AgentExecution(nil), e.Entries...)
}

// Events records dispatched events synchronously
type Events struct {
	mu     sync.Mutex
	Events []*event.Event
}

func (d *Events) Dispatch(ctx context.Context, evt *event.Event) error {
	d.record(evt)
	return nil
}

func (d *Events) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.record(evt)
}

func (d *Events) record(evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Events = append(d.Events, evt)
}

// OfType returns recorded events of the given type
func (d *Events) OfType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ port.SkipRuleRepository = (*SkipRules)(nil)
	_ port.PolicyStore        = (*Policies)(nil)
	_ port.EmployeeDirectory  = (*Employees)(nil)
	_ port.Reasoner           = (*Reasoner)(nil)
	_ port.ExecutionSink      = (*Executions)(nil)
	_ dispatcher.Publisher    = (*Events)(nil)
)
