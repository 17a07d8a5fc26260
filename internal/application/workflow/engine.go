package workflow

import (
	"context"

	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// TransitionRequest asks the engine to fire a trigger on a claim
type TransitionRequest struct {
	ClaimID string
	Trigger domainwf.Trigger
	Actor   string
	Action  string
	Note    string
}

// Transition describes a committed status change
type Transition struct {
	TenantID string
	ClaimID  string
	From     domainwf.State
	To       domainwf.State
	Trigger  domainwf.Trigger
	Actor    string
	Action   string
	Note     string
}

// Engine moves claims through the status graph. Every transition updates
// the claim status and appends a history row in the same transaction.
type Engine interface {
	// Fire runs one transition in its own transaction and publishes it
	Fire(ctx context.Context, req TransitionRequest) (*Transition, error)

	// Apply runs one transition inside the caller's transaction without publishing.
	// The caller publishes after commit.
	Apply(ctx context.Context, req TransitionRequest) (*Transition, error)

	// Publish emits status changed events for committed transitions
	Publish(ctx context.Context, transitions ...*Transition)

	// CurrentState returns the stored status of a claim
	CurrentState(ctx context.Context, claimID string) (domainwf.State, error)

	// PermittedTriggers lists the triggers available from the claim's status
	PermittedTriggers(ctx context.Context, claimID string) ([]domainwf.Trigger, error)
}
