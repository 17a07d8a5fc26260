package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

type engineImpl struct {
	claimRepo   port.ClaimRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for status change events
func WithDispatcher(d dispatcher.Publisher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for history rows
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new claim workflow engine
func NewEngine(
	claimRepo port.ClaimRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		claimRepo:   claimRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineImpl) Fire(ctx context.Context, req TransitionRequest) (*Transition, error) {
	var t *Transition
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		t, err = e.Apply(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.Publish(ctx, t)
	return t, nil
}

func (e *engineImpl) Apply(ctx context.Context, req TransitionRequest) (*Transition, error) {
	claim, err := e.loadClaim(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}

	from, err := domainwf.ParseState(claim.Status)
	if err != nil {
		return nil, fmt.Errorf("claim %s has status %q: %w", claim.ID, claim.Status, err)
	}

	machine := domainwf.NewClaimMachine(from)
	if err := machine.Fire(ctx, req.Trigger); err != nil {
		return nil, fmt.Errorf("claim %s: %w", claim.ID, err)
	}
	to := machine.State()

	if err := e.claimRepo.UpdateStatus(ctx, claim.ID, to.String()); err != nil {
		return nil, fmt.Errorf("failed to update claim status: %w", err)
	}

	actor := req.Actor
	if actor == "" {
		actor = entity.SystemActor
	}
	action := req.Action
	if action == "" {
		action = entity.ActionTransition
	}

	note := req.Note
	if note == "" {
		note = req.Trigger.String()
	}

	if err := e.historyRepo.Create(ctx, &entity.ClaimHistory{
		ClaimID:        claim.ID,
		Actor:          actor,
		PreviousStatus: from.String(),
		NewStatus:      to.String(),
		Action:         action,
		Note:           note,
		Timestamp:      e.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to create history record: %w", err)
	}

	e.logger.Info("Claim status changed",
		zap.String("claim_id", claim.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("trigger", req.Trigger.String()),
		zap.String("actor", actor))

	return &Transition{
		TenantID: claim.TenantID,
		ClaimID:  claim.ID,
		From:     from,
		To:       to,
		Trigger:  req.Trigger,
		Actor:    actor,
		Action:   action,
		Note:     note,
	}, nil
}

func (e *engineImpl) Publish(ctx context.Context, transitions ...*Transition) {
	if e.dispatcher == nil {
		return
	}
	for _, t := range transitions {
		if t == nil {
			continue
		}
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(
			event.TypeStatusChanged,
			t.TenantID,
			t.ClaimID,
			map[string]interface{}{
				"previous_status": t.From.String(),
				"new_status":      t.To.String(),
				"trigger":         t.Trigger.String(),
				"actor":           t.Actor,
				"action":          t.Action,
			},
		))
	}
}

func (e *engineImpl) CurrentState(ctx context.Context, claimID string) (domainwf.State, error) {
	claim, err := e.loadClaim(ctx, claimID)
	if err != nil {
		return "", err
	}
	return domainwf.ParseState(claim.Status)
}

func (e *engineImpl) PermittedTriggers(ctx context.Context, claimID string) ([]domainwf.Trigger, error) {
	state, err := e.CurrentState(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return domainwf.NewClaimMachine(state).PermittedTriggers(), nil
}

func (e *engineImpl) loadClaim(ctx context.Context, claimID string) (*entity.Claim, error) {
	claim, err := e.claimRepo.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, entity.ErrNotFound)
	}
	return claim, nil
}
