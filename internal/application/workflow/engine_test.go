package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claimflow/internal/application/port/porttest"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

type fixture struct {
	claims  *porttest.ClaimStore
	history *porttest.HistoryStore
	tx      *porttest.TxManager
	events  *porttest.Events
	engine  Engine
}

func newFixture(t *testing.T, status domainwf.State) *fixture {
	t.Helper()
	f := &fixture{
		claims:  porttest.NewClaimStore(),
		history: porttest.NewHistoryStore(),
		tx:      &porttest.TxManager{},
		events:  &porttest.Events{},
	}
	fixed := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	f.engine = NewEngine(f.claims, f.history, f.tx,
		WithDispatcher(f.events),
		WithClock(func() time.Time { return fixed }),
	)

	require.NoError(t, f.claims.Create(context.Background(), &entity.Claim{
		TenantID: "acme", ID: "c-1", EmployeeID: "e-1",
		ClaimType: entity.ClaimTypeAllowance, CategoryCode: "MEAL",
		Amount: 50, Status: status.String(),
	}))
	return f
}

func TestEngine_Fire(t *testing.T) {
	f := newFixture(t, domainwf.StateSubmitted)
	ctx := context.Background()

	tr, err := f.engine.Fire(ctx, TransitionRequest{ClaimID: "c-1", Trigger: domainwf.TriggerStartProcessing})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSubmitted, tr.From)
	assert.Equal(t, domainwf.StateAIProcessing, tr.To)
	assert.Equal(t, entity.SystemActor, tr.Actor)
	assert.Equal(t, 1, f.tx.Calls)

	claim, _ := f.claims.GetByID(ctx, "c-1")
	assert.Equal(t, "AI_PROCESSING", claim.Status)

	trail, _ := f.history.GetByClaimID(ctx, "c-1")
	require.Len(t, trail, 1)
	assert.Equal(t, "SUBMITTED", trail[0].PreviousStatus)
	assert.Equal(t, "AI_PROCESSING", trail[0].NewStatus)
	assert.Equal(t, entity.ActionTransition, trail[0].Action)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), trail[0].Timestamp)

	events := f.events.OfType(event.TypeStatusChanged)
	require.Len(t, events, 1)
	assert.Equal(t, "acme", events[0].TenantID)
	assert.Equal(t, "AI_PROCESSING", events[0].GetPayloadString("new_status"))
}

func TestEngine_Fire_IllegalTransition(t *testing.T) {
	f := newFixture(t, domainwf.StateSettled)

	_, err := f.engine.Fire(context.Background(), TransitionRequest{ClaimID: "c-1", Trigger: domainwf.TriggerReject})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	claim, _ := f.claims.GetByID(context.Background(), "c-1")
	assert.Equal(t, "SETTLED", claim.Status)
	assert.Empty(t, f.events.Events)
}

func TestEngine_Fire_MissingClaim(t *testing.T) {
	f := newFixture(t, domainwf.StateSubmitted)

	_, err := f.engine.Fire(context.Background(), TransitionRequest{ClaimID: "ghost", Trigger: domainwf.TriggerSubmit})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestEngine_Fire_HistoryFailureSurfaces(t *testing.T) {
	f := newFixture(t, domainwf.StateSubmitted)
	f.history.CreateErr = errors.New("disk full")

	_, err := f.engine.Fire(context.Background(), TransitionRequest{ClaimID: "c-1", Trigger: domainwf.TriggerStartProcessing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
	assert.Empty(t, f.events.Events)
}

func TestEngine_Apply_DoesNotPublish(t *testing.T) {
	f := newFixture(t, domainwf.StatePendingManager)

	tr, err := f.engine.Apply(context.Background(), TransitionRequest{
		ClaimID: "c-1", Trigger: domainwf.TriggerApprove,
		Actor: "mgr-1", Action: entity.ActionApprovalDecide, Note: "looks fine",
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateManagerApproved, tr.To)
	assert.Empty(t, f.events.Events)
	assert.Equal(t, 0, f.tx.Calls)

	trail, _ := f.history.GetByClaimID(context.Background(), "c-1")
	require.Len(t, trail, 1)
	assert.Equal(t, "mgr-1", trail[0].Actor)
	assert.Equal(t, "looks fine", trail[0].Note)

	f.engine.Publish(context.Background(), tr, nil)
	assert.Len(t, f.events.OfType(event.TypeStatusChanged), 1)
}

func TestEngine_ReentrantProcessing(t *testing.T) {
	f := newFixture(t, domainwf.StateAIProcessing)

	tr, err := f.engine.Fire(context.Background(), TransitionRequest{ClaimID: "c-1", Trigger: domainwf.TriggerStartProcessing})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateAIProcessing, tr.From)
	assert.Equal(t, domainwf.StateAIProcessing, tr.To)
}

func TestEngine_CurrentStateAndTriggers(t *testing.T) {
	f := newFixture(t, domainwf.StateFinanceApproved)
	ctx := context.Background()

	st, err := f.engine.CurrentState(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateFinanceApproved, st)

	triggers, err := f.engine.PermittedTriggers(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerSettle}, triggers)

	require.NoError(t, f.claims.UpdateStatus(ctx, "c-1", "LIMBO"))
	_, err = f.engine.CurrentState(ctx, "c-1")
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)
}
