package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/claimflow/internal/application/pipeline"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
	"github.com/garyjia/claimflow/pkg/database"
)

func testConfig(t *testing.T, async bool) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = database.MemoryPath
	cfg.AI.APIKey = "sk-test"
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Storage.CompanyName = "Acme"
	cfg.Pipeline.Async = async
	cfg.Pipeline.Workers = 2
	return cfg
}

func startContainer(t *testing.T, cfg *Config) *Container {
	t.Helper()
	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t, false)
	_, err = NewContainer(cfg, nil)
	assert.Error(t, err)

	cfg.AI.Provider = "gemini"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "gemini")
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t, testConfig(t, true))
	assert.True(t, c.Ready())
	assert.ErrorContains(t, c.Start(context.Background()), "already started")

	health := c.Health()
	assert.True(t, health.Overall, health.Components)
	assert.Contains(t, health.Components, "queue")
	assert.Equal(t, 2, c.workers.Count())

	svc := c.HTTPServices()
	assert.NotNil(t, svc.Queue)
	assert.NotNil(t, svc.Pipeline)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_SyncModeHasNoQueue(t *testing.T) {
	c := startContainer(t, testConfig(t, false))
	defer c.Close()

	assert.Nil(t, c.HTTPServices().Queue)
	assert.Zero(t, c.workers.Count())
	assert.True(t, c.Health().Overall)
}

func TestContainer_RunsPipelineOnSQLite(t *testing.T) {
	c := startContainer(t, testConfig(t, false))
	defer c.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	repos := c.Repositories()
	require.NoError(t, repos.Employees.SaveEmployee(ctx, &entity.EmployeeContext{
		EmployeeID:  "emp-1",
		TenantID:    "acme",
		Email:       "lead@acme.io",
		Designation: "LEAD",
		JoinDate:    now.AddDate(-2, 0, 0),
		Documents:   []entity.Document{{ID: "d-1", ClaimID: "c-1", FileName: "ticket.pdf", FilePath: "ticket.pdf"}},
	}))
	require.NoError(t, repos.Claims.Create(ctx, &entity.Claim{
		TenantID:     "acme",
		ID:           "c-1",
		EmployeeID:   "emp-1",
		ClaimType:    entity.ClaimTypeReimbursement,
		CategoryCode: "TRAVEL",
		Amount:       1500,
		Currency:     "INR",
		ClaimDate:    now.AddDate(0, 0, -2),
		Status:       "SUBMITTED",
	}))

	_, err := c.Application().Orchestrator.RunPipeline(ctx, pipeline.PipelineRequest{
		ClaimID:   "c-1",
		ClaimType: entity.ClaimTypeReimbursement,
	})
	require.NoError(t, err)

	claim, err := repos.Claims.GetByID(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "PENDING_MANAGER", claim.Status)

	execs, err := repos.Executions.ListByClaim(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, execs, 3)

	approvals, err := repos.Approvals.ListByClaim(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, entity.ApprovalLevelManager, approvals[0].Level)
}

func TestProvideDispatcher_AuditAndRejectionAlert(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d, err := ProvideDispatcher(&EventsConfig{AuditTenant: "acme"}, zap.New(core))
	require.NoError(t, err)
	defer d.Close()

	require.Len(t, d.Subscriptions(event.TypeStatusChanged), 2)
	require.Len(t, d.Subscriptions(event.TypeClaimSettled), 1)
	logs.TakeAll()

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeStatusChanged, "acme", "c-1",
		map[string]interface{}{"previous_status": "PENDING_HR", "new_status": "REJECTED", "actor": "hr-1"})))
	require.NoError(t, d.Dispatch(ctx, event.NewEvent(event.TypeClaimSettled, "globex", "c-2", nil)))

	audit := logs.FilterMessage("Claim event").All()
	require.Len(t, audit, 1)
	assert.Equal(t, "c-1", audit[0].ContextMap()["claim_id"])

	alerts := logs.FilterMessage("Claim rejected").All()
	require.Len(t, alerts, 1)
	assert.Equal(t, zapcore.WarnLevel, alerts[0].Level)
	assert.Equal(t, "acme", alerts[0].ContextMap()["tenant_id"])
	assert.Equal(t, "hr-1", alerts[0].ContextMap()["actor"])
}
