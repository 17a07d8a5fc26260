package container

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/approval"
	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/pipeline"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/validation"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/event"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
	"github.com/garyjia/claimflow/internal/infrastructure/document"
	"github.com/garyjia/claimflow/internal/infrastructure/external/anthropic"
	"github.com/garyjia/claimflow/internal/infrastructure/external/openai"
	"github.com/garyjia/claimflow/internal/infrastructure/messaging/memory"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claimflow/internal/infrastructure/storage"
	"github.com/garyjia/claimflow/internal/infrastructure/tracing"
	"github.com/garyjia/claimflow/internal/infrastructure/voucher"
	"github.com/garyjia/claimflow/internal/infrastructure/worker"
	"github.com/garyjia/claimflow/pkg/database"
	"github.com/garyjia/claimflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	Files     *storage.LocalFileStorage
	Documents port.DocumentProcessor
	Vouchers  port.VoucherWriter
}

// ApplicationBundle holds the pipeline and approval services.
type ApplicationBundle struct {
	Resolver     *skiprule.Resolver
	Validator    *validation.Engine
	Approval     *approval.Service
	Orchestrator *pipeline.Orchestrator
	Runner       *pipeline.Runner
	Queue        *memory.Queue[port.StageJob]
}

// ProvideDatabase opens the database and runs the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != database.MemoryPath && dir != "." {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).Run(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Claims:     repository.NewClaimRepository(db, logger),
		Approvals:  repository.NewApprovalRepository(db, logger),
		History:    repository.NewHistoryRepository(db, logger),
		SkipRules:  repository.NewSkipRuleRepository(db, logger),
		Employees:  repository.NewEmployeeDirectory(db, logger),
		Policies:   repository.NewPolicyStore(db, logger),
		Executions: repository.NewExecutionRepository(db, logger),
	}, nil
}

// ProvideReasoner creates the AI reasoning client for the configured provider.
func ProvideReasoner(cfg *AIConfig, logger *zap.Logger) (port.Reasoner, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewReasoner(openai.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		}, logger), nil
	case "anthropic":
		return anthropic.NewReasoner(anthropic.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
}

// ProvideStorage creates file storage with the document processor and
// voucher writer that sit on it.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if err := ensureDir(cfg.BaseDir); err != nil {
		return nil, err
	}

	files := storage.NewLocalFileStorage(cfg.BaseDir, logger)
	return &StorageBundle{
		Files:     files,
		Documents: document.NewPDFProcessor(files, logger),
		Vouchers: voucher.NewExcelWriter(files, voucher.Config{
			Company: cfg.CompanyName,
			Dir:     cfg.VoucherDir,
		}, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher with the audit log and the
// rejection alert subscribed. AuditTenant narrows the audit log to a single
// tenant.
func ProvideDispatcher(cfg *EventsConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}))

	audit := logger.Named("events")
	auditOpts := []dispatcher.SubscribeOption{dispatcher.Describe("structured log line per claim event")}
	if cfg != nil && cfg.AuditTenant != "" {
		auditOpts = append(auditOpts, dispatcher.ForTenant(cfg.AuditTenant))
	}
	err := d.Subscribe("audit-log", func(ctx context.Context, evt *event.Event) error {
		audit.Info("Claim event",
			zap.String("type", evt.Type.String()),
			utils.TenantField(evt.TenantID),
			utils.ClaimField(evt.ClaimID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload))
		return nil
	}, auditOpts...)
	if err != nil {
		return nil, err
	}

	err = d.Subscribe("rejection-alert", func(ctx context.Context, evt *event.Event) error {
		utils.ClaimLogger(audit, evt.TenantID, evt.ClaimID).Warn("Claim rejected",
			zap.String("previous_status", evt.GetPayloadString("previous_status")),
			zap.String("trigger", evt.GetPayloadString("trigger")),
			zap.String("actor", evt.GetPayloadString("actor")))
		return nil
	},
		dispatcher.OnTypes(event.TypeStatusChanged),
		dispatcher.When(dispatcher.StatusBecomes(domainwf.StateRejected.String())),
		dispatcher.Describe("warn when a claim ends rejected"),
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ProvideWorkflowEngine creates the claim state machine engine.
func ProvideWorkflowEngine(repos *RepositoryBundle, tx port.TransactionManager, d dispatcher.Dispatcher, logger *zap.Logger) workflow.Engine {
	return workflow.NewEngine(repos.Claims, repos.History, tx,
		workflow.WithDispatcher(d),
		workflow.WithLogger(logger),
	)
}

// ApplicationDeps groups the inputs of ProvideApplication.
type ApplicationDeps struct {
	Config     *Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Reasoner   port.Reasoner
	Storage    *StorageBundle
	Engine     workflow.Engine
	Dispatcher dispatcher.Dispatcher
	Tracing    *tracing.Provider
	Logger     *zap.Logger
}

// ProvideApplication wires validation, approval routing and the stage pipeline.
func ProvideApplication(deps *ApplicationDeps) (*ApplicationBundle, error) {
	cfg := deps.Config
	repos := deps.Repos

	prompts := validation.DefaultPrompts()
	if cfg.AI.PromptsFile != "" {
		p, err := validation.LoadPrompts(cfg.AI.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
		prompts = p
	}

	resolver := skiprule.NewResolver(repos.SkipRules, deps.Logger)

	validator := validation.NewEngine(repos.Claims, repos.Employees, repos.Policies, deps.Reasoner, deps.Logger,
		validation.WithPrompts(prompts),
		validation.WithTemperature(cfg.AI.Temperature),
		validation.WithTimeout(cfg.AI.Timeout),
	)

	approvals := approval.NewService(repos.Claims, repos.Approvals, repos.Employees, resolver, deps.Engine, deps.TxManager, deps.Logger,
		approval.WithVoucherWriter(deps.Storage.Vouchers),
		approval.WithDispatcher(deps.Dispatcher),
	)

	stages := []pipeline.Stage{
		pipeline.NewDocumentStage(repos.Claims, repos.Employees, deps.Storage.Documents, deps.Logger),
		pipeline.NewIntegrationStage(repos.Claims, repos.Employees, deps.Logger),
		pipeline.NewValidationStage(validator),
		pipeline.NewRoutingStage(approvals),
	}

	opts := []pipeline.Option{
		pipeline.WithExecutionSink(repos.Executions),
		pipeline.WithDispatcher(deps.Dispatcher),
		pipeline.WithStageVersion(cfg.Pipeline.StageVersion),
	}
	if deps.Tracing != nil {
		opts = append(opts, pipeline.WithTracer(deps.Tracing.Tracer("claimflow/pipeline")))
	}
	orch := pipeline.NewOrchestrator(repos.Claims, deps.Engine, deps.TxManager, stages, deps.Logger, opts...)

	bundle := &ApplicationBundle{
		Resolver:     resolver,
		Validator:    validator,
		Approval:     approvals,
		Orchestrator: orch,
	}

	if cfg.Pipeline.Async {
		qcfg := memory.DefaultConfig()
		qcfg.MaxRetries = cfg.Pipeline.MaxRetries
		qcfg.RetryDelay = cfg.Pipeline.RetryDelay
		if cfg.Pipeline.QueueBuffer > 0 {
			qcfg.QueueBuffer = cfg.Pipeline.QueueBuffer
		}
		bundle.Queue = memory.NewQueue[port.StageJob](qcfg)
		bundle.Runner = pipeline.NewRunner(orch, bundle.Queue, deps.Logger)
	}
	return bundle, nil
}

// ProvideWorkers registers the stage workers and the resume sweeper.
func ProvideWorkers(cfg *Config, repos *RepositoryBundle, app *ApplicationBundle, logger *zap.Logger) (*worker.Manager, error) {
	manager := worker.NewManager(logger)
	if app.Runner == nil {
		return manager, nil
	}

	manager.Register(worker.NewStageWorker(app.Queue, app.Runner, cfg.Pipeline.Workers, logger))

	if cfg.Sweeper.Enabled {
		sweeper, err := worker.NewResumeSweeper(worker.SweeperConfig{
			Schedule:   cfg.Sweeper.Schedule,
			StaleAfter: cfg.Sweeper.StaleAfter,
			BatchSize:  cfg.Sweeper.BatchSize,
		}, repos.Claims, app.Runner, logger)
		if err != nil {
			return nil, err
		}
		manager.Register(sweeper)
	}
	return manager, nil
}
