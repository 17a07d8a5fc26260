package container

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claimflow/internal/infrastructure/tracing"
	"github.com/garyjia/claimflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/claimflow/internal/interfaces/http"
	"github.com/garyjia/claimflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	conn         *database.DB
	db           port.TransactionManager
	repositories *RepositoryBundle
	reasoner     port.Reasoner
	storage      *StorageBundle
	tracing      *tracing.Provider

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   workflow.Engine
	app        *ApplicationBundle

	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Claims     port.ClaimRepository
	Approvals  port.ApprovalRepository
	History    port.HistoryRepository
	SkipRules  port.SkipRuleRepository
	Employees  *repository.EmployeeDirectory
	Policies   *repository.PolicyStore
	Executions *repository.ExecutionRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing:
// 1. Database and repositories
// 2. Tracing, reasoner and storage
// 3. Dispatcher and workflow engine
// 4. Validation, approval and pipeline services
// 5. Stage workers and the resume sweeper
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initInfrastructure(); err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.logger.Info("Infrastructure initialized",
		zap.String("ai_provider", c.config.AI.Provider),
		zap.Bool("tracing", c.config.Tracing.Enabled))

	d, err := ProvideDispatcher(&c.config.Events, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = d
	c.workflow = ProvideWorkflowEngine(c.repositories, c.db, c.dispatcher, c.logger)
	c.logger.Info("Dispatcher and workflow engine initialized")

	app, err := ProvideApplication(&ApplicationDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.db,
		Reasoner:   c.reasoner,
		Storage:    c.storage,
		Engine:     c.workflow,
		Dispatcher: c.dispatcher,
		Tracing:    c.tracing,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.app = app
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	if c.app != nil && c.app.Queue != nil {
		if err := c.app.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.tracing != nil {
		if err := c.tracing.Shutdown(context.Background()); err != nil {
			c.logger.Error("Failed to flush traces", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.conn == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.conn.Ping(); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	switch {
	case c.workers == nil:
		set("workers", ComponentHealth{Message: "not initialized"})
	case c.workers.Count() == 0:
		set("workers", ComponentHealth{Healthy: true, Message: "synchronous mode"})
	default:
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		})
	}

	if c.app != nil && c.app.Queue != nil {
		set("queue", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("pending: %d, dead letters: %d", c.app.Queue.Size(), c.app.Queue.DLQSize()),
		})
	}

	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	}
	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(dbBundle.TransactionMgr, c.logger)
	if err != nil {
		_ = c.conn.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initInfrastructure() error {
	tp, err := tracing.Init(tracing.Config{
		Enabled:        c.config.Tracing.Enabled,
		ServiceName:    c.config.Tracing.ServiceName,
		ServiceVersion: c.config.Tracing.ServiceVersion,
		OutputFile:     c.config.Tracing.OutputFile,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	c.tracing = tp

	reasoner, err := ProvideReasoner(&c.config.AI, c.logger)
	if err != nil {
		return err
	}
	c.reasoner = reasoner

	storage, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.storage = storage
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.config, c.repositories, c.app, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// HTTPServices returns the collaborators of the HTTP API.
func (c *Container) HTTPServices() httpapi.Services {
	svc := httpapi.Services{
		Claims:    c.repositories.Claims,
		History:   c.repositories.History,
		Approvals: c.repositories.Approvals,
		Pipeline:  c.app.Orchestrator,
		Approval:  c.app.Approval,
		SkipRules: c.app.Resolver,
	}
	// a nil *Runner must not become a non-nil interface
	if c.app.Runner != nil {
		svc.Queue = c.app.Runner
	}
	return svc
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Application returns the pipeline and approval services.
func (c *Container) Application() *ApplicationBundle {
	return c.app
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
