package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// Resumer re-enqueues a claim at its durable stage marker
type Resumer interface {
	Resume(ctx context.Context, claim *entity.Claim) error
}

// SweeperConfig holds configuration for the resume sweeper
type SweeperConfig struct {
	Schedule   string        // standard 5-field cron expression
	StaleAfter time.Duration // how long a claim may sit in AI_PROCESSING untouched
	BatchSize  int
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:   "*/5 * * * *",
		StaleAfter: 10 * time.Minute,
		BatchSize:  50,
	}
}

// ResumeSweeper periodically finds claims stuck in AI_PROCESSING, for example
// after a worker crashed between two stages, and resumes their pipelines
type ResumeSweeper struct {
	cfg     SweeperConfig
	claims  port.ClaimRepository
	resumer Resumer
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
	ctx  context.Context
}

// NewResumeSweeper validates the schedule and creates a sweeper
func NewResumeSweeper(cfg SweeperConfig, claims port.ClaimRepository, resumer Resumer, logger *zap.Logger) (*ResumeSweeper, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweeperConfig().BatchSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultSweeperConfig().StaleAfter
	}
	if _, err := cron.ParseStandard(strings.TrimSpace(cfg.Schedule)); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", cfg.Schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResumeSweeper{
		cfg:     cfg,
		claims:  claims,
		resumer: resumer,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Name returns the worker name for identification
func (s *ResumeSweeper) Name() string {
	return "ResumeSweeper"
}

// Start schedules the sweep
func (s *ResumeSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("resume sweeper already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(strings.TrimSpace(s.cfg.Schedule), func() { s.run() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.ctx = ctx
	s.cron = c
	c.Start()

	s.logger.Info("ResumeSweeper scheduled",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("stale_after", s.cfg.StaleAfter))
	return nil
}

// Stop removes the schedule and waits for a running sweep
func (s *ResumeSweeper) Stop() error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

func (s *ResumeSweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("Resume sweep failed", zap.Error(err))
	}
}

// Sweep resumes one batch of stale claims and returns how many were
// re-enqueued. A claim that cannot be resumed is logged and skipped.
func (s *ResumeSweeper) Sweep(ctx context.Context) (int, error) {
	before := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.claims.ListStale(ctx, domainwf.StateAIProcessing.String(), before, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale claims: %w", err)
	}

	resumed := 0
	for _, claim := range stale {
		if err := s.resumer.Resume(ctx, claim); err != nil {
			s.logger.Warn("Failed to resume claim",
				zap.String("claim_id", claim.ID),
				zap.Int("current_stage", claim.CurrentStage),
				zap.Error(err))
			continue
		}
		resumed++
	}

	if len(stale) > 0 {
		s.logger.Info("Resume sweep finished",
			zap.Int("stale", len(stale)),
			zap.Int("resumed", resumed))
	}
	return resumed, nil
}
