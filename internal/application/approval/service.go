// Package approval drives claims through the MANAGER, HR and FINANCE
// approval chain, honouring the skip decision derived at routing time.
package approval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/dispatcher"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// SkipResolver derives the skip decision for a claim
type SkipResolver interface {
	ResolveSkips(ctx context.Context, q skiprule.Query) (entity.SkipDecision, error)
}

// Service owns approval routing and human decisions
type Service struct {
	claims     port.ClaimRepository
	approvals  port.ApprovalRepository
	employees  port.EmployeeDirectory
	resolver   SkipResolver
	engine     workflow.Engine
	tx         port.TransactionManager
	vouchers   port.VoucherWriter
	dispatcher dispatcher.Publisher
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures the approval service
type Option func(*Service)

// WithVoucherWriter enables settlement vouchers
func WithVoucherWriter(w port.VoucherWriter) Option {
	return func(s *Service) {
		s.vouchers = w
	}
}

// WithDispatcher publishes approval events
func WithDispatcher(d dispatcher.Publisher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an approval service
func NewService(
	claims port.ClaimRepository,
	approvals port.ApprovalRepository,
	employees port.EmployeeDirectory,
	resolver SkipResolver,
	engine workflow.Engine,
	tx port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		claims:    claims,
		approvals: approvals,
		employees: employees,
		resolver:  resolver,
		engine:    engine,
		tx:        tx,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PendingState is the status a claim waits in for the given level
func PendingState(level string) domainwf.State {
	switch level {
	case entity.ApprovalLevelManager:
		return domainwf.StatePendingManager
	case entity.ApprovalLevelHR:
		return domainwf.StatePendingHR
	case entity.ApprovalLevelFinance:
		return domainwf.StatePendingFinance
	}
	return ""
}

// LevelOf is the inverse of PendingState
func LevelOf(state domainwf.State) string {
	switch state {
	case domainwf.StatePendingManager:
		return entity.ApprovalLevelManager
	case domainwf.StatePendingHR:
		return entity.ApprovalLevelHR
	case domainwf.StatePendingFinance:
		return entity.ApprovalLevelFinance
	}
	return ""
}

// NextLevel returns the first level after `after` that the decision does not
// skip. An empty `after` starts at the top of the chain. It returns "" when
// every remaining level is skipped.
func NextLevel(decision entity.SkipDecision, after string) string {
	started := after == ""
	for _, level := range entity.ApprovalChain {
		if !started {
			started = level == after
			continue
		}
		if !decision.Skips(level) {
			return level
		}
	}
	return ""
}

// EntryState is the status a freshly routed claim lands in
func EntryState(decision entity.SkipDecision) domainwf.State {
	if level := NextLevel(decision, ""); level != "" {
		return PendingState(level)
	}
	return domainwf.StateFinanceApproved
}

func routeTrigger(level string) domainwf.Trigger {
	switch level {
	case entity.ApprovalLevelManager:
		return domainwf.TriggerRouteToManager
	case entity.ApprovalLevelHR:
		return domainwf.TriggerRouteToHR
	case entity.ApprovalLevelFinance:
		return domainwf.TriggerRouteToFinance
	}
	return domainwf.TriggerCompleteApprovals
}

func (s *Service) loadClaim(ctx context.Context, claimID string) (*entity.Claim, domainwf.State, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, "", fmt.Errorf("claim %s: %w", claimID, entity.ErrNotFound)
	}
	state, err := domainwf.ParseState(claim.Status)
	if err != nil {
		return nil, "", fmt.Errorf("claim %s has status %q: %w", claim.ID, claim.Status, err)
	}
	return claim, state, nil
}

func (s *Service) loadHistory(claim *entity.Claim) (entity.ApprovalHistory, error) {
	var h entity.ApprovalHistory
	ok, err := claim.PayloadValue(entity.PayloadKeyApprovalHistory, &h)
	if err != nil {
		return h, err
	}
	if !ok {
		h.SkipDecision = entity.StandardFlow()
	}
	return h, nil
}

func (s *Service) createPending(ctx context.Context, claimID, level string) (*entity.Approval, error) {
	a := &entity.Approval{
		ClaimID:   claimID,
		Level:     level,
		Status:    entity.ApprovalStatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.approvals.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create %s approval: %w", level, err)
	}
	return a, nil
}
