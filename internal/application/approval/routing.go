package approval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/skiprule"
	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// RouteResult describes where routing left a claim
type RouteResult struct {
	ClaimID     string              `json:"claim_id"`
	Decision    entity.SkipDecision `json:"skip_decision"`
	EntryStatus domainwf.State      `json:"entry_status"`
	EntryLevel  string              `json:"entry_level,omitempty"`
	Changed     bool                `json:"changed"`
}

// Route derives the skip decision and moves the claim to its entry status.
// The decision is never cached, so a re-run after a crash re-derives it.
// A claim already sitting in the derived entry status is left untouched.
func (s *Service) Route(ctx context.Context, claimID string) (*RouteResult, error) {
	claim, state, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	q, err := s.buildQuery(ctx, claim)
	if err != nil {
		return nil, err
	}
	decision, err := s.resolver.ResolveSkips(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skip rules: %w", err)
	}

	entryLevel := NextLevel(decision, "")
	entry := EntryState(decision)
	result := &RouteResult{
		ClaimID:     claim.ID,
		Decision:    decision,
		EntryStatus: entry,
		EntryLevel:  entryLevel,
	}

	if state == entry {
		s.logger.Info("Claim already routed",
			zap.String("claim_id", claim.ID),
			zap.String("status", state.String()))
		return result, nil
	}

	var t *workflow.Transition
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.engine.Apply(txCtx, workflow.TransitionRequest{
			ClaimID: claim.ID,
			Trigger: routeTrigger(entryLevel),
			Note:    decision.Reason,
		})
		if err != nil {
			return err
		}

		if entryLevel != "" {
			if _, err := s.createPending(txCtx, claim.ID, entryLevel); err != nil {
				return err
			}
		}

		skipped := decision.SkippedLevels()
		if skipped == nil {
			skipped = []string{}
		}
		return s.claims.SetPayloadKey(txCtx, claim.ID, entity.PayloadKeyApprovalHistory, entity.ApprovalHistory{
			SkipDecision:  decision,
			SkippedLevels: skipped,
			EntryStatus:   entry.String(),
			RoutedAt:      s.now().UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to route claim %s: %w", claim.ID, err)
	}
	s.engine.Publish(ctx, t)
	result.Changed = true

	s.logger.Info("Claim routed for approval",
		zap.String("claim_id", claim.ID),
		zap.String("entry_status", entry.String()),
		zap.Bool("rule_matched", decision.Matched),
		zap.String("rule", decision.RuleName),
		zap.Strings("skipped_levels", decision.SkippedLevels()))

	return result, nil
}

// buildQuery assembles the resolver input from the claim and the employee
// snapshot written by the integration stage, falling back to a live lookup.
func (s *Service) buildQuery(ctx context.Context, claim *entity.Claim) (skiprule.Query, error) {
	q := skiprule.Query{
		TenantID:     claim.TenantID,
		ClaimAmount:  claim.Amount,
		CategoryCode: claim.CategoryCode,
		ProjectCode:  claim.ProjectCode,
	}

	var snapshot entity.IntegrationData
	if ok, err := claim.PayloadValue(entity.PayloadKeyIntegrationData, &snapshot); err == nil && ok && snapshot.Available {
		q.EmployeeEmail = snapshot.Email
		q.EmployeeDesignation = snapshot.Designation
		if q.ProjectCode == "" {
			q.ProjectCode = snapshot.ProjectCode
		}
		return q, nil
	}

	if s.employees == nil {
		return q, nil
	}
	emp, err := s.employees.GetEmployeeContext(ctx, claim.EmployeeID)
	switch {
	case err == nil && emp != nil:
		q.EmployeeEmail = emp.Email
		q.EmployeeDesignation = emp.Designation
		if q.ProjectCode == "" {
			q.ProjectCode = emp.ProjectCode
		}
	case err == nil:
		return q, fmt.Errorf("employee %s: %w", claim.EmployeeID, entity.ErrNotFound)
	case errors.Is(err, entity.ErrExternalProvider):
		s.logger.Warn("Employee directory unavailable, routing on claim data only",
			zap.String("claim_id", claim.ID),
			zap.Error(err))
	default:
		return q, fmt.Errorf("failed to load employee context: %w", err)
	}
	return q, nil
}
