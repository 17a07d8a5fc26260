package approval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/workflow"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/domain/event"
	domainwf "github.com/garyjia/claimflow/internal/domain/workflow"
)

// DecisionRequest is a human decision on one approval level
type DecisionRequest struct {
	ClaimID    string `json:"claim_id"`
	Level      string `json:"level"`
	Decision   string `json:"decision"`
	ApproverID string `json:"approver_id"`
	Remarks    string `json:"remarks"`
}

// DecisionResult is the claim status after a decision committed
type DecisionResult struct {
	ClaimID     string                 `json:"claim_id"`
	Level       string                 `json:"level"`
	Decision    string                 `json:"decision"`
	Status      domainwf.State         `json:"status"`
	NextLevel   string                 `json:"next_level,omitempty"`
	Transitions []*workflow.Transition `json:"-"`
}

func (r *DecisionRequest) validate() error {
	r.Level = strings.ToUpper(strings.TrimSpace(r.Level))
	r.Decision = strings.ToUpper(strings.TrimSpace(r.Decision))

	if !entity.IsValidApprovalLevel(r.Level) {
		return fmt.Errorf("%w: unknown approval level %q", entity.ErrValidationInput, r.Level)
	}
	if r.Decision != entity.ApprovalStatusApproved && r.Decision != entity.ApprovalStatusRejected {
		return fmt.Errorf("%w: decision must be APPROVED or REJECTED, got %q", entity.ErrValidationInput, r.Decision)
	}
	if strings.TrimSpace(r.ApproverID) == "" {
		return fmt.Errorf("%w: approver id is required", entity.ErrValidationInput)
	}
	return nil
}

// Decide records an approver's decision. An approval advances the claim to the
// next level the recorded skip decision does not bypass, or to FINANCE_APPROVED
// when none is left. A rejection ends the claim.
func (s *Service) Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	claim, state, err := s.loadClaim(ctx, req.ClaimID)
	if err != nil {
		return nil, err
	}
	if want := PendingState(req.Level); state != want {
		return nil, fmt.Errorf("%w: claim %s is %s, not %s", domainwf.ErrInvalidTransition, claim.ID, state, want)
	}

	now := s.now().UTC()
	result := &DecisionResult{
		ClaimID:  claim.ID,
		Level:    req.Level,
		Decision: req.Decision,
	}

	// the pending row and the history are read in the transaction so two
	// decisions on the same level cannot both pass the check
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		pending, err := s.approvals.GetPending(txCtx, claim.ID, req.Level)
		if err != nil {
			return fmt.Errorf("failed to load pending approval: %w", err)
		}
		if pending == nil {
			return fmt.Errorf("pending %s approval: %w", req.Level, entity.ErrNotFound)
		}

		current, _, err := s.loadClaim(txCtx, claim.ID)
		if err != nil {
			return err
		}
		history, err := s.loadHistory(current)
		if err != nil {
			return err
		}

		if err := s.approvals.UpdateDecision(txCtx, pending.ID, req.Decision, req.ApproverID, req.Remarks, now); err != nil {
			return err
		}

		note := fmt.Sprintf("%s %s", req.Level, strings.ToLower(req.Decision))
		if req.Remarks != "" {
			note += ": " + req.Remarks
		}

		trigger := domainwf.TriggerApprove
		if req.Decision == entity.ApprovalStatusRejected {
			trigger = domainwf.TriggerReject
		}
		t, err := s.engine.Apply(txCtx, workflow.TransitionRequest{
			ClaimID: claim.ID,
			Trigger: trigger,
			Actor:   req.ApproverID,
			Action:  entity.ActionApprovalDecide,
			Note:    note,
		})
		if err != nil {
			return err
		}
		result.Transitions = append(result.Transitions, t)
		result.Status = t.To

		// FINANCE approval lands on FINANCE_APPROVED directly
		if trigger == domainwf.TriggerApprove && t.To != domainwf.StateFinanceApproved {
			next := NextLevel(history.SkipDecision, req.Level)
			t, err := s.engine.Apply(txCtx, workflow.TransitionRequest{
				ClaimID: claim.ID,
				Trigger: routeTrigger(next),
				Note:    history.SkipDecision.Reason,
			})
			if err != nil {
				return err
			}
			result.Transitions = append(result.Transitions, t)
			result.Status = t.To
			result.NextLevel = next

			if next != "" {
				if _, err := s.createPending(txCtx, claim.ID, next); err != nil {
					return err
				}
			}
		}

		history.Decisions = append(history.Decisions, entity.ApprovalOutcome{
			Level:      req.Level,
			Decision:   req.Decision,
			ApproverID: req.ApproverID,
			Remarks:    req.Remarks,
			DecidedAt:  now,
		})
		if history.SkippedLevels == nil {
			history.SkippedLevels = history.SkipDecision.SkippedLevels()
		}
		return s.claims.SetPayloadKey(txCtx, claim.ID, entity.PayloadKeyApprovalHistory, history)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record %s decision for claim %s: %w", req.Level, claim.ID, err)
	}

	s.engine.Publish(ctx, result.Transitions...)
	s.publish(ctx, event.NewEvent(event.TypeApprovalDecided, claim.TenantID, claim.ID, map[string]interface{}{
		"level":       req.Level,
		"decision":    req.Decision,
		"approver_id": req.ApproverID,
		"status":      result.Status.String(),
	}))

	s.logger.Info("Approval decision recorded",
		zap.String("claim_id", claim.ID),
		zap.String("level", req.Level),
		zap.String("decision", req.Decision),
		zap.String("approver_id", req.ApproverID),
		zap.String("status", result.Status.String()))

	return result, nil
}

// Return sends a pending claim back to the employee for changes
func (s *Service) Return(ctx context.Context, claimID, actor, remarks string) (*workflow.Transition, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", entity.ErrValidationInput)
	}

	claim, state, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	level := LevelOf(state)
	if level == "" {
		return nil, fmt.Errorf("%w: claim %s is %s, not awaiting approval", domainwf.ErrInvalidTransition, claim.ID, state)
	}

	var t *workflow.Transition
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		pending, err := s.approvals.GetPending(txCtx, claim.ID, level)
		if err != nil {
			return fmt.Errorf("failed to load pending approval: %w", err)
		}
		if pending != nil {
			if err := s.approvals.UpdateDecision(txCtx, pending.ID, entity.ApprovalStatusReturned, actor, remarks, s.now().UTC()); err != nil {
				return err
			}
		}

		t, err = s.engine.Apply(txCtx, workflow.TransitionRequest{
			ClaimID: claim.ID,
			Trigger: domainwf.TriggerReturn,
			Actor:   actor,
			Action:  entity.ActionReturned,
			Note:    remarks,
		})
		if err != nil {
			return err
		}
		return s.claims.IncrementReturnCount(txCtx, claim.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to return claim %s: %w", claim.ID, err)
	}

	s.engine.Publish(ctx, t)
	s.publish(ctx, event.NewEvent(event.TypeClaimReturned, claim.TenantID, claim.ID, map[string]interface{}{
		"level":        level,
		"actor":        actor,
		"remarks":      remarks,
		"return_count": claim.ReturnCount + 1,
	}))
	return t, nil
}

// Resubmit moves a returned claim back to SUBMITTED
func (s *Service) Resubmit(ctx context.Context, claimID, actor string) (*workflow.Transition, error) {
	return s.engine.Fire(ctx, workflow.TransitionRequest{
		ClaimID: claimID,
		Trigger: domainwf.TriggerResubmit,
		Actor:   actor,
	})
}

// SettleResult is the outcome of a settlement
type SettleResult struct {
	Transition  *workflow.Transition `json:"-"`
	VoucherPath string               `json:"voucher_path,omitempty"`
}

// Settle pays out a finance-approved claim. When a voucher writer is
// configured the voucher is produced first and a failure leaves the claim
// unsettled.
func (s *Service) Settle(ctx context.Context, claimID, actor string) (*SettleResult, error) {
	claim, state, err := s.loadClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if state != domainwf.StateFinanceApproved {
		return nil, fmt.Errorf("%w: claim %s is %s, not %s", domainwf.ErrInvalidTransition, claim.ID, state, domainwf.StateFinanceApproved)
	}

	result := &SettleResult{}
	if s.vouchers != nil {
		approvals, err := s.approvals.ListByClaim(ctx, claim.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list approvals: %w", err)
		}
		path, err := s.vouchers.WriteSettlementVoucher(ctx, claim, approvals)
		if err != nil {
			return nil, fmt.Errorf("failed to write settlement voucher: %w", err)
		}
		result.VoucherPath = path
	}

	note := "settled"
	if result.VoucherPath != "" {
		note = "settled, voucher " + result.VoucherPath
	}
	t, err := s.engine.Fire(ctx, workflow.TransitionRequest{
		ClaimID: claim.ID,
		Trigger: domainwf.TriggerSettle,
		Actor:   actor,
		Action:  entity.ActionSettled,
		Note:    note,
	})
	if err != nil {
		return nil, err
	}
	result.Transition = t

	s.publish(ctx, event.NewEvent(event.TypeClaimSettled, claim.TenantID, claim.ID, map[string]interface{}{
		"amount":       claim.Amount,
		"currency":     claim.Currency,
		"voucher_path": result.VoucherPath,
	}))
	return result, nil
}

func (s *Service) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}
