// Package porttest provides in-memory port implementations for tests.
package porttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// ClaimStore is an in-memory port.ClaimRepository
type ClaimStore struct {
	mu     sync.Mutex
	claims map[string]*entity.Claim

	// FailPayloadKey makes SetPayloadKey fail for the named key
	FailPayloadKey string
	// FailNextAdvance is returned by the next AdvanceStage call, then cleared
	FailNextAdvance error
}

// NewClaimStore creates an empty claim store
func NewClaimStore() *ClaimStore {
	return &ClaimStore{claims: make(map[string]*entity.Claim)}
}

func (s *ClaimStore) Create(ctx context.Context, claim *entity.Claim) error {
	if err := claim.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.ID]; ok {
		return fmt.Errorf("claim %s already exists", claim.ID)
	}
	c := cloneClaim(claim)
	if c.Payload == nil {
		c.Payload = map[string]json.RawMessage{}
	}
	c.UpdatedAt = time.Now()
	s.claims[claim.ID] = c
	return nil
}

func (s *ClaimStore) GetByID(ctx context.Context, id string) (*entity.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, nil
	}
	return cloneClaim(c), nil
}

func (s *ClaimStore) UpdateStatus(ctx context.Context, id string, status string) error {
	return s.mutate(id, func(c *entity.Claim) error {
		c.Status = status
		return nil
	})
}

func (s *ClaimStore) IncrementReturnCount(ctx context.Context, id string) error {
	return s.mutate(id, func(c *entity.Claim) error {
		c.ReturnCount++
		return nil
	})
}

func (s *ClaimStore) SetPayloadKey(ctx context.Context, id string, key string, value interface{}) error {
	if s.FailPayloadKey != "" && s.FailPayloadKey == key {
		return fmt.Errorf("write of payload key %s failed", key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.mutate(id, func(c *entity.Claim) error {
		c.Payload[key] = data
		return nil
	})
}

func (s *ClaimStore) SetPipeline(ctx context.Context, id string, stages []string) error {
	return s.mutate(id, func(c *entity.Claim) error {
		c.PipelineStages = append([]string(nil), stages...)
		c.CurrentStage = 0
		return nil
	})
}

func (s *ClaimStore) AdvanceStage(ctx context.Context, id string, next int) error {
	s.mu.Lock()
	failed := s.FailNextAdvance
	s.FailNextAdvance = nil
	s.mu.Unlock()
	if failed != nil {
		return failed
	}
	return s.mutate(id, func(c *entity.Claim) error {
		c.CurrentStage = next
		return nil
	})
}

func (s *ClaimStore) ListStale(ctx context.Context, status string, before time.Time, limit int) ([]*entity.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Claim
	for _, c := range s.claims {
		if c.Status == status && c.UpdatedAt.Before(before) {
			out = append(out, cloneClaim(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Touch rewrites a claim's update time
func (s *ClaimStore) Touch(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[id]; ok {
		c.UpdatedAt = at
	}
}

func (s *ClaimStore) mutate(id string, fn func(c *entity.Claim) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: %w", id, entity.ErrNotFound)
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	return nil
}

func cloneClaim(c *entity.Claim) *entity.Claim {
	cp := *c
	cp.PipelineStages = append([]string(nil), c.PipelineStages...)
	if c.Payload != nil {
		cp.Payload = make(map[string]json.RawMessage, len(c.Payload))
		for k, v := range c.Payload {
			cp.Payload[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &cp
}

// ApprovalStore is an in-memory port.ApprovalRepository
type ApprovalStore struct {
	mu        sync.Mutex
	approvals []*entity.Approval
}

// NewApprovalStore creates an empty approval store
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{}
}

func (s *ApprovalStore) Create(ctx context.Context, a *entity.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	s.approvals = append(s.approvals, &cp)
	return nil
}

func (s *ApprovalStore) UpdateDecision(ctx context.Context, id string, status string, approverID string, remarks string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.approvals {
		if a.ID == id && a.Status == entity.ApprovalStatusPending {
			a.Status = status
			a.ApproverID = &approverID
			a.Remarks = remarks
			a.DecidedAt = &decidedAt
			return nil
		}
	}
	return fmt.Errorf("pending approval %s: %w", id, entity.ErrNotFound)
}

func (s *ApprovalStore) GetPending(ctx context.Context, claimID string, level string) (*entity.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.approvals) - 1; i >= 0; i-- {
		a := s.approvals[i]
		if a.ClaimID == claimID && a.Level == level && a.Status == entity.ApprovalStatusPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *ApprovalStore) ListByClaim(ctx context.Context, claimID string) ([]*entity.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Approval
	for _, a := range s.approvals {
		if a.ClaimID == claimID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// HistoryStore is an in-memory port.HistoryRepository
type HistoryStore struct {
	mu      sync.Mutex
	entries []*entity.ClaimHistory

	// CreateErr is returned by Create when set
	CreateErr error
}

// NewHistoryStore creates an empty history store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Create(ctx context.Context, h *entity.ClaimHistory) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = int64(len(s.entries) + 1)
	cp := *h
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *HistoryStore) GetByClaimID(ctx context.Context, claimID string) ([]*entity.ClaimHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ClaimHistory
	for _, h := range s.entries {
		if h.ClaimID == claimID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TxManager runs the function directly; it does not roll back
type TxManager struct {
	mu    sync.Mutex
	Calls int

	// Before runs ahead of every transaction, like a write that commits first
	Before func(ctx context.Context)
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	before := m.Before
	m.mu.Unlock()
	if before != nil {
		before(ctx)
	}
	return fn(ctx)
}

var (
	_ port.ClaimRepository    = (*ClaimStore)(nil)
	_ port.ApprovalRepository = (*ApprovalStore)(nil)
	_ port.HistoryRepository  = (*HistoryStore)(nil)
	_ port.TransactionManager = (*TxManager)(nil)
)
