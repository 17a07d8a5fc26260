package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claimflow/internal/application/port/porttest"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

type mockResumer struct {
	resumed  []string
	resumeFn func(claim *entity.Claim) error
}

func (m *mockResumer) Resume(ctx context.Context, claim *entity.Claim) error {
	if m.resumeFn != nil {
		if err := m.resumeFn(claim); err != nil {
			return err
		}
	}
	m.resumed = append(m.resumed, claim.ID)
	return nil
}

func seedClaims(t *testing.T, now time.Time) *porttest.ClaimStore {
	t.Helper()
	store := porttest.NewClaimStore()
	seed := []struct {
		id     string
		status string
		age    time.Duration
	}{
		{"stale-1", "AI_PROCESSING", time.Hour},
		{"stale-2", "AI_PROCESSING", 30 * time.Minute},
		{"fresh", "AI_PROCESSING", time.Minute},
		{"pending", "PENDING_MANAGER", time.Hour},
	}
	for _, s := range seed {
		require.NoError(t, store.Create(context.Background(), &entity.Claim{
			TenantID: "acme", ID: s.id, ClaimType: entity.ClaimTypeAllowance, Amount: 100, Status: s.status,
		}))
		store.Touch(s.id, now.Add(-s.age))
	}
	return store
}

func TestResumeSweeper_Sweep(t *testing.T) {
	now := time.Now()
	store := seedClaims(t, now)
	resumer := &mockResumer{resumeFn: func(claim *entity.Claim) error {
		if claim.ID == "stale-2" {
			return errors.New("queue full")
		}
		return nil
	}}

	s, err := NewResumeSweeper(SweeperConfig{Schedule: "* * * * *", StaleAfter: 10 * time.Minute}, store, resumer, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"stale-1"}, resumer.resumed)
}

func TestResumeSweeper_BatchSize(t *testing.T) {
	now := time.Now()
	store := seedClaims(t, now)
	resumer := &mockResumer{}

	s, err := NewResumeSweeper(SweeperConfig{Schedule: "@every 1m", StaleAfter: 10 * time.Minute, BatchSize: 1}, store, resumer, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"stale-1"}, resumer.resumed)
}

func TestNewResumeSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewResumeSweeper(SweeperConfig{Schedule: "every now and then"}, porttest.NewClaimStore(), &mockResumer{}, nil)
	assert.Error(t, err)
}

func TestResumeSweeper_StartStop(t *testing.T) {
	s, err := NewResumeSweeper(DefaultSweeperConfig(), porttest.NewClaimStore(), &mockResumer{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
