package skiprule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

type mockRuleRepo struct {
	rules    []*entity.ApprovalSkipRule
	listErr  error
	created  []*entity.ApprovalSkipRule
	listCall int
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.ApprovalSkipRule) error {
	m.created = append(m.created, rule)
	return nil
}

func (m *mockRuleRepo) ListActive(ctx context.Context, tenantID string) ([]*entity.ApprovalSkipRule, error) {
	m.listCall++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.ApprovalSkipRule
	for _, r := range m.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func ptr(f float64) *float64 { return &f }

func newResolver(rules ...*entity.ApprovalSkipRule) (*Resolver, *mockRuleRepo) {
	repo := &mockRuleRepo{rules: rules}
	return NewResolver(repo, zap.NewNop()), repo
}

func vpQuery() Query {
	return Query{
		TenantID:            "acme",
		EmployeeEmail:       "X@Y.com",
		EmployeeDesignation: "vp",
		ClaimAmount:         1200,
		CategoryCode:        "travel",
		ProjectCode:         "apollo",
	}
}

func TestResolveSkips_LowerPriorityNumberWins(t *testing.T) {
	ruleB := &entity.ApprovalSkipRule{ID: "b", TenantID: "acme", Name: "email-all", MatchType: entity.MatchTypeEmail,
		Emails: []string{"x@y.com"}, SkipManager: true, SkipHR: true, SkipFinance: true, Priority: 2, Active: true}
	ruleA := &entity.ApprovalSkipRule{ID: "a", TenantID: "acme", Name: "vp-fast", MatchType: entity.MatchTypeDesignation,
		Designations: []string{"VP"}, SkipManager: true, SkipHR: true, Priority: 1, Active: true}

	// storage order puts the weaker rule first
	r, _ := newResolver(ruleB, ruleA)

	d, err := r.ResolveSkips(context.Background(), vpQuery())
	require.NoError(t, err)
	assert.True(t, d.Matched)
	assert.Equal(t, "a", d.RuleID)
	assert.Equal(t, "vp-fast", d.RuleName)
	assert.True(t, d.SkipManager)
	assert.True(t, d.SkipHR)
	assert.False(t, d.SkipFinance)
	assert.Contains(t, d.Reason, "designation VP")
}

func TestResolveSkips_TieBreakByName(t *testing.T) {
	zeta := &entity.ApprovalSkipRule{ID: "1", TenantID: "acme", Name: "zeta", MatchType: entity.MatchTypeProject,
		ProjectCodes: []string{"APOLLO"}, SkipFinance: true, Priority: 3, Active: true}
	alpha := &entity.ApprovalSkipRule{ID: "2", TenantID: "acme", Name: "alpha", MatchType: entity.MatchTypeProject,
		ProjectCodes: []string{"APOLLO"}, SkipHR: true, Priority: 3, Active: true}

	r, _ := newResolver(zeta, alpha)
	d, err := r.ResolveSkips(context.Background(), vpQuery())
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.RuleName)
	assert.True(t, d.SkipHR)
	assert.False(t, d.SkipFinance)
}

func TestResolveSkips_AmountCeilingFallsThrough(t *testing.T) {
	capped := &entity.ApprovalSkipRule{ID: "1", TenantID: "acme", Name: "directors-small", MatchType: entity.MatchTypeDesignation,
		Designations: []string{"DIRECTOR"}, MaxAmountThreshold: ptr(5000), SkipManager: true, SkipHR: true, Priority: 1, Active: true}
	fallback := &entity.ApprovalSkipRule{ID: "2", TenantID: "acme", Name: "directors-any", MatchType: entity.MatchTypeDesignation,
		Designations: []string{"DIRECTOR"}, SkipManager: true, Priority: 5, Active: true}

	q := vpQuery()
	q.EmployeeDesignation = "Director"
	q.ClaimAmount = 8000

	t.Run("next rule applies", func(t *testing.T) {
		r, _ := newResolver(capped, fallback)
		d, err := r.ResolveSkips(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, "directors-any", d.RuleName)
		assert.False(t, d.SkipHR)
	})

	t.Run("no other rule gives standard flow", func(t *testing.T) {
		r, _ := newResolver(capped)
		d, err := r.ResolveSkips(context.Background(), q)
		require.NoError(t, err)
		assert.False(t, d.Matched)
		assert.Equal(t, entity.StandardFlowReason, d.Reason)
		assert.Empty(t, d.SkippedLevels())
	})

	t.Run("amount at ceiling applies", func(t *testing.T) {
		r, _ := newResolver(capped)
		q2 := q
		q2.ClaimAmount = 5000
		d, err := r.ResolveSkips(context.Background(), q2)
		require.NoError(t, err)
		assert.Equal(t, "directors-small", d.RuleName)
	})
}

func TestResolveSkips_CategoryGuard(t *testing.T) {
	travelOnly := &entity.ApprovalSkipRule{ID: "1", TenantID: "acme", Name: "travel", MatchType: entity.MatchTypeEmail,
		Emails: []string{"x@y.com"}, AllowedCategories: []string{"TRAVEL"}, SkipManager: true, Priority: 1, Active: true}
	r, _ := newResolver(travelOnly)

	d, err := r.ResolveSkips(context.Background(), vpQuery())
	require.NoError(t, err)
	assert.True(t, d.Matched)

	q := vpQuery()
	q.CategoryCode = "MEAL"
	d, err = r.ResolveSkips(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, d.Matched)
}

func TestResolveSkips_MatchTypeSelectsValueSet(t *testing.T) {
	// an email rule must ignore its designation set
	rule := &entity.ApprovalSkipRule{ID: "1", TenantID: "acme", Name: "mixed", MatchType: entity.MatchTypeEmail,
		Emails: []string{"other@y.com"}, Designations: []string{"VP"}, SkipManager: true, Priority: 1, Active: true}
	r, _ := newResolver(rule)

	d, err := r.ResolveSkips(context.Background(), vpQuery())
	require.NoError(t, err)
	assert.False(t, d.Matched)
}

func TestResolveSkips_IgnoresInactiveAndEmptyInputs(t *testing.T) {
	inactive := &entity.ApprovalSkipRule{ID: "1", TenantID: "acme", Name: "off", MatchType: entity.MatchTypeDesignation,
		Designations: []string{"VP"}, SkipManager: true, Priority: 0, Active: false}
	emptyProject := &entity.ApprovalSkipRule{ID: "2", TenantID: "acme", Name: "blank", MatchType: entity.MatchTypeProject,
		ProjectCodes: []string{""}, SkipManager: true, Priority: 1, Active: true}
	r, _ := newResolver(inactive, emptyProject)

	q := vpQuery()
	q.ProjectCode = ""
	d, err := r.ResolveSkips(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, d.Matched)
}

func TestResolveSkips_Deterministic(t *testing.T) {
	rules := []*entity.ApprovalSkipRule{
		{ID: "1", TenantID: "acme", Name: "b", MatchType: entity.MatchTypeProject, ProjectCodes: []string{"APOLLO"}, SkipHR: true, Priority: 2, Active: true},
		{ID: "2", TenantID: "acme", Name: "a", MatchType: entity.MatchTypeProject, ProjectCodes: []string{"APOLLO"}, SkipFinance: true, Priority: 2, Active: true},
		{ID: "3", TenantID: "acme", Name: "c", MatchType: entity.MatchTypeEmail, Emails: []string{"x@y.com"}, SkipManager: true, Priority: 2, Active: true},
	}
	r, _ := newResolver(rules...)

	first, err := r.ResolveSkips(context.Background(), vpQuery())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		d, err := r.ResolveSkips(context.Background(), vpQuery())
		require.NoError(t, err)
		assert.Equal(t, first, d)
	}
	assert.Equal(t, "a", first.RuleName)
}

func TestResolveSkips_RepositoryError(t *testing.T) {
	r, repo := newResolver()
	repo.listErr = errors.New("db down")

	_, err := r.ResolveSkips(context.Background(), vpQuery())
	assert.Error(t, err)
}

func TestOrder(t *testing.T) {
	rules := []*entity.ApprovalSkipRule{
		{Name: "c", Priority: 5, Active: true},
		{Name: "b", Priority: 1, Active: true},
		{Name: "a", Priority: 5, Active: true},
		{Name: "x", Priority: 0, Active: false},
		nil,
	}
	ordered := Order(rules)
	require.Len(t, ordered, 3)
	assert.Equal(t, "b", ordered[0].Name)
	assert.Equal(t, "a", ordered[1].Name)
	assert.Equal(t, "c", ordered[2].Name)
}

func TestCreateRule_Normalizes(t *testing.T) {
	r, repo := newResolver()
	rule := &entity.ApprovalSkipRule{
		TenantID: "acme", Name: "execs", MatchType: " Email ",
		Emails: []string{" CEO@Acme.io ", ""}, AllowedCategories: []string{"travel"},
		SkipManager: true, Active: true,
	}

	require.NoError(t, r.CreateRule(context.Background(), rule))
	require.Len(t, repo.created, 1)
	assert.Equal(t, entity.MatchTypeEmail, rule.MatchType)
	assert.Equal(t, []string{"ceo@acme.io"}, rule.Emails)
	assert.Equal(t, []string{"TRAVEL"}, rule.AllowedCategories)
}

func TestCreateRule_Validation(t *testing.T) {
	tests := []struct {
		name string
		rule entity.ApprovalSkipRule
	}{
		{"missing name", entity.ApprovalSkipRule{TenantID: "acme", MatchType: "email", SkipHR: true}},
		{"bad match type", entity.ApprovalSkipRule{TenantID: "acme", Name: "x", MatchType: "team", SkipHR: true}},
		{"non-positive ceiling", entity.ApprovalSkipRule{TenantID: "acme", Name: "x", MatchType: "email", SkipHR: true, MaxAmountThreshold: ptr(0)}},
		{"skips nothing", entity.ApprovalSkipRule{TenantID: "acme", Name: "x", MatchType: "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, repo := newResolver()
			rule := tt.rule
			err := r.CreateRule(context.Background(), &rule)
			assert.ErrorIs(t, err, entity.ErrValidationInput)
			assert.Empty(t, repo.created)
		})
	}
}
