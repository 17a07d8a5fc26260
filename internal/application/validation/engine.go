package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Confidence values produced by the engine
const (
	AutoApproveConfidence = 0.98
	MaxAIConfidence       = 0.85
	DegradedConfidence    = 0.5
)

// AutoApproveReasoning is recorded when every deterministic check passes
const AutoApproveReasoning = "All deterministic policy checks passed; auto-approved without AI review."

const defaultAITimeout = 30 * time.Second

// Engine is the hybrid validation engine
type Engine struct {
	claims      port.ClaimRepository
	employees   port.EmployeeDirectory
	policies    port.PolicyStore
	reasoner    port.Reasoner
	prompts     *Prompts
	temperature float32
	timeout     time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithPrompts replaces the built-in prompts
func WithPrompts(p *Prompts) Option {
	return func(e *Engine) {
		if p != nil {
			e.prompts = p
		}
	}
}

// WithTemperature fixes the sampling temperature sent to the reasoner
func WithTemperature(t float32) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithTimeout bounds each AI-reasoning call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a validation engine
func NewEngine(
	claims port.ClaimRepository,
	employees port.EmployeeDirectory,
	policies port.PolicyStore,
	reasoner port.Reasoner,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		claims:    claims,
		employees: employees,
		policies:  policies,
		reasoner:  reasoner,
		prompts:   DefaultPrompts(),
		timeout:   defaultAITimeout,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.prompts.temperature != nil {
		e.temperature = *e.prompts.temperature
	}
	return e
}

// Validate evaluates a claim and stores the result under the validation payload key.
// AI provider failures never surface as errors; they degrade the result instead.
func (e *Engine) Validate(ctx context.Context, claimID string) (*entity.ValidationResult, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, entity.ErrNotFound)
	}

	now := e.now()

	facts, err := e.loadFacts(ctx, claim, now)
	if err != nil {
		return nil, err
	}

	rules, err := e.policies.GetPolicy(ctx, claim.TenantID, claim.ClaimType, claim.CategoryCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	limits := EffectiveLimits(claim.CategoryCode, rules)

	evidence := Evaluate(claim, limits, facts, now)

	var result *entity.ValidationResult
	if allPassed(evidence) {
		result = &entity.ValidationResult{
			Confidence:     AutoApproveConfidence,
			Recommendation: entity.RecommendationAutoApprove,
			Reasoning:      AutoApproveReasoning,
			Evidence:       evidence,
			LLMUsed:        false,
			EvaluatedAt:    now,
		}
	} else {
		result = e.reason(ctx, claim, limits, facts, evidence, now)
	}

	if err := e.claims.SetPayloadKey(ctx, claimID, entity.PayloadKeyValidation, result); err != nil {
		return nil, fmt.Errorf("failed to persist validation result: %w", err)
	}

	e.logger.Info("Claim validated",
		zap.String("claim_id", claimID),
		zap.String("recommendation", result.Recommendation),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("llm_used", result.LLMUsed),
		zap.Bool("degraded", result.Degraded))

	return result, nil
}

// loadFacts reads tenure and document count. A directory outage falls back to
// the integration snapshot, and failing that to unknown facts.
func (e *Engine) loadFacts(ctx context.Context, claim *entity.Claim, now time.Time) (Facts, error) {
	emp, err := e.employees.GetEmployeeContext(ctx, claim.EmployeeID)
	if err == nil {
		if emp == nil {
			return Facts{}, fmt.Errorf("employee %s: %w", claim.EmployeeID, entity.ErrNotFound)
		}
		return Facts{
			TenureMonths:  emp.TenureMonths(now),
			DocumentCount: emp.DocumentCount(claim.ID),
			Known:         true,
			Source:        "employee directory",
		}, nil
	}
	if !errors.Is(err, entity.ErrExternalProvider) {
		return Facts{}, fmt.Errorf("failed to load employee context: %w", err)
	}

	e.logger.Warn("Employee directory unavailable, using integration snapshot",
		zap.String("claim_id", claim.ID),
		zap.Error(err))

	var snapshot entity.IntegrationData
	ok, perr := claim.PayloadValue(entity.PayloadKeyIntegrationData, &snapshot)
	if perr == nil && ok && snapshot.Available {
		emp := entity.EmployeeContext{JoinDate: snapshot.JoinDate}
		return Facts{
			TenureMonths:  emp.TenureMonths(now),
			DocumentCount: snapshot.DocumentCount,
			Known:         true,
			Source:        "integration snapshot",
		}, nil
	}
	return Facts{Source: "employee directory unavailable"}, nil
}

type promptData struct {
	Claim         *entity.Claim
	AgeDays       int
	TenureMonths  int
	DocumentCount int
	PolicyText    string
	Evidence      []entity.RuleEvidence
	Failed        []entity.RuleEvidence
}

type aiDecision struct {
	Confidence     *float64 `json:"confidence"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
	Justification  string   `json:"justification"`
}

func (e *Engine) reason(ctx context.Context, claim *entity.Claim, limits Limits, facts Facts, evidence []entity.RuleEvidence, now time.Time) *entity.ValidationResult {
	result := &entity.ValidationResult{
		Evidence:    evidence,
		LLMUsed:     true,
		EvaluatedAt: now,
	}
	failed := result.FailedRules()

	decision, err := e.callReasoner(ctx, promptData{
		Claim:         claim,
		AgeDays:       claim.AgeDays(now),
		TenureMonths:  facts.TenureMonths,
		DocumentCount: facts.DocumentCount,
		PolicyText:    limits.PolicyText,
		Evidence:      evidence,
		Failed:        failed,
	})
	if err != nil {
		e.logger.Warn("AI reasoning failed, degrading to manual review",
			zap.String("claim_id", claim.ID),
			zap.Int("failed_rules", len(failed)),
			zap.Error(err))
		result.Confidence = DegradedConfidence
		result.Recommendation = entity.RecommendationReview
		result.Reasoning = fmt.Sprintf("AI reasoning unavailable (%v); manual review required", err)
		result.Degraded = true
		return result
	}

	confidence := *decision.Confidence
	if confidence > MaxAIConfidence {
		e.logger.Debug("Clamping AI confidence",
			zap.String("claim_id", claim.ID),
			zap.Float64("raw", confidence))
		confidence = MaxAIConfidence
	}

	result.Confidence = confidence
	result.Recommendation = decision.Recommendation
	result.Reasoning = decision.Reasoning
	result.Justification = decision.Justification
	return result
}

func (e *Engine) callReasoner(ctx context.Context, data promptData) (*aiDecision, error) {
	if e.reasoner == nil {
		return nil, fmt.Errorf("%w: no reasoner configured", entity.ErrExternalProvider)
	}

	prompt, err := e.prompts.render(data)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.reasoner.Reason(ctx, prompt, e.prompts.System(), e.temperature)
	if err != nil {
		return nil, fmt.Errorf("reasoner call failed: %w", err)
	}
	return parseDecision(raw)
}

func parseDecision(raw string) (*aiDecision, error) {
	var d aiDecision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		jsonStr := extractJSON(raw)
		if jsonStr == "" {
			return nil, fmt.Errorf("malformed AI response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &d); err != nil {
			return nil, fmt.Errorf("malformed AI response: %w", err)
		}
	}

	d.Recommendation = strings.ToUpper(strings.TrimSpace(d.Recommendation))
	if !entity.IsAIRecommendation(d.Recommendation) {
		return nil, fmt.Errorf("invalid AI recommendation %q", d.Recommendation)
	}
	if d.Confidence == nil {
		return nil, errors.New("AI response is missing confidence")
	}
	if *d.Confidence < 0 || *d.Confidence > 1 {
		return nil, fmt.Errorf("AI confidence %v out of range", *d.Confidence)
	}
	return &d, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of a fenced block or surrounding prose
func extractJSON(content string) string {
	if m := fencedJSON.FindStringSubmatch(content); len(m) == 2 {
		return m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}
