package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/approval"
	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Validator runs the validation engine for a claim
type Validator interface {
	Validate(ctx context.Context, claimID string) (*entity.ValidationResult, error)
}

// Router routes a validated claim into the approval chain
type Router interface {
	Route(ctx context.Context, claimID string) (*approval.RouteResult, error)
}

func loadClaim(ctx context.Context, claims port.ClaimRepository, claimID string) (*entity.Claim, error) {
	claim, err := claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, entity.ErrNotFound)
	}
	return claim, nil
}

// DocumentStage inspects the documents attached to the claim
type DocumentStage struct {
	claims    port.ClaimRepository
	employees port.EmployeeDirectory
	processor port.DocumentProcessor
	logger    *zap.Logger
}

// NewDocumentStage creates the document processing stage. A nil processor
// only counts the attached documents.
func NewDocumentStage(claims port.ClaimRepository, employees port.EmployeeDirectory, processor port.DocumentProcessor, logger *zap.Logger) *DocumentStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStage{claims: claims, employees: employees, processor: processor, logger: logger}
}

func (s *DocumentStage) Name() string { return StageDocumentProcessing }

func (s *DocumentStage) Run(ctx context.Context, claimID string) (interface{}, error) {
	claim, err := loadClaim(ctx, s.claims, claimID)
	if err != nil {
		return nil, err
	}

	summary := &port.DocumentSummary{Processed: []port.DocumentInfo{}}
	emp, err := s.employees.GetEmployeeContext(ctx, claim.EmployeeID)
	switch {
	case errors.Is(err, entity.ErrExternalProvider):
		s.logger.Warn("Document lookup unavailable", zap.String("claim_id", claimID), zap.Error(err))
		summary.Error = err.Error()
	case err != nil:
		return nil, err
	case emp == nil:
		return nil, fmt.Errorf("employee %s: %w", claim.EmployeeID, entity.ErrNotFound)
	default:
		var docs []entity.Document
		for _, d := range emp.Documents {
			if d.ClaimID == claim.ID {
				docs = append(docs, d)
			}
		}
		if s.processor == nil {
			summary.Documents = len(docs)
			break
		}
		summary, err = s.processor.Process(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("failed to process documents: %w", err)
		}
	}

	if err := s.claims.SetPayloadKey(ctx, claimID, entity.PayloadKeyDocuments, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// IntegrationStage snapshots the employee context onto the claim
type IntegrationStage struct {
	claims    port.ClaimRepository
	employees port.EmployeeDirectory
	now       func() time.Time
	logger    *zap.Logger
}

// NewIntegrationStage creates the integration stage
func NewIntegrationStage(claims port.ClaimRepository, employees port.EmployeeDirectory, logger *zap.Logger) *IntegrationStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationStage{claims: claims, employees: employees, now: time.Now, logger: logger}
}

func (s *IntegrationStage) Name() string { return StageIntegration }

// Run records integration_data. An unreachable directory is recorded as
// unavailable data rather than failing the pipeline; an unknown employee is fatal.
func (s *IntegrationStage) Run(ctx context.Context, claimID string) (interface{}, error) {
	claim, err := loadClaim(ctx, s.claims, claimID)
	if err != nil {
		return nil, err
	}

	data := &entity.IntegrationData{FetchedAt: s.now().UTC()}
	emp, err := s.employees.GetEmployeeContext(ctx, claim.EmployeeID)
	switch {
	case errors.Is(err, entity.ErrExternalProvider):
		s.logger.Warn("Employee directory unavailable", zap.String("claim_id", claimID), zap.Error(err))
		data.Error = err.Error()
	case err != nil:
		return nil, err
	case emp == nil:
		return nil, fmt.Errorf("employee %s: %w", claim.EmployeeID, entity.ErrNotFound)
	default:
		data.Available = true
		data.Email = emp.Email
		data.Designation = emp.Designation
		data.ProjectCode = emp.ProjectCode
		data.JoinDate = emp.JoinDate
		data.DocumentCount = emp.DocumentCount(claim.ID)
	}

	if err := s.claims.SetPayloadKey(ctx, claimID, entity.PayloadKeyIntegrationData, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidationStage runs the validation engine
type ValidationStage struct {
	validator Validator
}

// NewValidationStage creates the validation stage
func NewValidationStage(v Validator) *ValidationStage {
	return &ValidationStage{validator: v}
}

func (s *ValidationStage) Name() string { return StageValidation }

func (s *ValidationStage) Run(ctx context.Context, claimID string) (interface{}, error) {
	return s.validator.Validate(ctx, claimID)
}

// RoutingStage routes the claim into the approval chain
type RoutingStage struct {
	router Router
}

// NewRoutingStage creates the approval routing stage
func NewRoutingStage(r Router) *RoutingStage {
	return &RoutingStage{router: r}
}

func (s *RoutingStage) Name() string { return StageApprovalRouting }

func (s *RoutingStage) Run(ctx context.Context, claimID string) (interface{}, error) {
	return s.router.Route(ctx, claimID)
}
