package pipeline

import (
	"context"
	"fmt"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Stage names in execution order
const (
	StageDocumentProcessing = "DOCUMENT_PROCESSING"
	StageIntegration        = "INTEGRATION"
	StageValidation         = "VALIDATION"
	StageApprovalRouting    = "APPROVAL_ROUTING"
)

// Stage is one unit of pipeline work. A stage reloads the claim by id and
// writes only its own payload key.
type Stage interface {
	Name() string
	Run(ctx context.Context, claimID string) (interface{}, error)
}

// BuildStages returns the ordered stage plan for a claim type
func BuildStages(claimType string, hasDocuments bool) ([]string, error) {
	switch claimType {
	case entity.ClaimTypeAllowance:
		return []string{StageIntegration, StageValidation, StageApprovalRouting}, nil
	case entity.ClaimTypeReimbursement:
		stages := make([]string, 0, 4)
		if hasDocuments {
			stages = append(stages, StageDocumentProcessing)
		}
		return append(stages, StageIntegration, StageValidation, StageApprovalRouting), nil
	default:
		return nil, fmt.Errorf("%w: unknown claim type %q", entity.ErrValidationInput, claimType)
	}
}

// StageError is returned when a stage fails and the claim was rejected
type StageError struct {
	ClaimID string
	Stage   string
	Index   int
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("claim %s: stage %d (%s) failed: %v", e.ClaimID, e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
