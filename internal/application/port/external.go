package port

import (
	"context"

	"github.com/garyjia/claimflow/internal/domain/entity"
)

// EmployeeDirectory supplies employee context to the pipeline.
// Returns entity.ErrNotFound for unknown employees and
// entity.ErrExternalProvider when the directory is unreachable.
type EmployeeDirectory interface {
	GetEmployeeContext(ctx context.Context, employeeID string) (*entity.EmployeeContext, error)
}

// Reasoner is the AI-reasoning collaborator. It returns a raw JSON string.
type Reasoner interface {
	Reason(ctx context.Context, prompt, systemInstruction string, temperature float32) (string, error)
}

// ExecutionSink receives one record per stage invocation
type ExecutionSink interface {
	LogExecution(ctx context.Context, exec *entity.AgentExecution) error
}

// DocumentSummary is the document stage output
type DocumentSummary struct {
	Documents  int            `json:"documents"`
	Pages      int            `json:"pages"`
	Processed  []DocumentInfo `json:"processed"`
	Unreadable []string       `json:"unreadable,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// DocumentInfo describes one processed document
type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Pages      int    `json:"pages"`
	TextChars  int    `json:"text_chars"`
}

// DocumentProcessor inspects uploaded claim documents
type DocumentProcessor interface {
	Process(ctx context.Context, docs []entity.Document) (*DocumentSummary, error)
}

// VoucherWriter produces the settlement voucher for a settled claim
type VoucherWriter interface {
	WriteSettlementVoucher(ctx context.Context, claim *entity.Claim, approvals []*entity.Approval) (string, error)
}
