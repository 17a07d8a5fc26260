package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// PathResolver maps a stored document path to a local file path
type PathResolver interface {
	GetFullPath(relativePath string) string
}

var imageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// PDFProcessor implements port.DocumentProcessor with MuPDF. PDFs are opened
// for page count and text; images count as a single page.
type PDFProcessor struct {
	files  PathResolver
	logger *zap.Logger
}

// NewPDFProcessor creates a new document processor
func NewPDFProcessor(files PathResolver, logger *zap.Logger) *PDFProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFProcessor{files: files, logger: logger}
}

// Process inspects every document. A file that cannot be opened is listed as
// unreadable rather than failing the batch.
func (p *PDFProcessor) Process(ctx context.Context, docs []entity.Document) (*port.DocumentSummary, error) {
	summary := &port.DocumentSummary{
		Documents: len(docs),
		Processed: make([]port.DocumentInfo, 0, len(docs)),
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := p.inspect(doc)
		if err != nil {
			p.logger.Warn("Document unreadable",
				zap.String("document_id", doc.ID),
				zap.String("file_name", doc.FileName),
				zap.Error(err))
			summary.Unreadable = append(summary.Unreadable, doc.FileName)
			continue
		}
		summary.Pages += info.Pages
		summary.Processed = append(summary.Processed, *info)
	}

	p.logger.Debug("Documents processed",
		zap.Int("documents", summary.Documents),
		zap.Int("pages", summary.Pages),
		zap.Int("unreadable", len(summary.Unreadable)))
	return summary, nil
}

func (p *PDFProcessor) inspect(doc entity.Document) (*port.DocumentInfo, error) {
	info := &port.DocumentInfo{DocumentID: doc.ID, FileName: doc.FileName}

	path := doc.FilePath
	if p.files != nil {
		path = p.files.GetFullPath(path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if imageExt[ext] || strings.HasPrefix(doc.MimeType, "image/") {
		info.Pages = 1
		return info, nil
	}
	if ext != ".pdf" && doc.MimeType != "application/pdf" {
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}

	f, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	info.Pages = f.NumPage()
	for n := 0; n < info.Pages; n++ {
		text, err := f.Text(n)
		if err != nil {
			p.logger.Debug("No text on page",
				zap.String("document_id", doc.ID),
				zap.Int("page", n),
				zap.Error(err))
			continue
		}
		info.TextChars += len(strings.TrimSpace(text))
	}
	return info, nil
}

var _ port.DocumentProcessor = (*PDFProcessor)(nil)
