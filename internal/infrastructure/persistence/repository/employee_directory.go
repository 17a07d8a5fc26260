package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/persistence/sqlite"
)

// EmployeeDirectory implements port.EmployeeDirectory from the local
// employees and claim_documents tables
type EmployeeDirectory struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewEmployeeDirectory creates a new employee directory
func NewEmployeeDirectory(db *sqlite.DB, logger *zap.Logger) *EmployeeDirectory {
	return &EmployeeDirectory{
		db:     db,
		logger: logger,
	}
}

// GetEmployeeContext loads an employee with their uploaded documents
func (d *EmployeeDirectory) GetEmployeeContext(ctx context.Context, employeeID string) (*entity.EmployeeContext, error) {
	exec := d.db.Executor(ctx)

	var e entity.EmployeeContext
	err := exec.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, designation, join_date, project_code
		FROM employees WHERE id = ?`, employeeID).
		Scan(&e.EmployeeID, &e.TenantID, &e.Email, &e.Designation, &e.JoinDate, &e.ProjectCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("employee %s: %w", employeeID, entity.ErrNotFound)
	}
	if err != nil {
		d.logger.Error("Failed to load employee", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("%w: employee lookup: %v", entity.ErrExternalProvider, err)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT id, claim_id, file_name, file_path, mime_type
		FROM claim_documents
		WHERE employee_id = ?
		ORDER BY uploaded_at ASC, id ASC`, employeeID)
	if err != nil {
		d.logger.Error("Failed to load documents", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, fmt.Errorf("%w: document lookup: %v", entity.ErrExternalProvider, err)
	}
	defer rows.Close()

	e.Documents = []entity.Document{}
	for rows.Next() {
		var doc entity.Document
		if err := rows.Scan(&doc.ID, &doc.ClaimID, &doc.FileName, &doc.FilePath, &doc.MimeType); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		e.Documents = append(e.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: document lookup: %v", entity.ErrExternalProvider, err)
	}
	return &e, nil
}

// SaveEmployee upserts an employee and their documents. Used by seeding and tests.
func (d *EmployeeDirectory) SaveEmployee(ctx context.Context, e *entity.EmployeeContext) error {
	return d.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := d.db.Executor(ctx)
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO employees (id, tenant_id, email, designation, join_date, project_code)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				tenant_id = excluded.tenant_id,
				email = excluded.email,
				designation = excluded.designation,
				join_date = excluded.join_date,
				project_code = excluded.project_code`,
			e.EmployeeID, e.TenantID, e.Email, e.Designation, e.JoinDate.UTC(), e.ProjectCode,
		); err != nil {
			return fmt.Errorf("failed to save employee: %w", err)
		}

		for _, doc := range e.Documents {
			if _, err := exec.ExecContext(ctx, `
				INSERT OR REPLACE INTO claim_documents (id, employee_id, claim_id, file_name, file_path, mime_type)
				VALUES (?, ?, ?, ?, ?, ?)`,
				doc.ID, e.EmployeeID, doc.ClaimID, doc.FileName, doc.FilePath, doc.MimeType,
			); err != nil {
				return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

var _ port.EmployeeDirectory = (*EmployeeDirectory)(nil)
