package voucher

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
	"github.com/garyjia/claimflow/internal/infrastructure/storage"
)

// SheetName is the single sheet of a settlement voucher
const SheetName = "Voucher"

// Config for the voucher writer
type Config struct {
	Company string
	Dir     string // relative to the file storage root
}

// ExcelWriter renders a settlement voucher workbook for a settled claim and
// stores it as <dir>/<tenant>/<claim>.xlsx
type ExcelWriter struct {
	files  port.FileStorage
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewExcelWriter creates a new voucher writer
func NewExcelWriter(files port.FileStorage, cfg Config, logger *zap.Logger) *ExcelWriter {
	if cfg.Dir == "" {
		cfg.Dir = "vouchers"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelWriter{
		files:  files,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// VoucherNumber derives the voucher number printed on the workbook
func VoucherNumber(claim *entity.Claim, at time.Time) string {
	return fmt.Sprintf("SV-%s-%s", at.Format("20060102"), storage.SafeName(claim.ID))
}

// WriteSettlementVoucher writes the workbook and returns its full path
func (w *ExcelWriter) WriteSettlementVoucher(ctx context.Context, claim *entity.Claim, approvals []*entity.Approval) (string, error) {
	now := w.now()
	number := VoucherNumber(claim, now)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return "", fmt.Errorf("failed to name sheet: %w", err)
	}

	header := [][2]interface{}{
		{"Company", w.cfg.Company},
		{"Voucher No.", number},
		{"Settled At", now.Format("2006-01-02 15:04")},
		{"Claim ID", claim.ID},
		{"Tenant", claim.TenantID},
		{"Employee", claim.EmployeeID},
		{"Claim Type", claim.ClaimType},
		{"Category", claim.CategoryCode},
		{"Claim Date", claim.ClaimDate.Format("2006-01-02")},
		{"Description", claim.Description},
		{"Amount", claim.Amount},
		{"Currency", claim.Currency},
	}
	for i, row := range header {
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", i+1), &[]interface{}{row[0], row[1]}); err != nil {
			return "", fmt.Errorf("failed to write header row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("failed to create style: %w", err)
	}
	_ = f.SetCellStyle(SheetName, "A1", fmt.Sprintf("A%d", len(header)), bold)

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err == nil {
		amountCell := fmt.Sprintf("B%d", len(header)-1)
		_ = f.SetCellStyle(SheetName, amountCell, amountCell, amountStyle)
	}

	row := len(header) + 2
	if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &[]interface{}{"Level", "Status", "Approver", "Decided At", "Remarks"}); err != nil {
		return "", fmt.Errorf("failed to write approvals header: %w", err)
	}
	_ = f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("E%d", row), bold)

	for _, a := range approvals {
		row++
		approver, decided := "", ""
		if a.ApproverID != nil {
			approver = *a.ApproverID
		}
		if a.DecidedAt != nil {
			decided = a.DecidedAt.Format("2006-01-02 15:04")
		}
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &[]interface{}{a.Level, a.Status, approver, decided, a.Remarks}); err != nil {
			return "", fmt.Errorf("failed to write approval row: %w", err)
		}
	}
	_ = f.SetColWidth(SheetName, "A", "A", 14)
	_ = f.SetColWidth(SheetName, "B", "E", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to render voucher: %w", err)
	}

	rel := path.Join(w.cfg.Dir, storage.SafeName(claim.TenantID), storage.SafeName(claim.ID)+".xlsx")
	if err := w.files.Save(ctx, rel, buf.Bytes()); err != nil {
		w.logger.Error("Failed to store voucher",
			zap.String("claim_id", claim.ID),
			zap.Error(err))
		return "", err
	}

	full := w.files.GetFullPath(rel)
	w.logger.Info("Settlement voucher written",
		zap.String("claim_id", claim.ID),
		zap.String("voucher_number", number),
		zap.String("path", full))
	return full, nil
}

var _ port.VoucherWriter = (*ExcelWriter)(nil)
